package dashboard

import (
	"time"

	"github.com/hitoshi/fleetwatch/internal/model"
)

// Plan はロールに対応するフェッチ計画。
// Cadenceが0の場合は定期ポーリングを行わず、初回の1回のみ取得する。
type Plan struct {
	Role    model.Role
	Cadence time.Duration
}

// PlanFor はロールからフェッチ計画を導出する。純粋関数。
// オーナーとサービスセンターはbaseInterval周期のポーリング、
// 製造部門はサマリーを1回だけ取得する。
func PlanFor(role model.Role, baseInterval time.Duration) Plan {
	switch role {
	case model.RoleOwner, model.RoleServiceCenter:
		return Plan{Role: role, Cadence: baseInterval}
	case model.RoleManufacturing:
		return Plan{Role: role, Cadence: 0}
	default:
		// ParseRoleを通過しないロール。ポーリングは行わない。
		return Plan{Role: role, Cadence: 0}
	}
}
