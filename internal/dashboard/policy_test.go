package dashboard

import (
	"testing"
	"time"

	"github.com/hitoshi/fleetwatch/internal/model"
)

func TestPlanFor(t *testing.T) {
	base := 3 * time.Second

	tests := []struct {
		name        string
		role        model.Role
		wantCadence time.Duration
	}{
		{name: "オーナーは周期ポーリング", role: model.RoleOwner, wantCadence: base},
		{name: "サービスセンターは周期ポーリング", role: model.RoleServiceCenter, wantCadence: base},
		{name: "製造部門は1回のみ", role: model.RoleManufacturing, wantCadence: 0},
		{name: "未知のロールはポーリングしない", role: model.Role("ghost"), wantCadence: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanFor(tt.role, base)
			if plan.Cadence != tt.wantCadence {
				t.Errorf("Cadence = %v, want %v", plan.Cadence, tt.wantCadence)
			}
			if plan.Role != tt.role {
				t.Errorf("Role = %q, want %q", plan.Role, tt.role)
			}
		})
	}
}
