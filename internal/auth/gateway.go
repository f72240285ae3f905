// Package auth はオペレーターセッションのライフサイクル管理を提供する。
// プロセス全体で同時に保持するセッションは1つのみで、ログイン・復元・
// ログアウト・強制失効の状態遷移を直列化する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/fleetwatch/internal/agent"
	"github.com/hitoshi/fleetwatch/internal/config"
	"github.com/hitoshi/fleetwatch/internal/model"
	"github.com/hitoshi/fleetwatch/internal/repository"
)

// State はゲートウェイの認証状態。
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateValidating      State = "validating"
	StateAuthenticated   State = "authenticated"
)

// LoginError は資格情報の拒否を表す。エージェント障害とは区別され、
// ハンドラー層で401にマップされる。
type LoginError struct {
	Message string
}

func (e *LoginError) Error() string {
	return e.Message
}

// MasterAuthAPI はゲートウェイが必要とするマスターエージェントの認証操作。
type MasterAuthAPI interface {
	Login(ctx context.Context, username, password string, role model.Role) (*agent.LoginResult, error)
	Validate(ctx context.Context, token string) error
}

// Metrics はゲートウェイが記録するメトリクスのインターフェース。
type Metrics interface {
	RecordForcedLogout()
}

type noopMetrics struct{}

func (noopMetrics) RecordForcedLogout() {}

// Gateway は単一オペレーターセッションの状態機械。
// 全操作はミューテックスで直列化され、セッションの変更は
// onChangeフックで通知される。
type Gateway struct {
	mu       sync.Mutex
	state    State
	session  *model.Session
	master   MasterAuthAPI
	sessions repository.SessionRepository
	rule     config.VehicleIDRule
	logger   *slog.Logger
	metrics  Metrics
	onChange func(*model.Session)
}

// NewGateway はGatewayを生成する。初期状態はunauthenticated。
func NewGateway(master MasterAuthAPI, sessions repository.SessionRepository, rule config.VehicleIDRule, logger *slog.Logger, metrics Metrics) *Gateway {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Gateway{
		state:    StateUnauthenticated,
		master:   master,
		sessions: sessions,
		rule:     rule,
		logger:   logger,
		metrics:  metrics,
	}
}

// SetOnChange はセッション変更時に呼ばれるフックを登録する。
// ログイン成功時はセッション、ログアウト・失効時はnilが渡される。
// フックはロック外で呼ばれる。
func (g *Gateway) SetOnChange(fn func(*model.Session)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

// State は現在の認証状態を返す。
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Current は現在のセッションのコピーを返す。未認証の場合はnil。
func (g *Gateway) Current() *model.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return nil
	}
	copied := *g.session
	return &copied
}

// Login は資格情報でログインし、新しいセッションを確立する。
// 既存セッションがある場合は成功時のみ置き換える。試行が失敗した場合
// （資格情報拒否・エージェント障害とも）は試行前のセッションをそのまま
// 維持する。永続スロットもメモリも変更されず、onChangeフックも発火しない。
// 試行前に未認証だった場合はunauthenticatedに戻る。
func (g *Gateway) Login(ctx context.Context, username, password string, role model.Role) (*model.Session, error) {
	g.mu.Lock()
	prior := g.session
	g.state = StateValidating
	g.mu.Unlock()

	result, err := g.master.Login(ctx, username, password, role)
	if err != nil {
		g.restoreSession(prior)
		return nil, fmt.Errorf("ログイン要求に失敗: %w", err)
	}

	if !result.Success {
		g.restoreSession(prior)
		msg := result.Message
		if msg == "" {
			msg = "ユーザー名またはパスワードが正しくありません"
		}
		return nil, &LoginError{Message: msg}
	}

	// エージェントが返したロールを優先する
	grantedRole := role
	if parsed, err := model.ParseRole(result.Role); err == nil {
		grantedRole = parsed
	}

	session := &model.Session{
		Token:     result.Token,
		Role:      grantedRole,
		SubjectID: result.UserID,
	}
	if grantedRole == model.RoleOwner {
		session.OwnedVehicleID = DeriveVehicleID(result.UserID, g.rule)
	}

	if !session.Valid() {
		g.restoreSession(prior)
		return nil, fmt.Errorf("不正なセッション: role=%s subject=%s", session.Role, session.SubjectID)
	}

	if err := g.sessions.Set(ctx, session); err != nil {
		// 永続化失敗はログのみ。メモリ上のセッションは有効とする。
		g.logger.Error("セッションの永続化に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	g.mu.Lock()
	g.session = session
	g.state = StateAuthenticated
	hook := g.onChange
	g.mu.Unlock()

	g.logger.Info("ログインしました",
		slog.String("subject_id", session.SubjectID),
		slog.String("role", string(session.Role)),
	)

	if hook != nil {
		copied := *session
		hook(&copied)
	}
	return session, nil
}

// Resume は永続化されたセッションを再検証して復元する。
// 保存されたセッションが無い場合は何もしない。トークンがJWT形式で
// ローカルに期限切れと判断できる場合はネットワーク検証を省略して破棄する。
// 再検証に失敗した場合は保存セッションを破棄し、unauthenticatedのまま
// 正常に復帰する。
func (g *Gateway) Resume(ctx context.Context) error {
	stored, err := g.sessions.Get(ctx)
	if err != nil {
		return fmt.Errorf("保存セッションの取得に失敗: %w", err)
	}
	if stored == nil {
		return nil
	}

	if tokenExpiredLocally(stored.Token) {
		g.logger.Info("保存トークンが期限切れのため破棄します",
			slog.String("subject_id", stored.SubjectID),
		)
		if err := g.sessions.Clear(ctx); err != nil {
			g.logger.Error("セッションの破棄に失敗しました", slog.String("error", err.Error()))
		}
		return nil
	}

	g.mu.Lock()
	g.state = StateValidating
	g.mu.Unlock()

	if err := g.master.Validate(ctx, stored.Token); err != nil {
		g.logger.Warn("セッションの再検証に失敗しました",
			slog.String("subject_id", stored.SubjectID),
			slog.String("error", err.Error()),
		)
		if err := g.sessions.Clear(ctx); err != nil {
			g.logger.Error("セッションの破棄に失敗しました", slog.String("error", err.Error()))
		}
		g.setUnauthenticated()
		return nil
	}

	g.mu.Lock()
	g.session = stored
	g.state = StateAuthenticated
	hook := g.onChange
	g.mu.Unlock()

	g.logger.Info("セッションを復元しました",
		slog.String("subject_id", stored.SubjectID),
		slog.String("role", string(stored.Role)),
	)

	if hook != nil {
		copied := *stored
		hook(&copied)
	}
	return nil
}

// Logout はセッションを破棄する。未認証状態でも冪等に成功する。
func (g *Gateway) Logout(ctx context.Context) error {
	if err := g.sessions.Clear(ctx); err != nil {
		g.logger.Error("セッションの破棄に失敗しました", slog.String("error", err.Error()))
	}

	g.mu.Lock()
	had := g.session != nil
	g.session = nil
	g.state = StateUnauthenticated
	hook := g.onChange
	g.mu.Unlock()

	if had {
		g.logger.Info("ログアウトしました")
	}
	if hook != nil {
		hook(nil)
	}
	return nil
}

// Invalidate は認証エラーによる強制ログアウトを実行する。
// ポーリングやアクション実行中に401/403を受けた場合に呼ばれる。
func (g *Gateway) Invalidate(ctx context.Context, reason string) {
	g.mu.Lock()
	had := g.session != nil
	g.mu.Unlock()
	if !had {
		return
	}

	g.logger.Warn("セッションを強制失効します", slog.String("reason", reason))
	g.metrics.RecordForcedLogout()
	g.Logout(ctx)
}

func (g *Gateway) setUnauthenticated() {
	g.mu.Lock()
	g.session = nil
	g.state = StateUnauthenticated
	g.mu.Unlock()
}

// restoreSession はログイン試行の失敗後に試行前のセッションへ戻す。
// 試行前に認証済みだった場合はそのセッションと永続スロットが引き続き
// 有効なため状態のみauthenticatedに戻し、未認証だった場合は
// unauthenticatedに戻る。
func (g *Gateway) restoreSession(prior *model.Session) {
	g.mu.Lock()
	g.session = prior
	if prior != nil {
		g.state = StateAuthenticated
	} else {
		g.state = StateUnauthenticated
	}
	g.mu.Unlock()
}

// DeriveVehicleID はオーナーのユーザーIDから担当車両IDを導出する。
// splitルールは最初のアンダースコア以降を大文字化する（owner_v001 → V001）。
// suffixルールは末尾4文字を大文字化する。どちらも導出できない場合は
// ユーザーID全体を大文字化して返す。
func DeriveVehicleID(userID string, rule config.VehicleIDRule) string {
	switch rule {
	case config.VehicleIDRuleSuffix:
		if len(userID) > 4 {
			return strings.ToUpper(userID[len(userID)-4:])
		}
	default:
		if _, after, found := strings.Cut(userID, "_"); found && after != "" {
			return strings.ToUpper(after)
		}
	}
	return strings.ToUpper(userID)
}

// tokenExpiredLocally はトークンがJWT形式で、かつexpクレームが過去の
// 場合にtrueを返す。署名検証は行わない。JWTでないトークンは常にfalse。
func tokenExpiredLocally(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
