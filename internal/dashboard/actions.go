package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/fleetwatch/internal/model"
)

// ErrOwnerRequired はオーナー以外のセッションでアクションが要求されたことを表す。
var ErrOwnerRequired = errors.New("この操作には車両オーナーのセッションが必要です")

// CustomerAPI はカスタマーエンゲージメントエージェントの操作。
type CustomerAPI interface {
	SimulateCall(ctx context.Context, token, vehicleID, ownerName, phone string) (*model.EngagementResult, error)
}

// SchedulingAPI はスケジューリングエージェントの操作。
type SchedulingAPI interface {
	ProposeSlots(ctx context.Context, token, vehicleID, ownerName string) (*model.ScheduleOffer, error)
}

// ScriptSanitizer は会話スクリプトのサニタイズ処理。
type ScriptSanitizer interface {
	Sanitize(raw string) string
}

// Actions は3つのアクションフローを実行する。
// 各フローは独立したloading/result/errorスロットを持ち、
// loadingはどの結果でも必ず解除される。
type Actions struct {
	master    MasterDataAPI
	customer  CustomerAPI
	scheduler SchedulingAPI
	store     *Store
	gateway   SessionInvalidator
	sanitizer ScriptSanitizer
	refresh   func(ctx context.Context)
	ownerName string
	phone     string
	logger    *slog.Logger
	metrics   Metrics
}

// ActionsConfig はActionsの生成パラメータ。
type ActionsConfig struct {
	Master    MasterDataAPI
	Customer  CustomerAPI
	Scheduler SchedulingAPI
	Store     *Store
	Gateway   SessionInvalidator
	Sanitizer ScriptSanitizer
	// Refresh は予約確定成功時に1回だけ呼ばれるフェッチサイクルのトリガー。
	Refresh   func(ctx context.Context)
	OwnerName string
	Phone     string
	Logger    *slog.Logger
	Metrics   Metrics
}

// NewActions はActionsを生成する。
func NewActions(cfg ActionsConfig) *Actions {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	refresh := cfg.Refresh
	if refresh == nil {
		refresh = func(ctx context.Context) {}
	}
	return &Actions{
		master:    cfg.Master,
		customer:  cfg.Customer,
		scheduler: cfg.Scheduler,
		store:     cfg.Store,
		gateway:   cfg.Gateway,
		sanitizer: cfg.Sanitizer,
		refresh:   refresh,
		ownerName: cfg.OwnerName,
		phone:     cfg.Phone,
		logger:    cfg.Logger,
		metrics:   metrics,
	}
}

// SimulateEngagement はプロアクティブ連絡のシミュレーションを実行する。
// 結果の会話スクリプトはサニタイズしてから公開する。
func (a *Actions) SimulateEngagement(ctx context.Context, session *model.Session, epoch uint64) error {
	if session.Role != model.RoleOwner {
		return ErrOwnerRequired
	}

	a.store.SetEngagementLoading(epoch)

	result, err := a.customer.SimulateCall(ctx, session.Token, session.OwnedVehicleID, a.ownerName, a.phone)
	if err != nil {
		a.failFlow(ctx, "engagement", epoch, err, a.store.SetEngagementError)
		return err
	}

	if a.sanitizer != nil {
		result.Script = a.sanitizer.Sanitize(result.Script)
	}

	a.store.SetEngagementResult(epoch, result)
	a.metrics.RecordAction("engagement", "success")
	a.logger.Info("エンゲージメントシミュレーションが完了しました",
		slog.String("vehicle_id", session.OwnedVehicleID),
		slog.String("action", result.Action),
	)
	return nil
}

// ProposeSchedule はリスクに基づく予約枠の提案を要求する。
func (a *Actions) ProposeSchedule(ctx context.Context, session *model.Session, epoch uint64) error {
	if session.Role != model.RoleOwner {
		return ErrOwnerRequired
	}

	a.store.SetScheduleLoading(epoch)

	offer, err := a.scheduler.ProposeSlots(ctx, session.Token, session.OwnedVehicleID, a.ownerName)
	if err != nil {
		a.failFlow(ctx, "schedule", epoch, err, a.store.SetScheduleError)
		return err
	}

	a.store.SetScheduleOffer(epoch, offer)
	a.metrics.RecordAction("schedule", "success")
	a.logger.Info("予約枠の提案を取得しました",
		slog.String("vehicle_id", session.OwnedVehicleID),
		slog.Bool("can_schedule", offer.CanSchedule),
		slog.Int("options", len(offer.Options)),
	)
	return nil
}

// ConfirmBooking は予約枠を確定する。
// 成功時はちょうど1回の枠再提案と1回のフェッチサイクル更新を連鎖させる。
// 失敗時はサーバー提供のエラー文字列をインライン表示し、何も連鎖させない。
func (a *Actions) ConfirmBooking(ctx context.Context, session *model.Session, epoch uint64, slotStart, slotEnd, centerID string) error {
	if session.Role != model.RoleOwner {
		return ErrOwnerRequired
	}

	a.store.SetBookingLoading(epoch)

	conf, err := a.master.ConfirmBooking(ctx, session.Token, session.OwnedVehicleID, slotStart, slotEnd, centerID)
	if err != nil {
		a.failFlow(ctx, "booking", epoch, err, a.store.SetBookingError)
		return err
	}

	a.store.SetBookingConfirmation(epoch, conf)
	a.metrics.RecordAction("booking", "success")
	a.logger.Info("予約を確定しました",
		slog.String("vehicle_id", session.OwnedVehicleID),
		slog.Int64("booking_id", conf.BookingID),
	)

	// 確定済みの枠を除いた最新の提案と、予約一覧を含むビューの再取得
	if err := a.ProposeSchedule(ctx, session, epoch); err != nil {
		a.logger.Warn("確定後の枠再提案に失敗しました", slog.String("error", err.Error()))
	}
	a.refresh(ctx)
	return nil
}

// failFlow はフロー失敗の共通処理。loadingを解除してエラーを記録し、
// 認証エラーの場合はセッションを強制失効する。
func (a *Actions) failFlow(ctx context.Context, flow string, epoch uint64, err error, setError func(uint64, string) bool) {
	class := model.Classify(err)
	a.metrics.RecordAction(flow, "failure")
	a.logger.Warn("アクションフローが失敗しました",
		slog.String("flow", flow),
		slog.String("class", string(class)),
		slog.String("error", err.Error()),
	)

	setError(epoch, model.UserMessage(err))

	if class.ForcesLogout() {
		a.gateway.Invalidate(ctx, string(class))
	}
}
