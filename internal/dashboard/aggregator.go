package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/fleetwatch/internal/model"
)

// MasterDataAPI は集約処理が必要とするマスターエージェントのデータ操作。
type MasterDataAPI interface {
	Health(ctx context.Context, token, vehicleID string) (*model.VehicleSnapshot, error)
	History(ctx context.Context, token, vehicleID string, limit int) ([]model.HistoryPoint, error)
	ContactDecision(ctx context.Context, token, vehicleID string) (*model.ContactDecision, error)
	FleetVehicles(ctx context.Context, token string) ([]model.FleetVehicle, error)
	FleetSummary(ctx context.Context, token string) (*model.FleetSummary, error)
	UpcomingBookings(ctx context.Context, token string) ([]model.Booking, error)
	ConfirmBooking(ctx context.Context, token, vehicleID, slotStart, slotEnd, centerID string) (*model.BookingConfirmation, error)
}

// SessionInvalidator は認証エラー時の強制ログアウト窓口。
type SessionInvalidator interface {
	Invalidate(ctx context.Context, reason string)
}

// Metrics は集約とアクションのメトリクス記録インターフェース。
type Metrics interface {
	RecordPollCycle(role string, duration time.Duration)
	RecordCycleFailure(role string, class string)
	RecordAction(flow string, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordPollCycle(role string, duration time.Duration) {}
func (noopMetrics) RecordCycleFailure(role string, class string)       {}
func (noopMetrics) RecordAction(flow string, outcome string)           {}

// Aggregator はロール別フェッチサイクルを実行し、結果をStoreに反映する。
type Aggregator struct {
	master       MasterDataAPI
	store        *Store
	gateway      SessionInvalidator
	historyLimit int
	logger       *slog.Logger
	metrics      Metrics
}

// NewAggregator はAggregatorを生成する。
func NewAggregator(master MasterDataAPI, store *Store, gateway SessionInvalidator, historyLimit int, logger *slog.Logger, metrics Metrics) *Aggregator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Aggregator{
		master:       master,
		store:        store,
		gateway:      gateway,
		historyLimit: historyLimit,
		logger:       logger,
		metrics:      metrics,
	}
}

// FetchCycle はセッションのロールに応じた1サイクル分の取得を実行する。
// 失敗時は直前のビューモデルを保持したままLastErrorのみ更新する。
// 401/403はセッションの強制失効を引き起こす。
func (a *Aggregator) FetchCycle(ctx context.Context, session *model.Session, epoch uint64) error {
	start := time.Now()

	var err error
	switch session.Role {
	case model.RoleOwner:
		err = a.fetchOwner(ctx, session, epoch)
	case model.RoleServiceCenter:
		err = a.fetchServiceCenter(ctx, session, epoch)
	case model.RoleManufacturing:
		err = a.fetchManufacturing(ctx, session, epoch)
	default:
		err = fmt.Errorf("未知のロール: %q", session.Role)
	}

	duration := time.Since(start)
	a.metrics.RecordPollCycle(string(session.Role), duration)

	if err != nil {
		class := model.Classify(err)
		a.metrics.RecordCycleFailure(string(session.Role), string(class))
		a.logger.Warn("フェッチサイクルに失敗しました",
			slog.String("role", string(session.Role)),
			slog.String("class", string(class)),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
			slog.String("error", err.Error()),
		)

		if class.ForcesLogout() {
			a.gateway.Invalidate(ctx, string(class))
			return err
		}
		a.store.SetCycleError(epoch, model.UserMessage(err))
		return err
	}

	a.logger.Debug("フェッチサイクルが完了しました",
		slog.String("role", string(session.Role)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// fetchOwner はオーナービューの3リクエストを並行実行し、全件成功した
// 場合のみビューモデルに反映する（all-or-nothing）。フリート一覧は
// ジョインバリアの外側で取得され、失敗してもビュー本体に影響しない。
func (a *Aggregator) fetchOwner(ctx context.Context, session *model.Session, epoch uint64) error {
	token := session.Token
	vehicleID := session.OwnedVehicleID

	var (
		snapshot *model.VehicleSnapshot
		history  []model.HistoryPoint
		contact  *model.ContactDecision
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapshot, err = a.master.Health(gctx, token, vehicleID)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = a.master.History(gctx, token, vehicleID, a.historyLimit)
		return err
	})
	g.Go(func() error {
		var err error
		contact, err = a.master.ContactDecision(gctx, token, vehicleID)
		return err
	})

	// バリア外の補助フェッチ
	fleetCh := make(chan struct {
		vehicles []model.FleetVehicle
		err      error
	}, 1)
	go func() {
		vehicles, err := a.master.FleetVehicles(ctx, token)
		fleetCh <- struct {
			vehicles []model.FleetVehicle
			err      error
		}{vehicles, err}
	}()

	joinErr := g.Wait()
	fleet := <-fleetCh

	// フリート取得の認証エラーもログアウトを強制する
	if fleet.err != nil && model.Classify(fleet.err).ForcesLogout() {
		return fleet.err
	}
	if joinErr != nil {
		return joinErr
	}

	a.store.ApplyView(epoch, func(vm *ViewModel) {
		vm.Snapshot = snapshot
		vm.History = history
		vm.Contact = contact
		if fleet.err != nil {
			vm.FleetError = model.UserMessage(fleet.err)
		} else {
			vm.Fleet = fleet.vehicles
			vm.FleetError = ""
		}
	})
	return nil
}

func (a *Aggregator) fetchServiceCenter(ctx context.Context, session *model.Session, epoch uint64) error {
	bookings, err := a.master.UpcomingBookings(ctx, session.Token)
	if err != nil {
		return err
	}

	a.store.ApplyView(epoch, func(vm *ViewModel) {
		vm.Bookings = bookings
	})
	return nil
}

func (a *Aggregator) fetchManufacturing(ctx context.Context, session *model.Session, epoch uint64) error {
	summary, err := a.master.FleetSummary(ctx, session.Token)
	if err != nil {
		return err
	}

	a.store.ApplyView(epoch, func(vm *ViewModel) {
		vm.Summary = summary
	})
	return nil
}
