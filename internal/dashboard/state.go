// Package dashboard はロール別ビューモデルの集約と操作フローの実行を提供する。
// ポーリングサイクルの結果とアクションの結果はすべてStoreに集約され、
// ハンドラー層はStoreのスナップショットのみを公開する。
package dashboard

import (
	"sync"
	"time"

	"github.com/hitoshi/fleetwatch/internal/model"
)

// ViewModel はロール別ダッシュボードの表示状態。
// サイクル失敗時は直前の値が保持され、LastErrorのみ更新される。
type ViewModel struct {
	Role      model.Role `json:"role"`
	VehicleID string     `json:"vehicle_id,omitempty"`

	// オーナービュー
	Snapshot *model.VehicleSnapshot `json:"snapshot,omitempty"`
	History  []model.HistoryPoint   `json:"history,omitempty"`
	Contact  *model.ContactDecision `json:"contact,omitempty"`

	// フリート一覧は3方向ジョインの外側で取得されるため、
	// 失敗してもビュー本体には影響せずFleetErrorのみ立つ。
	Fleet      []model.FleetVehicle `json:"fleet,omitempty"`
	FleetError string               `json:"fleet_error,omitempty"`

	// サービスセンタービュー
	Bookings []model.Booking `json:"bookings,omitempty"`

	// 製造部門ビュー
	Summary *model.FleetSummary `json:"summary,omitempty"`

	LastUpdated time.Time `json:"last_updated,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

// EngagementFlow はプロアクティブ連絡シミュレーションのフロー状態。
type EngagementFlow struct {
	Loading bool                    `json:"loading"`
	Error   string                  `json:"error,omitempty"`
	Result  *model.EngagementResult `json:"result,omitempty"`
}

// ScheduleFlow は予約枠提案のフロー状態。
type ScheduleFlow struct {
	Loading bool                 `json:"loading"`
	Error   string               `json:"error,omitempty"`
	Offer   *model.ScheduleOffer `json:"offer,omitempty"`
}

// BookingFlow は予約確定のフロー状態。
type BookingFlow struct {
	Loading      bool                       `json:"loading"`
	Error        string                     `json:"error,omitempty"`
	Confirmation *model.BookingConfirmation `json:"confirmation,omitempty"`
}

// Flows は3つのアクションフローの状態。
type Flows struct {
	Engagement EngagementFlow `json:"engagement"`
	Schedule   ScheduleFlow   `json:"schedule"`
	Booking    BookingFlow    `json:"booking"`
}

// View はハンドラー層に公開されるスナップショット。
type View struct {
	Authenticated bool       `json:"authenticated"`
	Model         *ViewModel `json:"model,omitempty"`
	Flows         Flows      `json:"flows"`
}

// Store はビューモデルとフロー状態のエポック付き保管庫。
// セッションやロールが切り替わるたびにエポックが進み、
// 古いエポックで開始された非同期処理の結果は破棄される。
type Store struct {
	mu    sync.Mutex
	epoch uint64
	view  *ViewModel
	flows Flows
}

// NewStore はStoreを生成する。初期エポックは1。
func NewStore() *Store {
	return &Store{epoch: 1}
}

// Epoch は現在のエポックを返す。
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Reset は新しいセッションに向けてビューを初期化し、新エポックを返す。
// 旧セッションのビューモデルとフロー状態はすべて破棄される。
func (s *Store) Reset(role model.Role, vehicleID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.view = &ViewModel{Role: role, VehicleID: vehicleID}
	s.flows = Flows{}
	return s.epoch
}

// Clear はログアウト時にビューを破棄し、新エポックを返す。
func (s *Store) Clear() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.view = nil
	s.flows = Flows{}
	return s.epoch
}

// Snapshot は現在のビューのコピーを返す。
func (s *Store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{Flows: s.flows}
	if s.view != nil {
		copied := *s.view
		v.Authenticated = true
		v.Model = &copied
	}
	return v
}

// apply はエポックが一致する場合のみupdateを実行する。
// 不一致（セッション切替後に届いた古い結果）は黙って破棄する。
func (s *Store) apply(epoch uint64, update func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	update()
	return true
}

// ApplyView はサイクル成功の結果をビューモデルに反映する。
// エポック不一致の場合は破棄しfalseを返す。
func (s *Store) ApplyView(epoch uint64, update func(*ViewModel)) bool {
	return s.apply(epoch, func() {
		if s.view == nil {
			return
		}
		update(s.view)
		s.view.LastUpdated = time.Now()
		s.view.LastError = ""
	})
}

// SetCycleError はサイクル失敗を記録する。直前のビューモデルは保持される。
func (s *Store) SetCycleError(epoch uint64, msg string) bool {
	return s.apply(epoch, func() {
		if s.view == nil {
			return
		}
		s.view.LastError = msg
	})
}

// SetEngagementLoading はエンゲージメントフローを実行中に遷移させる。
// 直前の結果とエラーはクリアされる。
func (s *Store) SetEngagementLoading(epoch uint64) bool {
	return s.apply(epoch, func() {
		s.flows.Engagement = EngagementFlow{Loading: true}
	})
}

// SetEngagementResult はエンゲージメントフローの成功を記録する。
func (s *Store) SetEngagementResult(epoch uint64, result *model.EngagementResult) bool {
	return s.apply(epoch, func() {
		s.flows.Engagement = EngagementFlow{Result: result}
	})
}

// SetEngagementError はエンゲージメントフローの失敗を記録する。
func (s *Store) SetEngagementError(epoch uint64, msg string) bool {
	return s.apply(epoch, func() {
		s.flows.Engagement = EngagementFlow{Error: msg}
	})
}

// SetScheduleLoading は枠提案フローを実行中に遷移させる。
func (s *Store) SetScheduleLoading(epoch uint64) bool {
	return s.apply(epoch, func() {
		s.flows.Schedule = ScheduleFlow{Loading: true}
	})
}

// SetScheduleOffer は枠提案フローの成功を記録する。
func (s *Store) SetScheduleOffer(epoch uint64, offer *model.ScheduleOffer) bool {
	return s.apply(epoch, func() {
		s.flows.Schedule = ScheduleFlow{Offer: offer}
	})
}

// SetScheduleError は枠提案フローの失敗を記録する。
func (s *Store) SetScheduleError(epoch uint64, msg string) bool {
	return s.apply(epoch, func() {
		s.flows.Schedule = ScheduleFlow{Error: msg}
	})
}

// SetBookingLoading は予約確定フローを実行中に遷移させる。
func (s *Store) SetBookingLoading(epoch uint64) bool {
	return s.apply(epoch, func() {
		s.flows.Booking = BookingFlow{Loading: true}
	})
}

// SetBookingConfirmation は予約確定フローの成功を記録する。
func (s *Store) SetBookingConfirmation(epoch uint64, conf *model.BookingConfirmation) bool {
	return s.apply(epoch, func() {
		s.flows.Booking = BookingFlow{Confirmation: conf}
	})
}

// SetBookingError は予約確定フローの失敗を記録する。
// メッセージはサーバー提供のエラー文字列をそのままインライン表示する。
func (s *Store) SetBookingError(epoch uint64, msg string) bool {
	return s.apply(epoch, func() {
		s.flows.Booking = BookingFlow{Error: msg}
	})
}
