package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/fleetwatch/internal/dashboard"
	"github.com/hitoshi/fleetwatch/internal/model"
)

// ActionRunnerInterface はダッシュボードハンドラーが必要とするアクション操作。
type ActionRunnerInterface interface {
	SimulateEngagement(ctx context.Context, session *model.Session, epoch uint64) error
	ProposeSchedule(ctx context.Context, session *model.Session, epoch uint64) error
	ConfirmBooking(ctx context.Context, session *model.Session, epoch uint64, slotStart, slotEnd, centerID string) error
}

// DashboardHandler はビューモデルとアクションフローのHTTPハンドラー。
// アクションは同期実行され、結果はビューのフロー状態として返される。
type DashboardHandler struct {
	gateway AuthGatewayInterface
	store   *dashboard.Store
	actions ActionRunnerInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(gateway AuthGatewayInterface, store *dashboard.Store, actions ActionRunnerInterface) *DashboardHandler {
	return &DashboardHandler{
		gateway: gateway,
		store:   store,
		actions: actions,
	}
}

// View は現在の集約ビューを返す。未認証の場合もauthenticated:falseの
// スナップショットを200で返し、クライアント側でログイン画面に切り替える。
// GET /api/view
func (h *DashboardHandler) View(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// Fleet はフリート一覧のみを返す。
// GET /api/fleet
func (h *DashboardHandler) Fleet(w http.ResponseWriter, r *http.Request) {
	view := h.store.Snapshot()
	if !view.Authenticated {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vehicles": view.Model.Fleet,
		"error":    view.Model.FleetError,
	})
}

// Engagement はプロアクティブ連絡シミュレーションを実行する。
// POST /api/actions/engagement
func (h *DashboardHandler) Engagement(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, func(ctx context.Context, session *model.Session, epoch uint64) error {
		return h.actions.SimulateEngagement(ctx, session, epoch)
	})
}

// Schedule は予約枠の提案を要求する。
// POST /api/actions/schedule
func (h *DashboardHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, func(ctx context.Context, session *model.Session, epoch uint64) error {
		return h.actions.ProposeSchedule(ctx, session, epoch)
	})
}

type confirmBookingRequest struct {
	SlotStart string `json:"slot_start"`
	SlotEnd   string `json:"slot_end"`
	CenterID  string `json:"center_id"`
}

// Booking は予約枠を確定する。
// POST /api/actions/booking
func (h *DashboardHandler) Booking(w http.ResponseWriter, r *http.Request) {
	var req confirmBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SlotStart == "" || req.SlotEnd == "" || req.CenterID == "" {
		writeError(w, http.StatusBadRequest, "slot_start, slot_end and center_id are required")
		return
	}

	h.runAction(w, r, func(ctx context.Context, session *model.Session, epoch uint64) error {
		return h.actions.ConfirmBooking(ctx, session, epoch, req.SlotStart, req.SlotEnd, req.CenterID)
	})
}

// runAction はアクションフローの共通実行パス。
// セッションとエポックを確定してから同期実行し、最新のフロー状態を返す。
// 一時障害はフロー状態のインラインエラーとして200で返す。
func (h *DashboardHandler) runAction(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, session *model.Session, epoch uint64) error) {
	session := h.gateway.Current()
	if session == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	epoch := h.store.Epoch()
	err := run(r.Context(), session, epoch)

	switch {
	case err == nil:
		// 成功。最新のフロー状態を返す。
	case errors.Is(err, dashboard.ErrOwnerRequired):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case model.Classify(err).ForcesLogout():
		// ゲートウェイ側で既に強制失効済み
		writeError(w, http.StatusUnauthorized, "session invalidated")
		return
	}

	writeJSON(w, http.StatusOK, h.store.Snapshot().Flows)
}
