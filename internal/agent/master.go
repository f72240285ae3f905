package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/fleetwatch/internal/model"
)

// MasterClient はマスターエージェントのAPIクライアント。
// 認証、車両ヘルス、履歴、連絡判定、フリートサマリー、予約を担当する。
type MasterClient struct {
	client
}

// NewMasterClient はMasterClientを生成する。
func NewMasterClient(httpClient *http.Client, baseURL string, logger *slog.Logger, metrics StatusRecorder) *MasterClient {
	return &MasterClient{
		client: newClient(httpClient, baseURL, "master", logger, metrics),
	}
}

// LoginResult はログインエンドポイントのレスポンス。
type LoginResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Role    string `json:"role"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// Login は資格情報でログインする。Bearerトークンは付与しない。
// 認証失敗（success:false）はエラーではなく結果として返す。
func (c *MasterClient) Login(ctx context.Context, username, password string, role model.Role) (*LoginResult, error) {
	req := map[string]string{
		"username": username,
		"password": password,
		"role":     string(role),
	}

	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate は永続化されたトークンを再検証する。
// {valid:true} の場合のみnilを返す。{valid:false}、HTTP 422、
// ネットワーク障害はいずれも致命的な認証失敗として
// ErrClassAuthExpiredのAgentErrorを返す。
func (c *MasterClient) Validate(ctx context.Context, token string) error {
	path := "/auth/validate?token=" + url.QueryEscape(token)

	var result struct {
		Valid bool `json:"valid"`
	}
	if err := c.do(ctx, http.MethodPost, path, "", nil, &result); err != nil {
		// 422はサーバー側の検証拒否。分類に関わらず再検証失敗は致命的とする。
		return &model.AgentError{
			Agent:   c.name,
			Class:   model.ErrClassAuthExpired,
			Message: "セッションの再検証に失敗しました",
		}
	}

	if !result.Valid {
		return &model.AgentError{
			Agent:   c.name,
			Class:   model.ErrClassAuthExpired,
			Message: "トークンが無効です",
		}
	}

	return nil
}

// Health は単一車両の現在のヘルススナップショットを取得する。
// healthフィールドは二重エンコードされたJSON文字列で返されるため、
// 内側のドキュメントをデコードして返す。データ未着の場合は(nil, nil)を返す。
func (c *MasterClient) Health(ctx context.Context, token, vehicleID string) (*model.VehicleSnapshot, error) {
	var resp struct {
		VehicleID string  `json:"vehicle_id"`
		Health    *string `json:"health"`
	}
	if err := c.do(ctx, http.MethodGet, "/health/"+url.PathEscape(vehicleID), token, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Health == nil || *resp.Health == "" {
		return nil, nil
	}

	var snapshot model.VehicleSnapshot
	if err := json.Unmarshal([]byte(*resp.Health), &snapshot); err != nil {
		return nil, &model.AgentError{
			Agent:   c.name,
			Class:   model.ErrClassTransient,
			Message: "ヘルスデータのパースに失敗しました",
		}
	}

	snapshot.Status = model.StatusForScore(snapshot.AnomalyScore)
	return &snapshot, nil
}

// History は車両のヘルス履歴を取得する。古い順に並び、直近limit件に制限される。
func (c *MasterClient) History(ctx context.Context, token, vehicleID string, limit int) ([]model.HistoryPoint, error) {
	path := fmt.Sprintf("/history/%s?limit=%d", url.PathEscape(vehicleID), limit)

	var resp struct {
		VehicleID string               `json:"vehicle_id"`
		Points    []model.HistoryPoint `json:"points"`
	}
	if err := c.do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Points == nil {
		return []model.HistoryPoint{}, nil
	}
	return resp.Points, nil
}

// ContactDecision はプロアクティブ連絡の要否判定を取得する。
func (c *MasterClient) ContactDecision(ctx context.Context, token, vehicleID string) (*model.ContactDecision, error) {
	var decision model.ContactDecision
	if err := c.do(ctx, http.MethodGet, "/contact_decision/"+url.PathEscape(vehicleID), token, nil, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// FleetVehicles はフリート全車両の最新スコアと状態を取得する。
func (c *MasterClient) FleetVehicles(ctx context.Context, token string) ([]model.FleetVehicle, error) {
	var resp struct {
		Vehicles []model.FleetVehicle `json:"vehicles"`
	}
	if err := c.do(ctx, http.MethodGet, "/vehicles", token, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Vehicles == nil {
		return []model.FleetVehicle{}, nil
	}
	return resp.Vehicles, nil
}

// FleetSummary は製造部門向けのフリートサマリーを取得する。
func (c *MasterClient) FleetSummary(ctx context.Context, token string) (*model.FleetSummary, error) {
	var summary model.FleetSummary
	if err := c.do(ctx, http.MethodGet, "/mfg/summary", token, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// UpcomingBookings は今後の予約一覧を取得する。予約が無い場合は空スライスを返す。
func (c *MasterClient) UpcomingBookings(ctx context.Context, token string) ([]model.Booking, error) {
	var resp struct {
		Bookings []model.Booking `json:"bookings"`
	}
	if err := c.do(ctx, http.MethodGet, "/bookings/upcoming", token, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Bookings == nil {
		return []model.Booking{}, nil
	}
	return resp.Bookings, nil
}

// ConfirmBooking は予約枠を確定する。
// サーバーが success:false を返した場合は、サーバー提供のエラー文字列を
// メッセージに持つTransientのAgentErrorを返す（インライン表示用）。
func (c *MasterClient) ConfirmBooking(ctx context.Context, token, vehicleID, slotStart, slotEnd, centerID string) (*model.BookingConfirmation, error) {
	req := map[string]string{
		"vehicle_id": vehicleID,
		"slot_start": slotStart,
		"slot_end":   slotEnd,
		"center_id":  centerID,
	}

	var resp struct {
		Success     bool   `json:"success"`
		BookingID   int64  `json:"booking_id"`
		Status      string `json:"status"`
		ConfirmedAt string `json:"confirmed_at"`
		Error       string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/bookings/confirm", token, req, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "予約の確定に失敗しました"
		}
		return nil, &model.AgentError{
			Agent:   c.name,
			Class:   model.ErrClassTransient,
			Message: msg,
		}
	}

	return &model.BookingConfirmation{
		BookingID:   resp.BookingID,
		Status:      resp.Status,
		ConfirmedAt: resp.ConfirmedAt,
	}, nil
}
