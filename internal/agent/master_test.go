package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/fleetwatch/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestMasterClient(t *testing.T, handler http.HandlerFunc) *MasterClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	return NewMasterClient(
		&http.Client{Timeout: 5 * time.Second},
		server.URL,
		newTestLogger(&buf),
		nil,
	)
}

func TestMasterClient_Login_Success(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("予期しないリクエスト: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("ログインにはBearerトークンを付与してはならない")
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "owner_v001" || body["role"] != "user" {
			t.Errorf("リクエストボディが不正: %v", body)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"token":   "tok-123",
			"role":    "user",
			"user_id": "owner_v001",
		})
	})

	result, err := c.Login(context.Background(), "owner_v001", "pass123", model.RoleOwner)
	if err != nil {
		t.Fatalf("Login() がエラーを返した: %v", err)
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if result.Token != "tok-123" {
		t.Errorf("Token = %q, want %q", result.Token, "tok-123")
	}
	if result.UserID != "owner_v001" {
		t.Errorf("UserID = %q, want %q", result.UserID, "owner_v001")
	}
}

func TestMasterClient_Login_Failure(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "Invalid credentials",
		})
	})

	result, err := c.Login(context.Background(), "owner_v001", "wrong", model.RoleOwner)
	if err != nil {
		t.Fatalf("Login() がエラーを返した: %v", err)
	}
	if result.Success {
		t.Error("Success = true, want false")
	}
	if result.Message != "Invalid credentials" {
		t.Errorf("Message = %q, want %q", result.Message, "Invalid credentials")
	}
}

func TestMasterClient_Validate_Valid(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok-123" {
			t.Errorf("token クエリパラメータが不正: %q", r.URL.Query().Get("token"))
		}
		json.NewEncoder(w).Encode(map[string]bool{"valid": true})
	})

	if err := c.Validate(context.Background(), "tok-123"); err != nil {
		t.Fatalf("Validate() がエラーを返した: %v", err)
	}
}

func TestMasterClient_Validate_Invalid(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"valid": false})
	})

	err := c.Validate(context.Background(), "tok-123")
	if err == nil {
		t.Fatal("valid:false はエラーを返すべき")
	}
	if model.Classify(err) != model.ErrClassAuthExpired {
		t.Errorf("分類 = %q, want %q", model.Classify(err), model.ErrClassAuthExpired)
	}
}

func TestMasterClient_Validate_422(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": "validation rejected"})
	})

	err := c.Validate(context.Background(), "tok-123")
	if err == nil {
		t.Fatal("HTTP 422 はエラーを返すべき")
	}
	if model.Classify(err) != model.ErrClassAuthExpired {
		t.Errorf("422は致命的な認証失敗として分類されるべき: got %q", model.Classify(err))
	}
}

func TestMasterClient_Health_DoubleEncoded(t *testing.T) {
	inner := `{"vehicle_id":"V001","anomaly_score":0.62,"subsystems":{"brakes":0.8,"engine":0.3,"suspension":0.4}}`

	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/V001" {
			t.Errorf("パスが不正: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			t.Errorf("Authorization ヘッダーが不正: %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"vehicle_id": "V001",
			"health":     inner,
		})
	})

	snapshot, err := c.Health(context.Background(), "tok-123", "V001")
	if err != nil {
		t.Fatalf("Health() がエラーを返した: %v", err)
	}
	if snapshot == nil {
		t.Fatal("スナップショットがnil")
	}
	if snapshot.AnomalyScore != 0.62 {
		t.Errorf("AnomalyScore = %v, want 0.62", snapshot.AnomalyScore)
	}
	if snapshot.Subsystems.Brakes != 0.8 {
		t.Errorf("Brakes = %v, want 0.8", snapshot.Subsystems.Brakes)
	}
	if snapshot.Status != model.RiskStatusCritical {
		t.Errorf("Status = %q, want %q", snapshot.Status, model.RiskStatusCritical)
	}
}

func TestMasterClient_Health_NoData(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"vehicle_id": "V001",
			"health":     nil,
		})
	})

	snapshot, err := c.Health(context.Background(), "tok-123", "V001")
	if err != nil {
		t.Fatalf("Health() がエラーを返した: %v", err)
	}
	if snapshot != nil {
		t.Errorf("データ未着の場合はnilを返すべき: got %+v", snapshot)
	}
}

func TestMasterClient_Health_MalformedInner(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"vehicle_id": "V001",
			"health":     "{not json",
		})
	})

	_, err := c.Health(context.Background(), "tok-123", "V001")
	if err == nil {
		t.Fatal("不正な内側JSONはエラーを返すべき")
	}
	if model.Classify(err) != model.ErrClassTransient {
		t.Errorf("分類 = %q, want %q", model.Classify(err), model.ErrClassTransient)
	}
}

func TestMasterClient_History_LimitParam(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "20" {
			t.Errorf("limit = %q, want 20", r.URL.Query().Get("limit"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"vehicle_id": "V001",
			"points": []map[string]any{
				{"timestamp": "2026-08-01T10:00:00", "anomaly_score": 0.1, "subsystems": map[string]float64{"brakes": 0.1, "engine": 0.0, "suspension": 0.0}},
				{"timestamp": "2026-08-01T10:00:02", "anomaly_score": 0.2, "subsystems": map[string]float64{"brakes": 0.2, "engine": 0.0, "suspension": 0.0}},
			},
		})
	})

	points, err := c.History(context.Background(), "tok-123", "V001", 20)
	if err != nil {
		t.Fatalf("History() がエラーを返した: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2", len(points))
	}
	// 古い順であること
	if points[0].AnomalyScore != 0.1 || points[1].AnomalyScore != 0.2 {
		t.Errorf("履歴の順序が不正: %+v", points)
	}
}

func TestMasterClient_UpcomingBookings_Empty(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"bookings": []any{}})
	})

	bookings, err := c.UpcomingBookings(context.Background(), "tok-123")
	if err != nil {
		t.Fatalf("UpcomingBookings() がエラーを返した: %v", err)
	}
	if bookings == nil {
		t.Fatal("空の場合もnilではなく空スライスを返すべき")
	}
	if len(bookings) != 0 {
		t.Errorf("len(bookings) = %d, want 0", len(bookings))
	}
}

func TestMasterClient_Forbidden(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"detail": "not your vehicle"})
	})

	_, err := c.Health(context.Background(), "tok-123", "V002")
	if err == nil {
		t.Fatal("403 はエラーを返すべき")
	}

	var agentErr *model.AgentError
	if !errors.As(err, &agentErr) {
		t.Fatalf("AgentError であるべき: %T", err)
	}
	if agentErr.Class != model.ErrClassAuthorizationDenied {
		t.Errorf("Class = %q, want %q", agentErr.Class, model.ErrClassAuthorizationDenied)
	}
	if agentErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", agentErr.Status)
	}
}

func TestMasterClient_ConfirmBooking_Success(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["vehicle_id"] != "V001" || body["center_id"] != "CENTER_01" {
			t.Errorf("リクエストボディが不正: %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"booking_id":   42,
			"status":       "confirmed",
			"confirmed_at": "2026-08-28T10:00:00",
		})
	})

	conf, err := c.ConfirmBooking(context.Background(), "tok-123", "V001",
		"2026-08-29T10:00:00", "2026-08-29T11:00:00", "CENTER_01")
	if err != nil {
		t.Fatalf("ConfirmBooking() がエラーを返した: %v", err)
	}
	if conf.BookingID != 42 {
		t.Errorf("BookingID = %d, want 42", conf.BookingID)
	}
	if conf.Status != "confirmed" {
		t.Errorf("Status = %q, want confirmed", conf.Status)
	}
}

func TestMasterClient_ConfirmBooking_ServerRejection(t *testing.T) {
	c := newTestMasterClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "slot taken",
		})
	})

	_, err := c.ConfirmBooking(context.Background(), "tok-123", "V001",
		"2026-08-29T10:00:00", "2026-08-29T11:00:00", "CENTER_01")
	if err == nil {
		t.Fatal("success:false はエラーを返すべき")
	}
	if model.UserMessage(err) != "slot taken" {
		t.Errorf("メッセージ = %q, want %q", model.UserMessage(err), "slot taken")
	}
	if model.Classify(err) != model.ErrClassTransient {
		t.Errorf("分類 = %q, want %q", model.Classify(err), model.ErrClassTransient)
	}
}

func TestMasterClient_NetworkError(t *testing.T) {
	var buf bytes.Buffer
	c := NewMasterClient(
		&http.Client{Timeout: 100 * time.Millisecond},
		"http://127.0.0.1:1", // 接続不能なポート
		newTestLogger(&buf),
		nil,
	)

	_, err := c.FleetSummary(context.Background(), "tok-123")
	if err == nil {
		t.Fatal("ネットワーク障害はエラーを返すべき")
	}
	if model.Classify(err) != model.ErrClassTransient {
		t.Errorf("分類 = %q, want %q", model.Classify(err), model.ErrClassTransient)
	}
}
