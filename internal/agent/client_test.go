package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recordedStatus struct {
	agent  string
	status int
}

type fakeRecorder struct {
	recorded []recordedStatus
}

func (f *fakeRecorder) RecordAgentStatus(agent string, statusCode int) {
	f.recorded = append(f.recorded, recordedStatus{agent: agent, status: statusCode})
}

func TestClient_RequestHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID ヘッダーが付与されていない")
		}
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("User-Agent = %q, want %q", r.Header.Get("User-Agent"), userAgent)
		}
		json.NewEncoder(w).Encode(map[string]any{"vehicles": []any{}})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewMasterClient(&http.Client{Timeout: 5 * time.Second}, server.URL, newTestLogger(&buf), nil)

	if _, err := c.FleetVehicles(context.Background(), "tok-123"); err != nil {
		t.Fatalf("FleetVehicles() がエラーを返した: %v", err)
	}
}

func TestClient_MetricsRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	recorder := &fakeRecorder{}
	var buf bytes.Buffer
	c := NewMasterClient(&http.Client{Timeout: 5 * time.Second}, server.URL, newTestLogger(&buf), recorder)

	c.FleetVehicles(context.Background(), "tok-123")

	if len(recorder.recorded) != 1 {
		t.Fatalf("記録件数 = %d, want 1", len(recorder.recorded))
	}
	if recorder.recorded[0].agent != "master" || recorder.recorded[0].status != 503 {
		t.Errorf("記録内容が不正: %+v", recorder.recorded[0])
	}
}

func TestCustomerClient_SimulateCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simulate_call" {
			t.Errorf("パスが不正: %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["vehicle_id"] != "V001" || body["owner_name"] != "Fleet Operator" {
			t.Errorf("リクエストボディが不正: %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"vehicle_id": "V001",
			"action":     "suggest_call",
			"decision":   map[string]string{"reason": "anomaly_score 0.62 exceeds threshold"},
			"script":     "お客様の車両に異常が検出されました。",
			"message":    "連絡を推奨します",
			"phone":      "+81-90-0000-0000",
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewCustomerClient(&http.Client{Timeout: 5 * time.Second}, server.URL, newTestLogger(&buf), nil)

	result, err := c.SimulateCall(context.Background(), "tok-123", "V001", "Fleet Operator", "+81-90-0000-0000")
	if err != nil {
		t.Fatalf("SimulateCall() がエラーを返した: %v", err)
	}
	if result.Action != "suggest_call" {
		t.Errorf("Action = %q, want suggest_call", result.Action)
	}
	if result.DecisionReason != "anomaly_score 0.62 exceeds threshold" {
		t.Errorf("DecisionReason = %q", result.DecisionReason)
	}
	if result.Script == "" {
		t.Error("Script が空")
	}
}

func TestSchedulingClient_ProposeSlots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"can_schedule": true,
			"reason":       "critical risk detected",
			"severity":     "critical",
			"center_id":    "CENTER_01",
			"options": []map[string]string{
				{"label": "明日 10:00", "start": "2026-08-29T10:00:00", "end": "2026-08-29T11:00:00"},
			},
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewSchedulingClient(&http.Client{Timeout: 5 * time.Second}, server.URL, newTestLogger(&buf), nil)

	offer, err := c.ProposeSlots(context.Background(), "tok-123", "V001", "Fleet Operator")
	if err != nil {
		t.Fatalf("ProposeSlots() がエラーを返した: %v", err)
	}
	if !offer.CanSchedule {
		t.Error("CanSchedule = false, want true")
	}
	if len(offer.Options) != 1 {
		t.Fatalf("len(Options) = %d, want 1", len(offer.Options))
	}
	if offer.Options[0].SlotStart != "2026-08-29T10:00:00" {
		t.Errorf("SlotStart = %q", offer.Options[0].SlotStart)
	}
}

func TestSchedulingClient_ProposeSlots_NilOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"can_schedule": true,
			"reason":       "warning risk",
		})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewSchedulingClient(&http.Client{Timeout: 5 * time.Second}, server.URL, newTestLogger(&buf), nil)

	offer, err := c.ProposeSlots(context.Background(), "tok-123", "V001", "Fleet Operator")
	if err != nil {
		t.Fatalf("ProposeSlots() がエラーを返した: %v", err)
	}
	if offer.Options == nil {
		t.Error("can_schedule:true の場合、Options はnilではなく空スライスであるべき")
	}
}
