package agent

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fleetwatch/internal/model"
)

// CustomerClient はカスタマーエンゲージメントエージェントのAPIクライアント。
type CustomerClient struct {
	client
}

// NewCustomerClient はCustomerClientを生成する。
func NewCustomerClient(httpClient *http.Client, baseURL string, logger *slog.Logger, metrics StatusRecorder) *CustomerClient {
	return &CustomerClient{
		client: newClient(httpClient, baseURL, "customer", logger, metrics),
	}
}

// SimulateCall はプロアクティブ連絡のシミュレーションを実行する。
// Action は "no_call" または "suggest_call"。リトライは行わない。
func (c *CustomerClient) SimulateCall(ctx context.Context, token, vehicleID, ownerName, phone string) (*model.EngagementResult, error) {
	req := map[string]string{
		"vehicle_id": vehicleID,
		"owner_name": ownerName,
		"phone":      phone,
	}

	var resp struct {
		VehicleID string `json:"vehicle_id"`
		Action    string `json:"action"`
		Message   string `json:"message"`
		Phone     string `json:"phone"`
		Script    string `json:"script"`
		Decision  struct {
			Reason string `json:"reason"`
		} `json:"decision"`
	}
	if err := c.do(ctx, http.MethodPost, "/simulate_call", token, req, &resp); err != nil {
		return nil, err
	}

	return &model.EngagementResult{
		VehicleID:      resp.VehicleID,
		Action:         resp.Action,
		DecisionReason: resp.Decision.Reason,
		Message:        resp.Message,
		Script:         resp.Script,
		Phone:          resp.Phone,
	}, nil
}
