package agent

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fleetwatch/internal/model"
)

// SchedulingClient はスケジューリングエージェントのAPIクライアント。
type SchedulingClient struct {
	client
}

// NewSchedulingClient はSchedulingClientを生成する。
func NewSchedulingClient(httpClient *http.Client, baseURL string, logger *slog.Logger, metrics StatusRecorder) *SchedulingClient {
	return &SchedulingClient{
		client: newClient(httpClient, baseURL, "scheduling", logger, metrics),
	}
}

// ProposeSlots はリスクに基づく予約枠の提案を要求する。リトライは行わない。
func (c *SchedulingClient) ProposeSlots(ctx context.Context, token, vehicleID, ownerName string) (*model.ScheduleOffer, error) {
	req := map[string]string{
		"vehicle_id": vehicleID,
		"owner_name": ownerName,
	}

	var offer model.ScheduleOffer
	if err := c.do(ctx, http.MethodPost, "/propose_slots", token, req, &offer); err != nil {
		return nil, err
	}

	if offer.CanSchedule && offer.Options == nil {
		offer.Options = []model.SlotOption{}
	}
	return &offer, nil
}
