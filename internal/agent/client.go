// Package agent は各バックエンドエージェントのHTTP APIクライアントを提供する。
// マスターエージェント（認証・テレメトリ・予約）、カスタマーエンゲージメント
// エージェント、スケジューリングエージェントの3つに対応する。
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/fleetwatch/internal/model"
)

const (
	// userAgent は全エージェント呼び出しに付与するUser-Agentヘッダー。
	userAgent = "Fleetwatch/1.0 Dashboard Orchestrator"
	// maxResponseSize はレスポンスボディの最大読み取りサイズ。
	maxResponseSize = 1 << 20
)

// StatusRecorder はエージェント別HTTPステータスのメトリクス記録インターフェース。
type StatusRecorder interface {
	RecordAgentStatus(agent string, statusCode int)
}

// noopRecorder はメトリクス未設定時のフォールバック。
type noopRecorder struct{}

func (noopRecorder) RecordAgentStatus(agent string, statusCode int) {}

// client は各エージェントクライアント共通の実行基盤。
type client struct {
	httpClient *http.Client
	baseURL    string
	name       string
	logger     *slog.Logger
	metrics    StatusRecorder
}

func newClient(httpClient *http.Client, baseURL, name string, logger *slog.Logger, metrics StatusRecorder) client {
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return client{
		httpClient: httpClient,
		baseURL:    baseURL,
		name:       name,
		logger:     logger,
		metrics:    metrics,
	}
}

// do はJSONリクエストを実行し、2xxレスポンスのボディをoutにデコードする。
// tokenが空でない場合はAuthorization: Bearerヘッダーを付与する。
// 非2xxステータスはmodel.AgentErrorに分類して返す。
func (c *client) do(ctx context.Context, method, path, token string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	requestID := uuid.New().String()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("エージェント呼び出しに失敗しました",
			slog.String("agent", c.name),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return &model.AgentError{
			Agent:   c.name,
			Class:   model.ErrClassTransient,
			Message: fmt.Sprintf("%sエージェントに接続できませんでした", c.name),
		}
	}
	defer resp.Body.Close()

	c.metrics.RecordAgentStatus(c.name, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &model.AgentError{
			Agent:   c.name,
			Class:   model.ErrClassTransient,
			Message: "レスポンスの読み取りに失敗しました",
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("エージェントがエラーステータスを返しました",
			slog.String("agent", c.name),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
		)
		return &model.AgentError{
			Agent:   c.name,
			Class:   model.ClassifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: serverMessage(data, resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("エージェントレスポンスのパースに失敗しました",
			slog.String("agent", c.name),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &model.AgentError{
			Agent:   c.name,
			Class:   model.ErrClassTransient,
			Status:  resp.StatusCode,
			Message: "不正なレスポンスを受信しました",
		}
	}

	return nil
}

// serverMessage はエラーレスポンスからユーザー表示用メッセージを抽出する。
// error / message / detail フィールドを優先し、どれも無ければ汎用メッセージを返す。
func serverMessage(data []byte, statusCode int) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		switch {
		case body.Error != "":
			return body.Error
		case body.Message != "":
			return body.Message
		case body.Detail != "":
			return body.Detail
		}
	}
	return fmt.Sprintf("エージェントがステータス %d を返しました", statusCode)
}
