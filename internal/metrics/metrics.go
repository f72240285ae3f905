// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// エージェントクライアント、集約層、ポーリングスケジューラから利用する。
type MetricsCollector interface {
	RecordAgentStatus(agent string, statusCode int)
	RecordPollCycle(role string, duration time.Duration)
	RecordCycleFailure(role string, class string)
	RecordAction(flow string, outcome string)
	RecordForcedLogout()
	RecordSkippedTick()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	agentStatus   *prometheus.CounterVec
	pollCycles    *prometheus.CounterVec
	pollLatency   prometheus.Histogram
	cycleFailures *prometheus.CounterVec
	actions       *prometheus.CounterVec
	forcedLogouts prometheus.Counter
	skippedTicks  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		agentStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwatch_agent_http_status_total",
			Help: "エージェント別・HTTPステータスコード別のレスポンス数",
		}, []string{"agent", "status_code"}),
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwatch_poll_cycles_total",
			Help: "ロール別のフェッチサイクル実行数",
		}, []string{"role"}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetwatch_poll_cycle_latency_seconds",
			Help:    "フェッチサイクルのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cycleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwatch_poll_cycle_failures_total",
			Help: "ロール別・エラー分類別のフェッチサイクル失敗数",
		}, []string{"role", "class"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwatch_actions_total",
			Help: "フロー別・結果別のアクション実行数",
		}, []string{"flow", "outcome"}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetwatch_forced_logouts_total",
			Help: "認証エラーによる強制ログアウトの合計数",
		}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetwatch_skipped_ticks_total",
			Help: "前サイクル実行中のためスキップされたティック数",
		}),
	}

	reg.MustRegister(
		c.agentStatus,
		c.pollCycles,
		c.pollLatency,
		c.cycleFailures,
		c.actions,
		c.forcedLogouts,
		c.skippedTicks,
	)

	return c
}

// RecordAgentStatus はエージェント呼び出しのHTTPステータスコードを記録する。
func (c *Collector) RecordAgentStatus(agent string, statusCode int) {
	c.agentStatus.WithLabelValues(agent, strconv.Itoa(statusCode)).Inc()
}

// RecordPollCycle はフェッチサイクルの実行とレイテンシを記録する。
func (c *Collector) RecordPollCycle(role string, duration time.Duration) {
	c.pollCycles.WithLabelValues(role).Inc()
	c.pollLatency.Observe(duration.Seconds())
}

// RecordCycleFailure はフェッチサイクルの失敗を記録する。
func (c *Collector) RecordCycleFailure(role string, class string) {
	c.cycleFailures.WithLabelValues(role, class).Inc()
}

// RecordAction はアクションフローの実行結果を記録する。
func (c *Collector) RecordAction(flow string, outcome string) {
	c.actions.WithLabelValues(flow, outcome).Inc()
}

// RecordForcedLogout は強制ログアウトを記録する。
func (c *Collector) RecordForcedLogout() {
	c.forcedLogouts.Inc()
}

// RecordSkippedTick はスキップされたティックを記録する。
func (c *Collector) RecordSkippedTick() {
	c.skippedTicks.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
