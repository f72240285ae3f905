// Package poll はロール別ダッシュボードの周期ポーリングを提供する。
// セッションごとに高々1本のティッカーを保持し、セッションやロールの
// 切り替え時は必ず旧ポーリングを停止してから新ポーリングを開始する。
package poll

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/fleetwatch/internal/model"
)

// CycleRunner は1サイクル分のフェッチ実行インターフェース。
type CycleRunner interface {
	FetchCycle(ctx context.Context, session *model.Session, epoch uint64) error
}

// Metrics はスケジューラのメトリクス記録インターフェース。
type Metrics interface {
	RecordSkippedTick()
}

type noopMetrics struct{}

func (noopMetrics) RecordSkippedTick() {}

// Scheduler はポーリングのライフサイクルを管理する。
// 前サイクルが実行中のティックはスキップされ、サイクルの多重実行は
// 起こらない（シングルフライト）。
type Scheduler struct {
	runner  CycleRunner
	logger  *slog.Logger
	metrics Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inFlight atomic.Bool
	timers   atomic.Int32
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(runner CycleRunner, logger *slog.Logger, metrics Metrics) *Scheduler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Scheduler{
		runner:  runner,
		logger:  logger,
		metrics: metrics,
	}
}

// Start はセッションに対するポーリングを開始する。
// 実行中のポーリングがあれば先に停止する。開始直後に必ず1回フェッチし、
// cadenceが正の場合のみティッカーを起動する。cadenceが0の場合は
// 初回の1回のみで完了する（製造部門ビュー）。
func (s *Scheduler) Start(ctx context.Context, session *model.Session, cadence time.Duration, epoch uint64) {
	s.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.logger.Info("ポーリングを開始します",
		slog.String("role", string(session.Role)),
		slog.Duration("cadence", cadence),
		slog.Uint64("epoch", epoch),
	)

	go func() {
		defer close(done)

		s.runOnce(runCtx, session, epoch)

		if cadence <= 0 {
			return
		}

		s.timers.Add(1)
		defer s.timers.Add(-1)

		ticker := time.NewTicker(cadence)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				go s.runOnce(runCtx, session, epoch)
			}
		}
	}()
}

// Stop は実行中のポーリングを停止し、ティッカーの終了を待つ。
// ポーリングが無い場合は何もしない。冪等。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("ポーリングを停止しました")
}

// ActiveTimers は現在動作中のティッカー本数を返す。常に0か1。
func (s *Scheduler) ActiveTimers() int {
	return int(s.timers.Load())
}

// runOnce は1サイクルを実行する。前サイクルが実行中の場合はスキップする。
func (s *Scheduler) runOnce(ctx context.Context, session *model.Session, epoch uint64) {
	if ctx.Err() != nil {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.RecordSkippedTick()
		s.logger.Debug("前サイクルが実行中のためティックをスキップします",
			slog.String("role", string(session.Role)),
		)
		return
	}
	defer s.inFlight.Store(false)

	// エラーはサイクル側でビューモデルに反映済み。ここではログのみ。
	if err := s.runner.FetchCycle(ctx, session, epoch); err != nil && ctx.Err() == nil {
		s.logger.Debug("フェッチサイクルがエラーで終了しました",
			slog.String("role", string(session.Role)),
			slog.String("error", err.Error()),
		)
	}
}
