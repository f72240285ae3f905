// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/fleetwatch/internal/agent"
	"github.com/hitoshi/fleetwatch/internal/auth"
	"github.com/hitoshi/fleetwatch/internal/config"
	"github.com/hitoshi/fleetwatch/internal/dashboard"
	"github.com/hitoshi/fleetwatch/internal/database"
	"github.com/hitoshi/fleetwatch/internal/handler"
	"github.com/hitoshi/fleetwatch/internal/logger"
	"github.com/hitoshi/fleetwatch/internal/metrics"
	"github.com/hitoshi/fleetwatch/internal/middleware"
	"github.com/hitoshi/fleetwatch/internal/model"
	"github.com/hitoshi/fleetwatch/internal/repository"
	"github.com/hitoshi/fleetwatch/internal/security"
	"github.com/hitoshi/fleetwatch/internal/worker/poll"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("master_agent", cfg.MasterAgentURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はBFFサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、保存セッションの復元を試みた
// うえでHTTPサーバーを起動する。SIGINTまたはSIGTERMシグナルを受信すると
// グレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. エージェントクライアント
	httpClient := &http.Client{Timeout: cfg.AgentTimeout}
	masterClient := agent.NewMasterClient(httpClient, cfg.MasterAgentURL, slog.Default(), collector)
	customerClient := agent.NewCustomerClient(httpClient, cfg.CustomerAgentURL, slog.Default(), collector)
	schedulingClient := agent.NewSchedulingClient(httpClient, cfg.SchedulingAgentURL, slog.Default(), collector)

	// 4. セッションゲートウェイとビューストア
	sessionRepo := repository.NewPostgresSessionRepo(db)
	gateway := auth.NewGateway(masterClient, sessionRepo, cfg.VehicleIDRule, slog.Default(), collector)
	store := dashboard.NewStore()

	// 5. 集約とポーリング
	aggregator := dashboard.NewAggregator(masterClient, store, gateway, cfg.HistoryLimit, slog.Default(), collector)
	scheduler := poll.NewScheduler(aggregator, slog.Default(), collector)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// セッション変更がポーリングのライフサイクルを駆動する。
	// スケジューラの停止はフェッチサイクル内からの強制失効でも起こるため、
	// デッドロックを避けて別ゴルーチンで行い、エポック照合で順序を正す。
	var schedMu sync.Mutex
	gateway.SetOnChange(func(session *model.Session) {
		if session == nil {
			epoch := store.Clear()
			go func() {
				schedMu.Lock()
				defer schedMu.Unlock()
				if store.Epoch() != epoch {
					return
				}
				scheduler.Stop()
			}()
			return
		}

		epoch := store.Reset(session.Role, session.OwnedVehicleID)
		plan := dashboard.PlanFor(session.Role, cfg.PollInterval)
		go func() {
			schedMu.Lock()
			defer schedMu.Unlock()
			if store.Epoch() != epoch {
				return
			}
			scheduler.Start(rootCtx, session, plan.Cadence, epoch)
		}()
	})

	// 6. アクションフロー
	actions := dashboard.NewActions(dashboard.ActionsConfig{
		Master:    masterClient,
		Customer:  customerClient,
		Scheduler: schedulingClient,
		Store:     store,
		Gateway:   gateway,
		Sanitizer: security.NewScriptSanitizer(),
		Refresh: func(ctx context.Context) {
			session := gateway.Current()
			if session == nil {
				return
			}
			if err := aggregator.FetchCycle(ctx, session, store.Epoch()); err != nil {
				slog.Warn("refresh after booking failed", slog.String("error", err.Error()))
			}
		},
		OwnerName: cfg.OwnerName,
		Phone:     cfg.OwnerPhone,
		Logger:    slog.Default(),
		Metrics:   collector,
	})

	// 7. 保存セッションの復元
	resumeCtx, resumeCancel := context.WithTimeout(rootCtx, cfg.AgentTimeout)
	if err := gateway.Resume(resumeCtx); err != nil {
		slog.Warn("session resume failed", slog.String("error", err.Error()))
	}
	resumeCancel()

	// 8. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:            rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		Burst:           cfg.RateLimitGeneral,
		CleanupInterval: 5 * time.Minute,
	})
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Gateway:           gateway,
		Store:             store,
		Actions:           actions,
		DBPing:            db.PingContext,
		Gatherer:          registry,
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("BFF server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down BFF server...")

	rootCancel()
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("BFF server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
