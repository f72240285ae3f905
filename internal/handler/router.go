package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/fleetwatch/internal/dashboard"
	"github.com/hitoshi/fleetwatch/internal/metrics"
	"github.com/hitoshi/fleetwatch/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	Gateway AuthGatewayInterface
	Store   *dashboard.Store
	Actions ActionRunnerInterface

	// DBPing は/healthでのデータベース疎通確認。nilの場合はスキップする。
	DBPing func(ctx context.Context) error

	// Gatherer は/metricsのPrometheusレジストリ。nilの場合はルートを設けない。
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → LoggingMiddleware → RecoveryMiddleware → RateLimitMiddleware
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	authHandler := NewAuthHandler(deps.Gateway)
	dashboardHandler := NewDashboardHandler(deps.Gateway, deps.Store, deps.Actions)

	// --- 運用系ルート（レート制限の外） ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.DBPing != nil {
			if err := deps.DBPing(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- アプリケーションルート ---

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		r.Route("/api", func(r chi.Router) {
			r.Get("/view", dashboardHandler.View)
			r.Get("/fleet", dashboardHandler.Fleet)

			r.Route("/actions", func(r chi.Router) {
				r.Post("/engagement", dashboardHandler.Engagement)
				r.Post("/schedule", dashboardHandler.Schedule)
				r.Post("/booking", dashboardHandler.Booking)
			})
		})
	})

	return r
}
