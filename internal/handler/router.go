package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bunny-plus/backend/internal/metrics"
	"github.com/bunny-plus/backend/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// カード
	CardService CardServiceInterface

	// プレゼンス配信
	WSHandler http.Handler

	// メトリクス
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// ヘルスチェック
	HealthCheck http.HandlerFunc
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Session → RateLimit(General)
//
// 認証ルート（/auth/*）とヘルスチェックはセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics)
	userHandler := NewUserHandler(deps.UserService)
	cardHandler := NewCardHandler(deps.CardService, deps.Metrics)

	// --- 認証不要のルート ---

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/discord", authHandler.Login)
		r.Get("/discord/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
	})

	// ヘルスチェック
	if deps.HealthCheck != nil {
		r.Get("/health", deps.HealthCheck)
	}

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// CSRFトークン取得（セッション不要。フロントエンドの初期化時に呼ばれる）
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// セッション照会
		r.Get("/api/session", authHandler.Session)

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/me", userHandler.Me)
			r.Post("/me/onboarding", userHandler.CompleteOnboarding)
		})

		// カード管理
		r.Route("/api/cards", func(r chi.Router) {
			// POST /api/cards/pull - ガチャ実行（専用レート制限を追加）
			r.With(deps.RateLimiter.PullMiddleware()).Post("/pull", cardHandler.Pull)

			r.Get("/", cardHandler.ListCards)
			r.Get("/{id}", cardHandler.GetCard)
		})

		// オンラインユーザー配信
		if deps.WSHandler != nil {
			r.Handle("/ws", deps.WSHandler)
		}
	})

	return r
}
