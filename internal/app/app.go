// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/bunny-plus/backend/internal/auth"
	"github.com/bunny-plus/backend/internal/card"
	"github.com/bunny-plus/backend/internal/config"
	"github.com/bunny-plus/backend/internal/database"
	"github.com/bunny-plus/backend/internal/handler"
	"github.com/bunny-plus/backend/internal/logger"
	"github.com/bunny-plus/backend/internal/metrics"
	"github.com/bunny-plus/backend/internal/middleware"
	"github.com/bunny-plus/backend/internal/presence"
	"github.com/bunny-plus/backend/internal/repository"
	"github.com/bunny-plus/backend/internal/user"
	"github.com/bunny-plus/backend/internal/worker/cleanup"
	"github.com/bunny-plus/backend/internal/ws"
)

// sessionSweepInterval は期限切れセッションのスイープ間隔。
const sessionSweepInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにデフォルトレベルで初期化する
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("frontend_url", cfg.FrontendURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
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

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db, cfg.StartingCurrency)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	cardRepo := repository.NewPostgresCardRepo(db)
	presenceRepo := repository.NewPostgresPresenceRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	oauthProvider := auth.NewDiscordOAuthProvider(auth.DiscordOAuthConfig{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordRedirectURL,
		Timeout:      cfg.OAuthTimeout,
	})
	authService := auth.NewService(oauthProvider, userRepo, sessionRepo, auth.ServiceConfig{
		RequiredGuildID: cfg.RequiredGuildID,
		SessionMaxAge:   cfg.SessionMaxAge,
	})
	userService := user.NewService(userRepo)
	cardService := card.NewService(cardRepo, userRepo, card.ServiceConfig{
		PullCost: cfg.PullCost,
	})

	// 5. プレゼンス配信の初期化
	// REDIS_URLが設定されていれば複数プロセス間で共有できるRedisストアを使う
	var hearts presence.HeartbeatStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		hearts = presence.NewRedisHeartbeatStore(redisClient, cfg.HeartbeatTTL)
		slog.Info("presence heartbeats backed by redis")
	} else {
		hearts = presence.NewMemoryHeartbeatStore(cfg.HeartbeatTTL)
	}

	tracker := presence.NewTracker(presenceRepo, hearts, cfg.BroadcastInterval)
	tracker.SetObserver(collector)

	wsHandler := ws.NewHandler(tracker, collector, wsOriginPatterns(cfg.FrontendURL))

	// 6. レート制限の初期化（configはreq/min単位、rate.Limitはreq/sec単位）
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		PullRate:        rate.Limit(float64(cfg.RateLimitPull) / 60.0),
		PullBurst:       cfg.RateLimitPull,
		CleanupInterval: 5 * time.Minute,
	})
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:   cfg.FrontendURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: int(cfg.SessionMaxAge.Seconds()),
		},

		UserService: userService,
		CardService: cardService,

		WSHandler: wsHandler,

		Metrics:  collector,
		Gatherer: registry,

		HealthCheck: newHealthCheckHandler(db),
	}

	router := handler.NewRouter(deps)

	// 8. バックグラウンドジョブの起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweepJob := cleanup.NewJob(sessionRepo, slog.Default(), sessionSweepInterval)
	sweepJob.SetObserver(collector)
	go sweepJob.Run(ctx)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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

// runSeed はカードカタログをデータベースに投入する。
// CARD_CATALOG_PATHが設定されていればそのYAMLファイルを、
// 未設定であれば埋め込みのデフォルトカタログを使用する。冪等に実行できる。
func runSeed(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	cardRepo := repository.NewPostgresCardRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := database.SeedCards(ctx, cardRepo, os.Getenv("CARD_CATALOG_PATH"))
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	slog.Info("card catalog seeded",
		slog.Int("cards", count),
	)
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

// pinger はDB接続の死活確認インターフェース。
type pinger interface {
	PingContext(ctx context.Context) error
}

// newHealthCheckHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func newHealthCheckHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

// wsOriginPatterns はWebSocketハンドシェイクで許可するOriginパターンを返す。
func wsOriginPatterns(frontendURL string) []string {
	u, err := url.Parse(frontendURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
