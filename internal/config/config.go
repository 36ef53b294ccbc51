package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Discord OAuth
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURL  string
	RequiredGuildID     string
	OAuthTimeout        time.Duration

	// Session
	SessionMaxAge time.Duration

	// Gacha
	PullCost         int
	StartingCurrency int

	// Presence
	BroadcastInterval time.Duration
	HeartbeatTTL      time.Duration
	RedisURL          string // 空の場合はインメモリのハートビートストアを使用する

	// Rate Limit
	RateLimitGeneral int // req/min/user
	RateLimitPull    int // req/min/user

	// Server
	ServerPort  string
	FrontendURL string

	// Logging
	LogLevel string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// sessionDuration はセッションの有効期間のデフォルト（30日）。
const sessionDuration = 30 * 24 * time.Hour

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.DiscordClientID = os.Getenv("DISCORD_CLIENT_ID")
	if cfg.DiscordClientID == "" {
		missing = append(missing, "DISCORD_CLIENT_ID")
	}

	cfg.DiscordClientSecret = os.Getenv("DISCORD_CLIENT_SECRET")
	if cfg.DiscordClientSecret == "" {
		missing = append(missing, "DISCORD_CLIENT_SECRET")
	}

	cfg.DiscordRedirectURL = os.Getenv("DISCORD_REDIRECT_URL")
	if cfg.DiscordRedirectURL == "" {
		missing = append(missing, "DISCORD_REDIRECT_URL")
	}

	cfg.RequiredGuildID = os.Getenv("REQUIRED_GUILD_ID")
	if cfg.RequiredGuildID == "" {
		missing = append(missing, "REQUIRED_GUILD_ID")
	}

	cfg.FrontendURL = os.Getenv("FRONTEND_URL")
	if cfg.FrontendURL == "" {
		missing = append(missing, "FRONTEND_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.OAuthTimeout = getEnvDuration("OAUTH_TIMEOUT", 10*time.Second)
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", sessionDuration)
	cfg.PullCost = getEnvInt("PULL_COST", 1)
	cfg.StartingCurrency = getEnvInt("STARTING_CURRENCY", 10)
	cfg.BroadcastInterval = getEnvDuration("BROADCAST_INTERVAL", 5*time.Second)
	cfg.HeartbeatTTL = getEnvDuration("HEARTBEAT_TTL", 10*time.Second)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPull = getEnvInt("RATE_LIMIT_PULL", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CookieSecure = strings.HasPrefix(cfg.FrontendURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
