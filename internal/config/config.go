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

	// Redis（オプション）。未設定の場合ロールキャッシュは無効になる。
	RedisURL string

	// Identity Provider
	AuthIssuerURL    string
	AuthClientID     string
	AuthClientSecret string
	AuthRedirectURL  string
	AuthTokenSecret  string // IDトークン（HS256）の検証シークレット

	// Session
	SessionMaxAge int

	// Routes
	RoutesFile string // 空の場合は埋め込みデフォルトを使用する

	// Transcription
	TranscribeAPIBase       string
	TranscribeAPIKey        string
	TranscribeTimeout       time.Duration
	TranscribeMaxConcurrent int
	TranscribeInterval      time.Duration
	TranscribeDefaultModel  string

	// Import
	ImportTimeout time.Duration
	ImportMaxSize int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitImport  int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

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

	cfg.AuthIssuerURL = os.Getenv("AUTH_ISSUER_URL")
	if cfg.AuthIssuerURL == "" {
		missing = append(missing, "AUTH_ISSUER_URL")
	}

	cfg.AuthClientID = os.Getenv("AUTH_CLIENT_ID")
	if cfg.AuthClientID == "" {
		missing = append(missing, "AUTH_CLIENT_ID")
	}

	cfg.AuthClientSecret = os.Getenv("AUTH_CLIENT_SECRET")
	if cfg.AuthClientSecret == "" {
		missing = append(missing, "AUTH_CLIENT_SECRET")
	}

	cfg.AuthRedirectURL = os.Getenv("AUTH_REDIRECT_URL")
	if cfg.AuthRedirectURL == "" {
		missing = append(missing, "AUTH_REDIRECT_URL")
	}

	cfg.AuthTokenSecret = os.Getenv("AUTH_TOKEN_SECRET")
	if cfg.AuthTokenSecret == "" {
		missing = append(missing, "AUTH_TOKEN_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RoutesFile = getEnvString("ROUTES_FILE", "")
	cfg.TranscribeAPIBase = getEnvString("TRANSCRIBE_API_BASE", "https://api.openai.com/v1")
	cfg.TranscribeAPIKey = getEnvString("TRANSCRIBE_API_KEY", "")
	cfg.TranscribeTimeout = getEnvDuration("TRANSCRIBE_TIMEOUT", 120*time.Second)
	cfg.TranscribeMaxConcurrent = getEnvInt("TRANSCRIBE_MAX_CONCURRENT", 4)
	cfg.TranscribeInterval = getEnvDuration("TRANSCRIBE_INTERVAL", 1*time.Minute)
	cfg.TranscribeDefaultModel = getEnvString("TRANSCRIBE_DEFAULT_MODEL", "whisper-1")
	cfg.ImportTimeout = getEnvDuration("IMPORT_TIMEOUT", 10*time.Second)
	cfg.ImportMaxSize = getEnvInt64("IMPORT_MAX_SIZE", 5242880)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitImport = getEnvInt("RATE_LIMIT_IMPORT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
