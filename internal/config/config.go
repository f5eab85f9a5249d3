// Package config は環境変数ベースの設定読み込みを提供する。
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

	// Identity Backend
	IdentityURL        string
	IdentityAnonKey    string
	IdentityServiceKey string

	// Blob Store
	StorageURL   string
	AvatarBucket string
	UploadBucket string

	// Avatar
	DefaultAvatarURL string
	MirrorTimeout    time.Duration
	MirrorMaxSize    int64

	// OAuth
	MobileRedirectURL string // サインイン完了後のモバイルディープリンク
	ExchangeCodeTTL   time.Duration

	// OCR
	OCRServiceURL string

	// Rate Limit（req/min/キー）
	RateLimitGeneral int
	RateLimitAuth    int

	// Worker
	CleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string
	CookieMaxAge int

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

	cfg.IdentityURL = os.Getenv("IDENTITY_BACKEND_URL")
	if cfg.IdentityURL == "" {
		missing = append(missing, "IDENTITY_BACKEND_URL")
	}

	cfg.IdentityAnonKey = os.Getenv("IDENTITY_ANON_KEY")
	if cfg.IdentityAnonKey == "" {
		missing = append(missing, "IDENTITY_ANON_KEY")
	}

	cfg.IdentityServiceKey = os.Getenv("IDENTITY_SERVICE_KEY")
	if cfg.IdentityServiceKey == "" {
		missing = append(missing, "IDENTITY_SERVICE_KEY")
	}

	cfg.MobileRedirectURL = os.Getenv("MOBILE_REDIRECT_URL")
	if cfg.MobileRedirectURL == "" {
		missing = append(missing, "MOBILE_REDIRECT_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	// Blob StoreはSupabase系のBaaSでは同一ホストのため、既定でIdentityと同じベースURLを使う
	cfg.StorageURL = getEnvString("STORAGE_URL", cfg.IdentityURL)
	cfg.AvatarBucket = getEnvString("AVATAR_BUCKET", "avatars")
	cfg.UploadBucket = getEnvString("UPLOAD_BUCKET", "uploads")
	cfg.DefaultAvatarURL = getEnvString("DEFAULT_AVATAR_URL", "https://example.com/default-avatar.png")
	cfg.MirrorTimeout = getEnvDuration("AVATAR_MIRROR_TIMEOUT", 10*time.Second)
	cfg.MirrorMaxSize = getEnvInt64("AVATAR_MIRROR_MAX_SIZE", 5242880)
	cfg.ExchangeCodeTTL = getEnvDuration("EXCHANGE_CODE_TTL", 60*time.Second)
	cfg.OCRServiceURL = getEnvString("OCR_SERVICE_URL", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 20)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "4000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CookieMaxAge = getEnvInt("COOKIE_MAX_AGE", 86400)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:8081")

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
