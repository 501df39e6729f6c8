package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// ユーザーストアの種類
const (
	UserStorePostgres = "postgres"
	UserStoreRedis    = "redis"
	UserStoreMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Firebase
	FirebaseProjectID string        `env:"FIREBASE_PROJECT_ID"`
	FirebaseIssuer    string        `env:"FIREBASE_ISSUER"`
	FirebaseJWKSURL   string        `env:"FIREBASE_JWKS_URL"`
	VerifyTimeout     time.Duration `env:"VERIFY_TIMEOUT,default=5s"`
	TokenLeeway       time.Duration `env:"TOKEN_LEEWAY,default=60s"`

	// User store
	UserStore      string `env:"USER_STORE,default=postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=authgate:users:"`

	// Rate Limit（req/min）
	RateLimitLogin int `env:"RATE_LIMIT_LOGIN,default=30"`

	// Server
	ServerPort string `env:"SERVER_PORT,default=8080"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN,default=http://localhost:5173"`

	// Logging
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// Tracing
	OTelEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME,default=authgate"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定の変数をすべて列挙したエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment variables: %w", err)
	}

	// Required fields
	var missing []string

	if cfg.FirebaseProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}
	if cfg.UserStore == UserStorePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.UserStore {
	case UserStorePostgres, UserStoreRedis, UserStoreMemory:
	default:
		return fmt.Errorf("unsupported USER_STORE %q: must be one of postgres, redis, memory", c.UserStore)
	}
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("VERIFY_TIMEOUT must be positive, got %s", c.VerifyTimeout)
	}
	if c.TokenLeeway < 0 {
		return fmt.Errorf("TOKEN_LEEWAY must not be negative, got %s", c.TokenLeeway)
	}
	return nil
}
