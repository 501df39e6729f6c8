package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/authgate/internal/auth"
	"github.com/hitoshi/authgate/internal/config"
	"github.com/hitoshi/authgate/internal/database"
	"github.com/hitoshi/authgate/internal/handler"
	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/repository"
	"github.com/hitoshi/authgate/internal/security"
	"github.com/hitoshi/authgate/internal/user"
)

// discoveryTimeout はOIDCディスカバリとJWKS取得のHTTPタイムアウト。
const discoveryTimeout = 10 * time.Second

// openUserStore はUSER_STOREに応じたユーザーストアを開き、疎通を確認する。
// 戻り値のcloseはストアの接続を解放する。
func openUserStore(ctx context.Context, cfg *config.Config) (repository.UserRepository, func(), error) {
	switch cfg.UserStore {
	case config.UserStorePostgres:
		db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return repository.NewPostgresUserRepo(db), func() { db.Close() }, nil

	case config.UserStoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
		return repository.NewRedisUserRepo(client, cfg.RedisKeyPrefix), func() { client.Close() }, nil

	case config.UserStoreMemory:
		slog.Warn("using in-memory user store; users are lost on restart")
		return repository.NewMemoryUserRepo(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported user store %q", cfg.UserStore)
	}
}

// initVerifier はFirebase IDトークン検証器をプロセス全体のverifierとして登録し、
// 検証タイムアウトを適用したverifierを返す。
// 解放はauth.ShutdownDefaultで行う。
func initVerifier(ctx context.Context, cfg *config.Config) (auth.IdentityVerifier, error) {
	fv, err := auth.NewFirebaseVerifier(ctx, auth.FirebaseConfig{
		ProjectID:  cfg.FirebaseProjectID,
		Issuer:     cfg.FirebaseIssuer,
		JWKSURL:    cfg.FirebaseJWKSURL,
		Leeway:     cfg.TokenLeeway,
		HTTPClient: &http.Client{Timeout: discoveryTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	if err := auth.InitDefault(fv, fv); err != nil {
		fv.Close()
		return nil, fmt.Errorf("failed to register token verifier: %w", err)
	}

	v, err := auth.Default()
	if err != nil {
		return nil, err
	}

	slog.Info("token verifier initialized",
		slog.String("project_id", cfg.FirebaseProjectID),
		slog.Duration("verify_timeout", cfg.VerifyTimeout),
	)

	return auth.WithTimeout(v, cfg.VerifyTimeout), nil
}

// gateway はHTTPハンドラーとそのバックグラウンド資源をまとめたもの。
type gateway struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// newGateway は検証器・ユーザーストア・メトリクスレジストリからルーターを構築する。
func newGateway(cfg *config.Config, verifier auth.IdentityVerifier, userRepo repository.UserRepository, reg *prometheus.Registry) *gateway {
	mc := metrics.NewCollector(reg)
	rl := middleware.NewRateLimiter(middleware.LoginRateLimiterConfig(cfg.RateLimitLogin))
	userService := user.NewService(userRepo, security.NewProfileSanitizer(), mc)

	router := handler.NewRouter(&handler.RouterDeps{
		Verifier:          verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		Logger:            slog.Default(),
		Metrics:           mc,
		Provisioner:       userService,
		HealthChecker:     userRepo,
		MetricsHandler:    metrics.Handler(reg),
	})

	return &gateway{handler: router, rateLimiter: rl}
}

// Handler はルーターを返す。
func (g *gateway) Handler() http.Handler {
	return g.handler
}

// Close はレートリミッターのクリーンアップを停止する。
func (g *gateway) Close() {
	g.rateLimiter.Stop()
}
