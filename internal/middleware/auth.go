package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/telemetry"
)

const bearerPrefix = "Bearer "

var errEmptyIdentity = errors.New("verifier returned an identity without external id")

// IdentityVerifier はトークン検証に必要なインターフェース。
// auth.IdentityVerifierの部分集合として定義する。
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*model.VerifiedIdentity, error)
}

// AuthConfig は認証ミドルウェアの設定。
type AuthConfig struct {
	// Verifier はトークン検証に使用する。タイムアウトはVerifier側で制限する。
	Verifier IdentityVerifier

	// AllowedOrigin は拒否・プリフライト応答のAccess-Control-Allow-Originに設定する。
	AllowedOrigin string

	// Metrics はnilの場合は記録しない。
	Metrics metrics.MetricsCollector
}

// authState は1リクエストの認証処理における状態。
type authState int

const (
	stateStart authState = iota
	statePreflightBypass
	stateHeaderCheck
	stateTokenVerify
	stateContextAttached
	stateRejected
)

func (s authState) String() string {
	switch s {
	case stateStart:
		return "START"
	case statePreflightBypass:
		return "PREFLIGHT_BYPASS"
	case stateHeaderCheck:
		return "HEADER_CHECK"
	case stateTokenVerify:
		return "TOKEN_VERIFY"
	case stateContextAttached:
		return "CONTEXT_ATTACHED"
	case stateRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// authPass は1リクエスト分の状態遷移を保持する。リクエスト間で共有しない。
type authPass struct {
	state    authState
	token    string
	identity *model.VerifiedIdentity
	reject   *model.APIError
	reason   string
}

// NewAuthMiddleware はBearerトークンを検証し、検証済みの呼び出し元を
// リクエストコンテキストに注入するミドルウェアを返す。
//
// 状態遷移:
//
//	START → PREFLIGHT_BYPASS                 (OPTIONS)
//	START → HEADER_CHECK → REJECTED          (ヘッダー欠落・Bearer以外)
//	HEADER_CHECK → TOKEN_VERIFY → CONTEXT_ATTACHED | REJECTED
//
// REJECTEDとPREFLIGHT_BYPASSでは固定のCORSヘッダーを付与し、後続のハンドラーは呼び出さない。
// 検証失敗の原因はログにのみ記録し、クライアントには返さない。
func NewAuthMiddleware(cfg AuthConfig) func(next http.Handler) http.Handler {
	mc := cfg.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := &authPass{state: stateStart}

			for {
				switch p.state {
				case stateStart:
					if r.Method == http.MethodOptions {
						p.state = statePreflightBypass
					} else {
						p.state = stateHeaderCheck
					}

				case statePreflightBypass:
					writePreflight(w, cfg.AllowedOrigin)
					return

				case stateHeaderCheck:
					header := r.Header.Get("Authorization")
					if !strings.HasPrefix(header, bearerPrefix) {
						p.reject = model.NewMissingCredentialError()
						p.reason = metrics.ReasonMissingCredential
						p.state = stateRejected
						continue
					}
					p.token = strings.TrimPrefix(header, bearerPrefix)
					p.state = stateTokenVerify

				case stateTokenVerify:
					identity, err := verify(r.Context(), cfg.Verifier, mc, p.token)
					if err != nil {
						slog.Warn("token verification failed",
							slog.String("method", r.Method),
							slog.String("path", r.URL.Path),
							slog.String("error", err.Error()),
						)
						p.reject = model.NewInvalidTokenError()
						p.reason = metrics.ReasonInvalidToken
						p.state = stateRejected
						continue
					}
					p.identity = identity
					p.state = stateContextAttached

				case stateContextAttached:
					mc.RecordAuthSuccess()
					annotateUID(r.Context(), p.identity.ExternalID)
					ctx := ContextWithIdentity(r.Context(), p.identity)
					next.ServeHTTP(w, r.WithContext(ctx))
					return

				case stateRejected:
					slog.Debug("request rejected",
						slog.String("state", p.state.String()),
						slog.String("reason", p.reason),
					)
					mc.RecordAuthFailure(p.reason)
					writeUnauthorized(w, cfg.AllowedOrigin, p.reject)
					return
				}
			}
		})
	}
}

// verify はトークン検証をスパンとレイテンシ計測付きで実行する。
// 空でないExternalIDを持たない結果は失敗として扱う。
func verify(ctx context.Context, v IdentityVerifier, mc metrics.MetricsCollector, token string) (*model.VerifiedIdentity, error) {
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "auth.VerifyToken")
	defer span.End()

	start := time.Now()
	identity, err := v.Verify(ctx, token)
	mc.RecordVerifyLatency(time.Since(start))

	if err == nil && (identity == nil || identity.ExternalID == "") {
		err = errEmptyIdentity
	}
	if err != nil {
		span.SetStatus(codes.Error, "verification failed")
		return nil, err
	}

	span.SetAttributes(attribute.Bool("auth.verified", true))
	return identity, nil
}
