package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/authgate/internal/model"
)

const (
	firebaseIssuerPrefix = "https://securetoken.google.com/"
	maxSubjectLength     = 128
)

// FirebaseConfig はFirebase IDトークン検証の設定。
type FirebaseConfig struct {
	// ProjectID はFirebaseプロジェクトID。aud クレームと照合する。
	ProjectID string

	// Issuer は iss クレームの期待値。空の場合は https://securetoken.google.com/<ProjectID>。
	Issuer string

	// JWKSURL が設定されている場合はOIDCディスカバリを行わずこのURLから鍵を取得する。
	JWKSURL string

	// Leeway は時刻系クレームの許容誤差。0なら誤差を許容しない。
	Leeway time.Duration

	// HTTPClient はOIDCディスカバリに使用する。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client

	// Keyfunc が設定されている場合はJWKSを取得せずこの関数で検証鍵を解決する。
	// テストとエミュレーター用。
	Keyfunc jwt.Keyfunc
}

func (c FirebaseConfig) issuer() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return firebaseIssuerPrefix + c.ProjectID
}

// FirebaseVerifier はFirebase AuthenticationのIDトークンを検証する。
// RS256署名、iss、aud、exp、iat、auth_time、sub を検証する。
type FirebaseVerifier struct {
	issuer   string
	audience string
	leeway   time.Duration
	keyfunc  jwt.Keyfunc
	stop     context.CancelFunc
}

// discoveryMetadata はOIDCディスカバリドキュメントのうち使用する項目。
type discoveryMetadata struct {
	Issuer  string `json:"issuer"`
	JwksURI string `json:"jwks_uri"`
}

// NewFirebaseVerifier はFirebaseVerifierを生成する。
// JWKSURLが未設定の場合は発行者のOIDCディスカバリからjwks_uriを取得する。
// 鍵はバックグラウンドで自動更新され、Closeで停止する。
func NewFirebaseVerifier(ctx context.Context, cfg FirebaseConfig) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project ID is required")
	}

	if cfg.Leeway < 0 {
		return nil, fmt.Errorf("token leeway must not be negative, got %s", cfg.Leeway)
	}

	v := &FirebaseVerifier{
		issuer:   cfg.issuer(),
		audience: cfg.ProjectID,
		leeway:   cfg.Leeway,
		stop:     func() {},
	}

	if cfg.Keyfunc != nil {
		v.keyfunc = cfg.Keyfunc
		return v, nil
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		discovered, err := discoverJWKSURL(ctx, cfg.HTTPClient, v.issuer)
		if err != nil {
			return nil, err
		}
		jwksURL = discovered
	}

	// 鍵の自動更新はサーバーの生存期間に合わせるため、呼び出し元のctxとは独立させる
	refreshCtx, cancel := context.WithCancel(context.Background())
	kf, err := keyfunc.NewDefaultCtx(refreshCtx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	v.keyfunc = kf.Keyfunc
	v.stop = cancel
	return v, nil
}

// discoverJWKSURL はOIDCディスカバリでjwks_uriを取得する。
func discoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}

	var meta discoveryMetadata
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return "", errors.New("discovery incomplete: missing jwks_uri")
	}

	return meta.JwksURI, nil
}

// Verify はIDトークンを検証し、VerifiedIdentityを返す。
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*model.VerifiedIdentity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrVerificationFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.leeway),
	)

	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, claims, v.keyfunc); err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrVerificationFailed, err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrVerificationFailed)
	}
	if len(sub) > maxSubjectLength {
		return nil, fmt.Errorf("%w: sub longer than %d characters", ErrVerificationFailed, maxSubjectLength)
	}

	if authTime, ok := claims["auth_time"].(float64); ok {
		if time.Unix(int64(authTime), 0).After(time.Now().Add(v.leeway)) {
			return nil, fmt.Errorf("%w: auth_time in the future", ErrVerificationFailed)
		}
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	copied := make(map[string]any, len(claims))
	for k, c := range claims {
		copied[k] = c
	}

	return &model.VerifiedIdentity{
		ExternalID:  sub,
		Email:       email,
		DisplayName: name,
		Claims:      copied,
	}, nil
}

// Close はJWKSの自動更新を停止する。
func (v *FirebaseVerifier) Close() {
	v.stop()
}

// compile-time interface check
var _ IdentityVerifier = (*FirebaseVerifier)(nil)
