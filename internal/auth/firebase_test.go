package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testProjectID = "authgate-test"

// testSigner はテスト用のRSA鍵でFirebase形式のIDトークンを発行する。
type testSigner struct {
	key *rsa.PrivateKey
	kid string
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate rsa key: %v", err)
	}
	return &testSigner{key: key, kid: "test-kid"}
}

func (s *testSigner) keyfunc(token *jwt.Token) (any, error) {
	if kid, _ := token.Header["kid"].(string); kid != s.kid {
		return nil, errors.New("unknown kid")
	}
	return &s.key.PublicKey, nil
}

// validClaims はデフォルトで検証に通るクレームを返す。
func validClaims(sub string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":       firebaseIssuerPrefix + testProjectID,
		"aud":       testProjectID,
		"sub":       sub,
		"iat":       now.Add(-time.Minute).Unix(),
		"exp":       now.Add(time.Hour).Unix(),
		"auth_time": now.Add(-time.Minute).Unix(),
		"email":     "a@x.com",
		"name":      "A",
		"firebase": map[string]any{
			"sign_in_provider": "password",
		},
	}
}

func (s *testSigner) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	signed, err := token.SignedString(s.key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newTestVerifier(t *testing.T, s *testSigner) *FirebaseVerifier {
	t.Helper()
	v, err := NewFirebaseVerifier(context.Background(), FirebaseConfig{
		ProjectID: testProjectID,
		Keyfunc:   s.keyfunc,
	})
	if err != nil {
		t.Fatalf("NewFirebaseVerifier returned error: %v", err)
	}
	t.Cleanup(v.Close)
	return v
}

func TestNewFirebaseVerifier_RequiresProjectID(t *testing.T) {
	_, err := NewFirebaseVerifier(context.Background(), FirebaseConfig{})
	if err == nil {
		t.Fatal("expected error for empty project ID")
	}
}

func TestFirebaseVerifier_Verify_Valid(t *testing.T) {
	s := newTestSigner(t)
	v := newTestVerifier(t, s)

	identity, err := v.Verify(context.Background(), s.sign(t, validClaims("abc123")))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.ExternalID != "abc123" {
		t.Errorf("ExternalID = %q, want %q", identity.ExternalID, "abc123")
	}
	if identity.Email != "a@x.com" {
		t.Errorf("Email = %q, want %q", identity.Email, "a@x.com")
	}
	if identity.DisplayName != "A" {
		t.Errorf("DisplayName = %q, want %q", identity.DisplayName, "A")
	}
	fb, ok := identity.Claims["firebase"].(map[string]any)
	if !ok {
		t.Fatalf("firebase claim missing: %+v", identity.Claims)
	}
	if fb["sign_in_provider"] != "password" {
		t.Errorf("sign_in_provider = %v, want %q", fb["sign_in_provider"], "password")
	}
}

func TestFirebaseVerifier_Verify_OptionalClaimsAbsent(t *testing.T) {
	s := newTestSigner(t)
	v := newTestVerifier(t, s)

	claims := validClaims("no-email")
	delete(claims, "email")
	delete(claims, "name")

	identity, err := v.Verify(context.Background(), s.sign(t, claims))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.Email != "" || identity.DisplayName != "" {
		t.Errorf("expected empty email and name, got %q / %q", identity.Email, identity.DisplayName)
	}
}

func TestFirebaseVerifier_Verify_Rejects(t *testing.T) {
	s := newTestSigner(t)
	other := newTestSigner(t)
	v := newTestVerifier(t, s)
	now := time.Now()

	tests := []struct {
		name  string
		token func() string
	}{
		{"empty token", func() string { return "" }},
		{"garbage", func() string { return "not-a-jwt" }},
		{"expired", func() string {
			c := validClaims("abc123")
			c["exp"] = now.Add(-time.Hour).Unix()
			return s.sign(t, c)
		}},
		{"missing exp", func() string {
			c := validClaims("abc123")
			delete(c, "exp")
			return s.sign(t, c)
		}},
		{"issued in the future", func() string {
			c := validClaims("abc123")
			c["iat"] = now.Add(time.Hour).Unix()
			return s.sign(t, c)
		}},
		{"auth_time in the future", func() string {
			c := validClaims("abc123")
			c["auth_time"] = now.Add(time.Hour).Unix()
			return s.sign(t, c)
		}},
		{"wrong issuer", func() string {
			c := validClaims("abc123")
			c["iss"] = "https://securetoken.google.com/other"
			return s.sign(t, c)
		}},
		{"wrong audience", func() string {
			c := validClaims("abc123")
			c["aud"] = "other"
			return s.sign(t, c)
		}},
		{"empty sub", func() string {
			return s.sign(t, validClaims(""))
		}},
		{"sub too long", func() string {
			return s.sign(t, validClaims(strings.Repeat("x", maxSubjectLength+1)))
		}},
		{"signed by another key", func() string {
			return other.sign(t, validClaims("abc123"))
		}},
		{"HS256", func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("abc123"))
			token.Header["kid"] = s.kid
			signed, err := token.SignedString([]byte("secret"))
			if err != nil {
				t.Fatalf("failed to sign: %v", err)
			}
			return signed
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := v.Verify(context.Background(), tt.token())
			if err == nil {
				t.Fatalf("expected error, got identity %+v", identity)
			}
			if !errors.Is(err, ErrVerificationFailed) {
				t.Errorf("expected ErrVerificationFailed, got %v", err)
			}
		})
	}
}

// 期限切れ直後のトークンはLeeway以内なら受理し、Leeway 0なら拒否する
func TestFirebaseVerifier_Verify_Leeway(t *testing.T) {
	s := newTestSigner(t)
	c := validClaims("abc123")
	c["exp"] = time.Now().Add(-30 * time.Second).Unix()
	token := s.sign(t, c)

	tests := []struct {
		name    string
		leeway  time.Duration
		wantErr bool
	}{
		{"zero leeway rejects", 0, true},
		{"leeway shorter than skew rejects", 10 * time.Second, true},
		{"leeway covers skew accepts", time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewFirebaseVerifier(context.Background(), FirebaseConfig{
				ProjectID: testProjectID,
				Leeway:    tt.leeway,
				Keyfunc:   s.keyfunc,
			})
			if err != nil {
				t.Fatalf("NewFirebaseVerifier returned error: %v", err)
			}
			t.Cleanup(v.Close)

			_, err = v.Verify(context.Background(), token)
			if tt.wantErr && !errors.Is(err, ErrVerificationFailed) {
				t.Errorf("expected ErrVerificationFailed, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestNewFirebaseVerifier_NegativeLeeway(t *testing.T) {
	_, err := NewFirebaseVerifier(context.Background(), FirebaseConfig{
		ProjectID: testProjectID,
		Leeway:    -time.Second,
		Keyfunc:   func(*jwt.Token) (any, error) { return nil, nil },
	})
	if err == nil {
		t.Fatal("expected error for negative leeway")
	}
}

func TestFirebaseVerifier_Verify_CanceledContext(t *testing.T) {
	s := newTestSigner(t)
	v := newTestVerifier(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, s.sign(t, validClaims("abc123")))
	if !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestFirebaseVerifier_CustomIssuer(t *testing.T) {
	s := newTestSigner(t)
	v, err := NewFirebaseVerifier(context.Background(), FirebaseConfig{
		ProjectID: testProjectID,
		Issuer:    "http://emulator.local/" + testProjectID,
		Keyfunc:   s.keyfunc,
	})
	if err != nil {
		t.Fatalf("NewFirebaseVerifier returned error: %v", err)
	}

	c := validClaims("abc123")
	c["iss"] = "http://emulator.local/" + testProjectID
	if _, err := v.Verify(context.Background(), s.sign(t, c)); err != nil {
		t.Errorf("Verify returned error: %v", err)
	}
}

// jwksHandler はsignerの公開鍵をJWKSとして返すハンドラを生成する。
func jwksHandler(s *testSigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pub := s.key.PublicKey
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{{
				"kty": "RSA",
				"kid": s.kid,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}
}

func TestNewFirebaseVerifier_JWKSURL(t *testing.T) {
	s := newTestSigner(t)
	srv := httptest.NewServer(jwksHandler(s))
	defer srv.Close()

	v, err := NewFirebaseVerifier(context.Background(), FirebaseConfig{
		ProjectID: testProjectID,
		JWKSURL:   srv.URL,
	})
	if err != nil {
		t.Fatalf("NewFirebaseVerifier returned error: %v", err)
	}
	defer v.Close()

	identity, err := v.Verify(context.Background(), s.sign(t, validClaims("jwks-user")))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.ExternalID != "jwks-user" {
		t.Errorf("ExternalID = %q, want %q", identity.ExternalID, "jwks-user")
	}
}

func TestNewFirebaseVerifier_Discovery(t *testing.T) {
	s := newTestSigner(t)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                srv.URL,
			"jwks_uri":                              srv.URL + "/jwks",
			"response_types_supported":              []string{"id_token"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/jwks", jwksHandler(s))

	v, err := NewFirebaseVerifier(context.Background(), FirebaseConfig{
		ProjectID:  testProjectID,
		Issuer:     srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewFirebaseVerifier returned error: %v", err)
	}
	defer v.Close()

	c := validClaims("discovered")
	c["iss"] = srv.URL
	if _, err := v.Verify(context.Background(), s.sign(t, c)); err != nil {
		t.Errorf("Verify returned error: %v", err)
	}
}

func TestNewFirebaseVerifier_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewFirebaseVerifier(context.Background(), FirebaseConfig{
		ProjectID: testProjectID,
		Issuer:    srv.URL,
	})
	if err == nil {
		t.Fatal("expected discovery error")
	}
}
