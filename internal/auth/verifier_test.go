package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/authgate/internal/model"
)

// --- モック定義 ---

type mockVerifier struct {
	verifyFn func(ctx context.Context, token string) (*model.VerifiedIdentity, error)
	closed   bool
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (*model.VerifiedIdentity, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, token)
	}
	return &model.VerifiedIdentity{ExternalID: token}, nil
}

func (m *mockVerifier) Close() {
	m.closed = true
}

// --- TimeoutVerifier ---

func TestWithTimeout_ZeroReturnsSameVerifier(t *testing.T) {
	inner := &mockVerifier{}
	if got := WithTimeout(inner, 0); got != IdentityVerifier(inner) {
		t.Errorf("expected inner verifier to be returned as-is, got %T", got)
	}
}

func TestTimeoutVerifier_Success(t *testing.T) {
	v := WithTimeout(&mockVerifier{}, time.Second)

	identity, err := v.Verify(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.ExternalID != "abc123" {
		t.Errorf("ExternalID = %q, want %q", identity.ExternalID, "abc123")
	}
}

// コンテキストを無視してブロックするverifierでも期限で失敗することを検証
func TestTimeoutVerifier_BlockingVerifierTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	inner := &mockVerifier{
		verifyFn: func(ctx context.Context, token string) (*model.VerifiedIdentity, error) {
			<-release
			return &model.VerifiedIdentity{ExternalID: token}, nil
		},
	}
	v := WithTimeout(inner, 20*time.Millisecond)

	start := time.Now()
	identity, err := v.Verify(context.Background(), "abc123")
	if err == nil {
		t.Fatalf("expected timeout error, got identity %+v", identity)
	}
	if !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("expected ErrVerificationFailed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Verify took %v, expected to return near the timeout", elapsed)
	}
}

func TestTimeoutVerifier_WrapsPlainErrors(t *testing.T) {
	inner := &mockVerifier{
		verifyFn: func(ctx context.Context, token string) (*model.VerifiedIdentity, error) {
			return nil, errors.New("upstream unreachable")
		},
	}
	v := WithTimeout(inner, time.Second)

	_, err := v.Verify(context.Background(), "abc123")
	if !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestTimeoutVerifier_KeepsVerificationError(t *testing.T) {
	inner := &mockVerifier{
		verifyFn: func(ctx context.Context, token string) (*model.VerifiedIdentity, error) {
			return nil, ErrVerificationFailed
		},
	}
	v := WithTimeout(inner, time.Second)

	_, err := v.Verify(context.Background(), "abc123")
	if err != ErrVerificationFailed {
		t.Errorf("expected the original error, got %v", err)
	}
}

// --- プロセス共有verifier ---

func TestDefault_Lifecycle(t *testing.T) {
	ShutdownDefault()
	t.Cleanup(ShutdownDefault)

	if _, err := Default(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized before init, got %v", err)
	}

	inner := &mockVerifier{}
	if err := InitDefault(inner, inner); err != nil {
		t.Fatalf("InitDefault returned error: %v", err)
	}

	got, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	if got != IdentityVerifier(inner) {
		t.Errorf("Default returned a different verifier")
	}

	if err := InitDefault(&mockVerifier{}, nil); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}

	ShutdownDefault()
	if !inner.closed {
		t.Error("expected verifier to be closed on shutdown")
	}
	if _, err := Default(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized after shutdown, got %v", err)
	}

	// 停止後は再登録できる
	if err := InitDefault(&mockVerifier{}, nil); err != nil {
		t.Errorf("InitDefault after shutdown returned error: %v", err)
	}
}

func TestInitDefault_NilVerifier(t *testing.T) {
	if err := InitDefault(nil, nil); err == nil {
		t.Error("expected error for nil verifier")
	}
}

func TestShutdownDefault_WithoutInit(t *testing.T) {
	ShutdownDefault()
	ShutdownDefault()
}
