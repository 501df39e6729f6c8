// Package auth は外部IdPが発行したIDトークンの検証を提供する。
// 暗号的な検証自体はjwtライブラリとJWKSに委譲し、このパッケージは
// 検証結果を model.VerifiedIdentity に変換する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/authgate/internal/model"
)

// ErrVerificationFailed はトークン検証の失敗を示す。
// 不正な形式、期限切れ、署名不一致、IdP到達不能、タイムアウトのいずれもこのエラーでラップする。
var ErrVerificationFailed = errors.New("auth: token verification failed")

// IdentityVerifier はBearerトークンを検証するインターフェース。
// tokenには "Bearer " プレフィックスを含めない。
// 成功時は空でないExternalIDを持つVerifiedIdentityを返す。
// 失敗時はErrVerificationFailedをラップしたエラーを返す。リトライは行わない。
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*model.VerifiedIdentity, error)
}

// TimeoutVerifier は検証呼び出しを一定時間で打ち切るIdentityVerifier。
// タイムアウトは検証失敗として扱い、成功とみなすことはない。
type TimeoutVerifier struct {
	next    IdentityVerifier
	timeout time.Duration
}

// WithTimeout はverifierをタイムアウト付きでラップする。
// timeoutが0以下の場合はverifierをそのまま返す。
func WithTimeout(verifier IdentityVerifier, timeout time.Duration) IdentityVerifier {
	if timeout <= 0 {
		return verifier
	}
	return &TimeoutVerifier{next: verifier, timeout: timeout}
}

type verifyResult struct {
	identity *model.VerifiedIdentity
	err      error
}

// Verify はタイムアウト付きでトークンを検証する。
// 下位のverifierがコンテキストを無視してブロックした場合でも、期限到達で失敗を返す。
func (v *TimeoutVerifier) Verify(ctx context.Context, token string) (*model.VerifiedIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	ch := make(chan verifyResult, 1)
	go func() {
		identity, err := v.next.Verify(ctx, token)
		ch <- verifyResult{identity: identity, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, asVerificationError(r.err)
		}
		return r.identity, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, ctx.Err())
	}
}

// asVerificationError はerrがErrVerificationFailedでなければラップする。
func asVerificationError(err error) error {
	if errors.Is(err, ErrVerificationFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
}

// compile-time interface check
var _ IdentityVerifier = (*TimeoutVerifier)(nil)
