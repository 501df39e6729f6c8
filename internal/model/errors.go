package model

import "fmt"

// APIError はクライアントへ返すエラーを表す。
// レスポンスボディには Message のみを {"error": "..."} の形で出力する。
// Code はログとメトリクスのラベルに使用する。
type APIError struct {
	Code    string // エラーコード
	Message string // クライアント向けメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingCredential   = "MISSING_CREDENTIAL"
	ErrCodeVerificationFailure = "VERIFICATION_FAILURE"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeRateLimited         = "RATE_LIMITED"
)

// NewMissingCredentialError はAuthorizationヘッダーの欠落・不正を表すエラーを生成する。
// どのチェックで失敗したかはクライアントに伝えない。
func NewMissingCredentialError() *APIError {
	return &APIError{
		Code:    ErrCodeMissingCredential,
		Message: "Authorization header missing or invalid",
	}
}

// NewInvalidTokenError はトークン検証失敗を表すエラーを生成する。
// 失敗原因（期限切れ、署名不一致、IdP到達不能など）はサーバーログにのみ記録する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeVerificationFailure,
		Message: "Invalid token",
	}
}

// NewUpstreamUnavailableError はユーザーストアに到達できない場合のエラーを生成する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:    ErrCodeUpstreamUnavailable,
		Message: "Internal server error",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "Internal server error",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:    ErrCodeRateLimited,
		Message: "Too many requests",
	}
}
