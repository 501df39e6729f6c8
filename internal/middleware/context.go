// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/hitoshi/authgate/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// identityContextKey は検証済みの呼び出し元を格納するキー。
	identityContextKey = contextKey("verified_identity")

	// requestLogContextKey はアクセスログに追記する項目を格納するキー。
	requestLogContextKey = contextKey("request_log")
)

// IdentityFromContext はリクエストコンテキストから検証済みの呼び出し元を取得する。
// 認証ミドルウェアを通過したリクエストでのみ値が存在する。
func IdentityFromContext(ctx context.Context) (*model.VerifiedIdentity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.VerifiedIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// ContextWithIdentity はコンテキストに検証済みの呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.VerifiedIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// requestLog はロギングミドルウェアが生成し、内側のミドルウェアが書き込む。
// 内側で派生したコンテキストは外側から見えないため、ポインタ経由で受け渡す。
type requestLog struct {
	uid string
}

func contextWithRequestLog(ctx context.Context, rl *requestLog) context.Context {
	return context.WithValue(ctx, requestLogContextKey, rl)
}

// annotateUID はアクセスログに呼び出し元のuidを記録する。
// ロギングミドルウェアを経由していない場合は何もしない。
func annotateUID(ctx context.Context, uid string) {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		rl.uid = uid
	}
}
