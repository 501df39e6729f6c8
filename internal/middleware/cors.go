package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// 認証ゲートウェイが拒否・プリフライト応答に付与する固定のCORS設定。
var (
	corsAllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsAllowedHeaders = []string{"Authorization", "Content-Type"}
)

// SetCORSHeaders は固定のCORSヘッダーセットを設定する。
// 既に設定されている値は上書きする。
// credentials送信と共存するため、オリジンにワイルドカード(*)は使用しない。
func SetCORSHeaders(h http.Header, allowedOrigin string) {
	h.Set("Access-Control-Allow-Origin", allowedOrigin)
	h.Set("Access-Control-Allow-Methods", strings.Join(corsAllowedMethods, ", "))
	h.Set("Access-Control-Allow-Headers", strings.Join(corsAllowedHeaders, ", "))
	h.Set("Access-Control-Allow-Credentials", "true")
}

// NewCORSMiddleware は指定されたオリジンに対するCORSミドルウェアを返す。
// 通常のレスポンスへのヘッダー付与はgo-chi/corsに任せる。
// OPTIONSはパススルーし、NewPreflightMiddlewareで200応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:     []string{allowedOrigin},
		AllowedMethods:     corsAllowedMethods,
		AllowedHeaders:     corsAllowedHeaders,
		AllowCredentials:   true,
		MaxAge:             86400,
		OptionsPassthrough: true,
	})
}

// NewPreflightMiddleware はOPTIONSリクエストに固定のCORSヘッダーと200で応答する。
// パスや認証の有無に関係なく、後続のハンドラーは呼び出さない。
// それ以外のリクエストでは、4xx・5xxの応答に同じ固定CORSヘッダーを付与する。
// go-chi/corsはOriginが一致しない限りヘッダーを付けないため、ここで補う。
func NewPreflightMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				writePreflight(w, allowedOrigin)
				return
			}
			next.ServeHTTP(&failureCORSWriter{ResponseWriter: w, allowedOrigin: allowedOrigin}, r)
		})
	}
}

// writePreflight はプリフライト応答を書き込む。
func writePreflight(w http.ResponseWriter, allowedOrigin string) {
	SetCORSHeaders(w.Header(), allowedOrigin)
	w.WriteHeader(http.StatusOK)
}

// failureCORSWriter は失敗ステータスのヘッダー送出直前に固定CORSヘッダーを設定する。
type failureCORSWriter struct {
	http.ResponseWriter
	allowedOrigin string
	wroteHeader   bool
}

func (fw *failureCORSWriter) WriteHeader(code int) {
	if !fw.wroteHeader {
		fw.wroteHeader = true
		if code >= http.StatusBadRequest {
			SetCORSHeaders(fw.Header(), fw.allowedOrigin)
		}
	}
	fw.ResponseWriter.WriteHeader(code)
}

func (fw *failureCORSWriter) Write(b []byte) (int, error) {
	fw.wroteHeader = true
	return fw.ResponseWriter.Write(b)
}

func (fw *failureCORSWriter) Unwrap() http.ResponseWriter {
	return fw.ResponseWriter
}
