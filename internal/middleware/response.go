package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/hitoshi/authgate/internal/model"
)

// ErrorResponseBody はエラー応答のJSONボディ。
// クライアントには固定メッセージだけを返し、原因はログ側に残す。
type ErrorResponseBody struct {
	Error string `json:"error"`
}

// WriteErrorResponse はapiErrの固定メッセージを {"error": "..."} として書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{Error: apiErr.Message})
}

// WriteInternalServerError は500 {"error":"Internal server error"} を書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// writeUnauthorized は認証拒否の401を書き込む。
// ブラウザがエラー内容を読めるよう、拒否応答にもCORSヘッダーを付ける。
func writeUnauthorized(w http.ResponseWriter, allowedOrigin string, apiErr *model.APIError) {
	SetCORSHeaders(w.Header(), allowedOrigin)
	WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
}

// writeRateLimitResponse は429を書き込む。
// Retry-Afterにはトークン1個が補充されるまでの秒数（切り上げ、最小1）を設定する。
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(limit)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
