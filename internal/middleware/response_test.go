package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"

	"github.com/hitoshi/authgate/internal/model"
)

// TestWriteErrorResponse_WritesErrorField は {"error": "..."} 形式で書き込まれることを検証する。
func TestWriteErrorResponse_WritesErrorField(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if len(raw) != 1 {
		t.Errorf("expected exactly one field, got %v", raw)
	}
	if raw["error"] != "Invalid token" {
		t.Errorf("error = %v, want %q", raw["error"], "Invalid token")
	}
}

// TestWriteErrorResponse_FixedMessages はエラー種別ごとの固定メッセージを検証する。
func TestWriteErrorResponse_FixedMessages(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		apiErr     *model.APIError
		want       string
	}{
		{"MissingCredential", http.StatusUnauthorized, model.NewMissingCredentialError(), "Authorization header missing or invalid"},
		{"InvalidToken", http.StatusUnauthorized, model.NewInvalidTokenError(), "Invalid token"},
		{"UpstreamUnavailable", http.StatusInternalServerError, model.NewUpstreamUnavailableError(), "Internal server error"},
		{"RateLimited", http.StatusTooManyRequests, model.NewRateLimitedError(), "Too many requests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteErrorResponse(w, tt.statusCode, tt.apiErr)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Error != tt.want {
				t.Errorf("error = %q, want %q", body.Error, tt.want)
			}
		})
	}
}

// TestWriteInternalServerError は内部エラーが一般的なメッセージで返ることを検証する。
func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Error != "Internal server error" {
		t.Errorf("error = %q, want %q", body.Error, "Internal server error")
	}
}

// 401応答にもCORSヘッダーが付く
func TestWriteUnauthorized_SetsCORSHeaders(t *testing.T) {
	w := httptest.NewRecorder()

	writeUnauthorized(w, testOrigin, model.NewMissingCredentialError())

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, testOrigin)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Error != "Authorization header missing or invalid" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestWriteRateLimitResponse_RetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		limit rate.Limit
		want  string
	}{
		{"30 per minute", rate.Limit(0.5), "2"},
		{"one per second", rate.Limit(1), "1"},
		{"faster than one per second", rate.Limit(10), "1"},
		{"15 per minute", rate.Limit(0.25), "4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			writeRateLimitResponse(w, tt.limit)

			if w.Code != http.StatusTooManyRequests {
				t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
			}
			if got := w.Header().Get("Retry-After"); got != tt.want {
				t.Errorf("Retry-After = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityHeadersMiddleware_SetsAllHeaders(t *testing.T) {
	h := NewSecurityHeadersMiddleware()(statusHandler(http.StatusOK))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	for _, kv := range apiSecurityHeaders {
		if got := w.Header().Get(kv[0]); got != kv[1] {
			t.Errorf("%s = %q, want %q", kv[0], got, kv[1])
		}
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}
