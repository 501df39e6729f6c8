package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
)

// UserProvisioner はログインハンドラーが必要とするプロビジョニングサービスのインターフェース。
type UserProvisioner interface {
	// EnsureUser はExternalIDに対応するローカルユーザーを返す。
	// 存在しない場合は作成する。同時作成時は最初に書き込まれたレコードを返す。
	EnsureUser(ctx context.Context, externalID, email, displayName, provider string) (*model.User, error)
}

// loginResponse はPOST /api/auth/login のレスポンス。
type loginResponse struct {
	ID       string `json:"id"`
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// messageResponse は {"message": "..."} 形式のレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// AuthHandler はログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	provisioner UserProvisioner
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(provisioner UserProvisioner) *AuthHandler {
	return &AuthHandler{
		provisioner: provisioner,
	}
}

// Login は検証済みIDに対応するローカルユーザーを確保して返す。
// 認証ミドルウェアの後段に配置する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		// 認証ミドルウェアを経由しない構成ミスに備える
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		return
	}

	provider := ProviderFromClaims(identity.Claims)

	user, err := h.provisioner.EnsureUser(r.Context(), identity.ExternalID, identity.Email, identity.DisplayName, provider)
	if err != nil {
		slog.Error("failed to ensure user",
			slog.String("uid", identity.ExternalID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewUpstreamUnavailableError())
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		ID:       user.ID,
		UID:      user.ExternalID,
		Email:    user.Email,
		Name:     user.Name,
		Provider: user.Provider,
	})
}

// Logout はログアウトを受け付ける。
// サーバー側にセッションを持たないため、認証なしで常に成功を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// ProviderFromClaims はクレームの firebase.sign_in_provider からプロバイダー名を取り出す。
// 取得できない場合は "unknown" を返す。
func ProviderFromClaims(claims map[string]any) string {
	fb, ok := claims["firebase"].(map[string]any)
	if !ok {
		return model.ProviderUnknown
	}
	provider, ok := fb["sign_in_provider"].(string)
	if !ok || provider == "" {
		return model.ProviderUnknown
	}
	return provider
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
