// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/google/uuid"
)

// 既定のプロバイダー名。サインインプロバイダーのクレームが無い場合に使用する。
const ProviderUnknown = "unknown"

// User はゲートウェイが管理するローカルユーザーを表す。
// ExternalIDごとに1件だけ作成され、作成後に更新・削除されることはない。
type User struct {
	ID         string
	ExternalID string
	Email      string
	Name       string
	Provider   string // "google", "password", "unknown" 等
	CreatedAt  time.Time
}

// NewUser は新しいローカルユーザーを生成する。
// IDはUUIDで採番し、CreatedAtには引数の時刻を設定する。
func NewUser(externalID, email, name, provider string, now time.Time) *User {
	return &User{
		ID:         uuid.New().String(),
		ExternalID: externalID,
		Email:      email,
		Name:       name,
		Provider:   provider,
		CreatedAt:  now,
	}
}

// VerifiedIdentity はIdPで検証済みの呼び出し元を表す。
// Identity Verifierのみが生成し、生成後は変更しない。
// 有効期間は1リクエストに限られる。
type VerifiedIdentity struct {
	ExternalID  string
	Email       string
	DisplayName string
	Claims      map[string]any
}
