package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/authgate/internal/model"
)

// MemoryUserRepo はプロセス内メモリを使用したユーザーリポジトリ。
// 開発環境とテストでの利用を想定している。プロセス終了で内容は失われる。
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[string]model.User
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]model.User)}
}

// FindByExternalID は指定ExternalIDのユーザーのコピーを返す。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByExternalID(_ context.Context, externalID string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[externalID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// Create はユーザーを作成する。既に存在する場合はErrDuplicateExternalIDを返す。
func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ExternalID]; exists {
		return ErrDuplicateExternalID
	}
	r.users[user.ExternalID] = *user
	return nil
}

// Ping は常に成功する。
func (r *MemoryUserRepo) Ping(_ context.Context) error {
	return nil
}

// Count は保存されているユーザー数を返す。テスト用。
func (r *MemoryUserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
