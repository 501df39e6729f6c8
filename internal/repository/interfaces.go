// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/authgate/internal/model"
)

// ErrDuplicateExternalID は同一ExternalIDのユーザーが既に存在するため
// 作成できなかったことを示す。並行する初回ログインの競合で発生する。
var ErrDuplicateExternalID = errors.New("repository: user with the same external id already exists")

// UserRepository はExternalIDをキーとするユーザーストアのインターフェース。
// 実装はExternalIDの一意性を原子的に保証しなければならない。
type UserRepository interface {
	// FindByExternalID は指定ExternalIDのユーザーを取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// Create はユーザーを作成する。
	// 同一ExternalIDが既に存在する場合はErrDuplicateExternalIDを返し、既存レコードは変更しない。
	Create(ctx context.Context, user *model.User) error

	// Ping はストアへの疎通を確認する。ヘルスチェックで使用する。
	Ping(ctx context.Context) error
}
