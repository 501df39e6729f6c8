package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/authgate/internal/model"
)

const defaultRedisKeyPrefix = "authgate:users:"

// RedisUserRepo はRedisを使用したユーザーリポジトリ。
// キーは <prefix><external_id> で、値はユーザーのJSON表現。
// 作成はSETNXで行うため、同一ExternalIDの並行作成は1件だけが成功する。
type RedisUserRepo struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisUserRepo はRedisUserRepoを生成する。
// keyPrefixが空の場合は既定のプレフィックスを使用する。
func NewRedisUserRepo(client *redis.Client, keyPrefix string) *RedisUserRepo {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisUserRepo{client: client, keyPrefix: keyPrefix}
}

// redisUser はRedisに保存するユーザーの表現。
type redisUser struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Provider   string    `json:"provider"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r *RedisUserRepo) key(externalID string) string {
	return r.keyPrefix + externalID
}

// FindByExternalID は指定ExternalIDのユーザーを取得する。見つからない場合はnilを返す。
func (r *RedisUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	data, err := r.client.Get(ctx, r.key(externalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user from redis: %w", err)
	}

	var ru redisUser
	if err := json.Unmarshal(data, &ru); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	return &model.User{
		ID:         ru.ID,
		ExternalID: ru.ExternalID,
		Email:      ru.Email,
		Name:       ru.Name,
		Provider:   ru.Provider,
		CreatedAt:  ru.CreatedAt,
	}, nil
}

// Create はユーザーを作成する。キーが既に存在する場合はErrDuplicateExternalIDを返す。
func (r *RedisUserRepo) Create(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(redisUser{
		ID:         user.ID,
		ExternalID: user.ExternalID,
		Email:      user.Email,
		Name:       user.Name,
		Provider:   user.Provider,
		CreatedAt:  user.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	// 有効期限なし。ユーザーは削除されない。
	ok, err := r.client.SetNX(ctx, r.key(user.ExternalID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert user into redis: %w", err)
	}
	if !ok {
		return ErrDuplicateExternalID
	}

	return nil
}

// Ping はRedisへの疎通を確認する。
func (r *RedisUserRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// compile-time interface check
var _ UserRepository = (*RedisUserRepo)(nil)
