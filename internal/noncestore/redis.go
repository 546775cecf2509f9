// Package noncestore rejects replayed webhooks and API calls by tracking
// consumed nonces with a TTL.
package noncestore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keys consumed nonces as "nonce:{scope}:{nonce}" with an expiry,
// so entries vanish once replays are no longer accepted anyway.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func nonceKey(scope, nonce string) string {
	return fmt.Sprintf("nonce:%s:%s", scope, nonce)
}

// IsUnique reports whether the nonce has never been consumed in this scope.
func (s *RedisStore) IsUnique(ctx context.Context, scope, nonce string) (bool, error) {
	exists, err := s.client.Exists(ctx, nonceKey(scope, nonce)).Result()
	if err != nil {
		return false, fmt.Errorf("check nonce: %w", err)
	}
	return exists == 0, nil
}

// Store marks the nonce consumed. Idempotent; re-storing refreshes the TTL.
func (s *RedisStore) Store(ctx context.Context, scope, nonce string, ttl time.Duration) error {
	if err := s.client.Set(ctx, nonceKey(scope, nonce), "1", ttl).Err(); err != nil {
		return fmt.Errorf("store nonce: %w", err)
	}
	return nil
}

// CheckAndStore atomically consumes the nonce, returning false if it was
// already consumed. Two identical webhooks racing each other cannot both
// get true: SET NX is a single server-side operation.
func (s *RedisStore) CheckAndStore(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, nonceKey(scope, nonce), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}
	return ok, nil
}
