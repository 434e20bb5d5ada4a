package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList tracks credential ids invalidated before expiry.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocationList stores revoked token ids in Redis, each entry living
// only as long as the token it kills would have. Tokens stay
// stateless-verifiable; this list is the one server-side exception, and it
// is bounded by token TTL.
type RedisRevocationList struct {
	client *redis.Client
}

// NewRedisRevocationList wraps a Redis client.
func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	if client == nil {
		panic("identity: redis client required")
	}
	return &RedisRevocationList{client: client}
}

func revocationKey(jti string) string {
	return "peegflow:revoked:" + jti
}

func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired; nothing to remember.
		return nil
	}
	if err := l.client.Set(ctx, revocationKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("identity: revoke token: %w", err)
	}
	return nil
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, revocationKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("identity: check revocation: %w", err)
	}
	return n > 0, nil
}
