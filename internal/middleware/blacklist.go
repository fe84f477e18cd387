package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenBlacklist implements TokenBlacklist using Redis.
type RedisTokenBlacklist struct {
	client *redis.Client
}

func NewRedisTokenBlacklist(client *redis.Client) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{client: client}
}

// Blacklist revokes a token until it would have expired anyway.
func (b *RedisTokenBlacklist) Blacklist(ctx context.Context, token string, expiration time.Duration) error {
	if expiration <= 0 {
		return nil
	}
	return b.client.Set(ctx, "sak:revoked:"+token, "1", expiration).Err()
}

func (b *RedisTokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	exists, err := b.client.Exists(ctx, "sak:revoked:"+token).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
