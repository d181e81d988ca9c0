// Package cache provides the redis-backed replay guard used to make QR
// nonces single-use across process restarts and replicas.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(url, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     url,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// MarkOnce records key atomically and reports whether this call was the first
// to do so. The key expires with the token it guards, so the store never
// accumulates spent nonces.
func (c *RedisCache) MarkOnce(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, 1, expiration).Result()
}

// Unmark releases a key recorded by MarkOnce. Used when the operation the
// mark protected fails after the mark, letting the caller retry.
func (c *RedisCache) Unmark(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
