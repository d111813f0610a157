package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis commands used by RedisCache.
type RedisClient interface {
	GetEx(ctx context.Context, key string, expiration time.Duration) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache stores entries as plain strings. Reads refresh the TTL with
// GETEX, which gives sliding expiry.
type RedisCache struct {
	client  RedisClient
	prefix  string
	sliding time.Duration
}

// NewRedisCache creates a cache whose reads extend entries by sliding. Keys
// are namespaced with prefix.
func NewRedisCache(client RedisClient, prefix string, sliding time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, sliding: sliding}
}

func (c *RedisCache) GetString(ctx context.Context, key string) (string, error) {
	value, err := c.client.GetEx(ctx, c.prefix+key, c.sliding).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (c *RedisCache) SetString(ctx context.Context, key, value string, sliding time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, sliding).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Remove(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
