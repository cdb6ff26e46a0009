package formatcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisCache is the redis-backed Cache implementation. Blobs are stored raw
// under the given key, so tooling outside the process can read the format
// descriptor the server currently broadcasts. Process-local stampede
// protection uses singleflight; cross-process protection is not attempted
// since every instance can fetch from its own capture engine.
type RedisCache struct {
	client *redis.Client
	group  singleflight.Group
}

// NewRedisCache creates a redis-backed cache.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	cache := formatcache.NewRedisCache(client)
//
// Parameters:
//   - client: The redis client to store blobs through
//
// Returns:
//   - A new RedisCache instance
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// GetOrFetch implements Cache.
func (c *RedisCache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		blob, err := fetchFn(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}

		if err := c.client.Set(ctx, key, blob, ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis set: %w", err)
		}

		return blob, nil
	})
	if err != nil {
		return nil, err
	}

	return res.([]byte), nil
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// Clear implements Cache.
func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("redis flushdb: %w", err)
	}

	return nil
}
