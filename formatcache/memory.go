package formatcache

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCache is the in-memory Cache implementation. It uses go-cache for
// storage and singleflight so a burst of connecting clients triggers a single
// format fetch from the capture engine.
type MemoryCache struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCache creates an in-memory cache with the given default expiration
// and cleanup interval.
//
// Parameters:
//   - defaultExpiration: Default TTL for cached blobs
//   - cleanupInterval: Interval at which expired blobs are removed
//
// Returns:
//   - A new MemoryCache instance
func NewMemoryCache(defaultExpiration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: cache.New(defaultExpiration, cleanupInterval),
	}
}

// GetOrFetch implements Cache. Concurrent misses for the same key execute a
// single fetch.
func (c *MemoryCache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc) ([]byte, error) {
	if val, found := c.cache.Get(key); found {
		if blob, ok := val.([]byte); ok {
			return blob, nil
		}
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another goroutine may have populated the key while we waited
		// on the singleflight slot.
		if cachedVal, found := c.cache.Get(key); found {
			if blob, ok := cachedVal.([]byte); ok {
				return blob, nil
			}
		}

		blob, err := fetchFn(ctx)
		if err != nil {
			return nil, err
		}

		c.cache.Set(key, blob, ttl)
		return blob, nil
	})
	if err != nil {
		return nil, err
	}

	blob, ok := val.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected type in cache for key %s", key)
	}

	return blob, nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.cache.Delete(key)
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.cache.Flush()
	return nil
}
