// Package formatcache caches the capture engine's serialized audio format
// descriptor so the server does not re-serialize it for every GET_FORMAT
// request. The memory backend is the default; the redis backend additionally
// publishes the active format where co-located tooling and multi-instance
// deployments can read it.
package formatcache

import (
	"context"
	"time"
)

// FetchFunc fetches the format blob from the source on a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Cache is the interface the server fetches format descriptors through.
// Implementations must be safe for concurrent use and should prevent cache
// stampede when many clients connect at once.
type Cache interface {
	// GetOrFetch retrieves the blob stored under key, or fetches it with
	// fetchFn on a miss and caches the result for ttl.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key to retrieve or set
	//   - ttl: Time-to-live duration for the cached blob
	//   - fetchFn: Function to fetch the blob if not cached
	//
	// Returns:
	//   - The cached or fetched blob
	//   - An error if retrieval or fetching fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc) ([]byte, error)

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all items from the cache.
	Clear(ctx context.Context) error
}
