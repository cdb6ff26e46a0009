package formatcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() *MemoryCache {
	return NewMemoryCache(time.Minute, time.Minute)
}

func TestMemoryCache_GetOrFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("miss fetches and caches", func(t *testing.T) {
		cache := newTestCache()
		var fetches atomic.Int32

		fetch := func(context.Context) ([]byte, error) {
			fetches.Add(1)
			return []byte("blob"), nil
		}

		got, err := cache.GetOrFetch(ctx, "format", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, []byte("blob"), got)

		got, err = cache.GetOrFetch(ctx, "format", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, []byte("blob"), got)

		assert.Equal(t, int32(1), fetches.Load())
	})

	t.Run("fetch error is not cached", func(t *testing.T) {
		cache := newTestCache()
		wantErr := errors.New("engine unavailable")

		_, err := cache.GetOrFetch(ctx, "format", time.Minute, func(context.Context) ([]byte, error) {
			return nil, wantErr
		})
		assert.ErrorIs(t, err, wantErr)

		got, err := cache.GetOrFetch(ctx, "format", time.Minute, func(context.Context) ([]byte, error) {
			return []byte("recovered"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("recovered"), got)
	})

	t.Run("concurrent misses fetch once", func(t *testing.T) {
		cache := newTestCache()
		var fetches atomic.Int32
		release := make(chan struct{})

		fetch := func(context.Context) ([]byte, error) {
			fetches.Add(1)
			<-release
			return []byte("blob"), nil
		}

		const callers = 16
		var wg sync.WaitGroup
		wg.Add(callers)
		for i := 0; i < callers; i++ {
			go func() {
				defer wg.Done()
				got, err := cache.GetOrFetch(ctx, "format", time.Minute, fetch)
				assert.NoError(t, err)
				assert.Equal(t, []byte("blob"), got)
			}()
		}

		// Let the callers pile onto the in-flight fetch before releasing it.
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), fetches.Load())
	})

	t.Run("delete forces a refetch", func(t *testing.T) {
		cache := newTestCache()
		var fetches atomic.Int32

		fetch := func(context.Context) ([]byte, error) {
			fetches.Add(1)
			return []byte("blob"), nil
		}

		_, err := cache.GetOrFetch(ctx, "format", time.Minute, fetch)
		require.NoError(t, err)
		require.NoError(t, cache.Delete(ctx, "format"))

		_, err = cache.GetOrFetch(ctx, "format", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, int32(2), fetches.Load())
	})

	t.Run("clear empties every key", func(t *testing.T) {
		cache := newTestCache()
		var fetches atomic.Int32

		fetch := func(context.Context) ([]byte, error) {
			fetches.Add(1)
			return []byte("blob"), nil
		}

		_, err := cache.GetOrFetch(ctx, "a", time.Minute, fetch)
		require.NoError(t, err)
		_, err = cache.GetOrFetch(ctx, "b", time.Minute, fetch)
		require.NoError(t, err)
		require.NoError(t, cache.Clear(ctx))

		_, err = cache.GetOrFetch(ctx, "a", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, int32(3), fetches.Load())
	})

	t.Run("cancelled context fails delete and clear", func(t *testing.T) {
		cache := newTestCache()
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, cache.Delete(cancelled, "format"), context.Canceled)
		assert.ErrorIs(t, cache.Clear(cancelled), context.Canceled)
	})
}
