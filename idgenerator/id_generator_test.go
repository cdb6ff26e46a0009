package idgenerator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdGenerator(t *testing.T) {
	t.Run("seeded at zero hands out 1 first", func(t *testing.T) {
		gen := NewIdGenerator(0)
		require.NotNil(t, gen)
		assert.Equal(t, uint32(1), gen.Id())
	})

	t.Run("seeded at n hands out n+1 first", func(t *testing.T) {
		gen := NewIdGenerator(100)
		assert.Equal(t, uint32(101), gen.Id())
	})
}

func TestIdGenerator_Id_sequential(t *testing.T) {
	gen := NewIdGenerator(0)
	for want := uint32(1); want <= 1000; want++ {
		assert.Equal(t, want, gen.Id())
	}
}

func TestIdGenerator_Id_concurrent(t *testing.T) {
	gen := NewIdGenerator(0)

	const n = 1000
	ids := make(chan uint32, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			ids <- gen.Id()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint32]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.GreaterOrEqual(t, id, uint32(1))
		assert.LessOrEqual(t, id, uint32(n))
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestIdGenerator_independent_generators(t *testing.T) {
	gen1 := NewIdGenerator(0)
	gen2 := NewIdGenerator(0)

	assert.Equal(t, uint32(1), gen1.Id())
	assert.Equal(t, uint32(1), gen2.Id())
	assert.Equal(t, uint32(2), gen1.Id())
	assert.Equal(t, uint32(2), gen2.Id())
}
