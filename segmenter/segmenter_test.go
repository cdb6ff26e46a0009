package segmenter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/audiocast/protocol"
)

func TestSplit(t *testing.T) {
	t.Run("small run stays whole", func(t *testing.T) {
		data := patternBytes(400)
		segments, err := Split(data, 4)
		require.NoError(t, err)
		require.Len(t, segments, 1)
		assert.Equal(t, data, segments[0])
	})

	t.Run("exactly two full datagrams", func(t *testing.T) {
		data := patternBytes(2928)
		segments, err := Split(data, 4)
		require.NoError(t, err)
		require.Len(t, segments, 2)
		assert.Len(t, segments[0], 1464)
		assert.Len(t, segments[1], 1464)
	})

	t.Run("concatenation restores input", func(t *testing.T) {
		for _, size := range []int{4, 1464, 1468, 2928, 10000} {
			data := patternBytes(size)
			segments, err := Split(data, 4)
			require.NoError(t, err)
			assert.Equal(t, data, bytes.Join(segments, nil), "size %d", size)
		}
	})

	t.Run("segments fit a datagram and respect alignment", func(t *testing.T) {
		for _, blockAlign := range []int{1, 2, 4, 6, 8, 1000} {
			data := patternBytes(blockAlign * 20)
			segments, err := Split(data, blockAlign)
			require.NoError(t, err)
			for i, seg := range segments {
				assert.LessOrEqual(t, len(seg), protocol.MaxDatagramPayload, "align %d segment %d", blockAlign, i)
				assert.Zero(t, len(seg)%blockAlign, "align %d segment %d", blockAlign, i)
				assert.NotEmpty(t, seg)
			}
		}
	})

	t.Run("alignment that does not divide the datagram limit caps the segment", func(t *testing.T) {
		// 1464 is not a multiple of 1000; the per-segment cap drops to the
		// largest multiple of blockAlign under the datagram limit.
		data := patternBytes(3000)
		segments, err := Split(data, 1000)
		require.NoError(t, err)
		require.Len(t, segments, 3)
		for _, seg := range segments {
			assert.Len(t, seg, 1000)
		}
	})

	t.Run("segments are owned copies", func(t *testing.T) {
		data := patternBytes(8)
		segments, err := Split(data, 4)
		require.NoError(t, err)

		data[0] ^= 0xFF
		assert.NotEqual(t, data[0], segments[0][0])
	})

	t.Run("empty input yields no segments", func(t *testing.T) {
		segments, err := Split(nil, 4)
		require.NoError(t, err)
		assert.Nil(t, segments)
	})

	t.Run("rejects non-positive alignment", func(t *testing.T) {
		for _, blockAlign := range []int{0, -1} {
			_, err := Split(patternBytes(8), blockAlign)
			assert.ErrorIs(t, err, ErrBlockAlign)
		}
	})

	t.Run("rejects alignment beyond one datagram", func(t *testing.T) {
		_, err := Split(patternBytes(protocol.MaxDatagramPayload+4), protocol.MaxDatagramPayload+1)
		assert.ErrorIs(t, err, ErrBlockAlign)
	})

	t.Run("rejects alignment not dividing the input", func(t *testing.T) {
		_, err := Split(patternBytes(10), 4)
		assert.ErrorIs(t, err, ErrBlockAlign)
	})
}

func patternBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}

	return data
}
