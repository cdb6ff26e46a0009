// Package segmenter splits captured audio byte-runs into datagram-sized,
// sample-aligned segments for the UDP broadcast path.
package segmenter

import (
	"errors"
	"fmt"

	"github.com/cyberinferno/audiocast/protocol"
)

// ErrBlockAlign reports an invalid block alignment: non-positive, larger than
// a datagram payload, or not dividing the input length cleanly.
var ErrBlockAlign = errors.New("segmenter: invalid block alignment")

// Split partitions data into consecutive segments, each at most
// protocol.MaxDatagramPayload bytes and a multiple of blockAlign, so a single
// sample group is never torn across datagrams. Segments are independently
// owned copies; the send path may hold them alive past the caller's buffer
// reuse. Concatenating the segments in order restores the input.
//
// blockAlign must be positive, no larger than protocol.MaxDatagramPayload,
// and must divide len(data) evenly; otherwise ErrBlockAlign is returned
// rather than guessing how to pad the final segment.
//
// Parameters:
//   - data: The audio byte-run to split; not modified
//   - blockAlign: Bytes per indivisible audio sample group
//
// Returns:
//   - The ordered segments, or an error if blockAlign is invalid
func Split(data []byte, blockAlign int) ([][]byte, error) {
	if blockAlign <= 0 || blockAlign > protocol.MaxDatagramPayload {
		return nil, fmt.Errorf("%w: %d", ErrBlockAlign, blockAlign)
	}
	if len(data)%blockAlign != 0 {
		return nil, fmt.Errorf("%w: %d does not divide payload length %d", ErrBlockAlign, blockAlign, len(data))
	}
	if len(data) == 0 {
		return nil, nil
	}

	maxSegSize := protocol.MaxDatagramPayload
	maxSegSize -= maxSegSize % blockAlign

	segments := make([][]byte, 0, (len(data)+maxSegSize-1)/maxSegSize)
	for begin := 0; begin < len(data); {
		segSize := len(data) - begin
		if segSize > maxSegSize {
			segSize = maxSegSize
		}

		seg := make([]byte, segSize)
		copy(seg, data[begin:begin+segSize])
		segments = append(segments, seg)
		begin += segSize
	}

	return segments, nil
}
