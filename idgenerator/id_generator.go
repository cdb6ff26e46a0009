// Package idgenerator allocates the session identifiers handed out by the
// broadcast server. IDs are positive, monotonically increasing, and never
// reused for the lifetime of a generator.
package idgenerator

import "sync/atomic"

// IdGenerator generates monotonically increasing uint32 IDs in a
// concurrency-safe manner. A generator seeded with 0 hands out 1, 2, 3, ...
// which is the contract the session registry relies on: every allocated ID is
// strictly positive, so 0 can signal allocation failure to protocol peers.
type IdGenerator struct {
	id atomic.Uint32
}

// NewIdGenerator creates an IdGenerator whose first Id() call returns
// startValue+1. The generator is safe for concurrent use.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next unique ID by atomically incrementing the internal
// counter. It is safe for concurrent use by multiple goroutines. The counter
// is never decremented, so IDs are unique for the generator's lifetime.
//
// Returns:
//   - The next uint32 ID
func (l *IdGenerator) Id() uint32 {
	return l.id.Add(1)
}
