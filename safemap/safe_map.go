// Package safemap provides the type-safe concurrent map that backs the
// broadcast server's peer registry and connection tracking. It wraps sync.Map
// with a generic API so session lookups stay lock-free on the hot path.
package safemap

import "sync"

// SafeMap is a concurrent map that is safe for use by multiple goroutines.
// Keys must be comparable; values may be any type. SafeMap must not be copied
// after first use. Store and Load are amortized O(1); Len and Range are O(n).
type SafeMap[K comparable, V any] struct {
	m sync.Map
}

// NewSafeMap returns a new empty SafeMap ready for concurrent use.
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{}
}

// Store sets the value for key k, overwriting any existing value.
func (m *SafeMap[K, V]) Store(k K, v V) {
	m.m.Store(k, v)
}

// Load returns the value for key k and whether the key was present. A missing
// key yields the zero value for V and false.
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	v, found := m.m.Load(k)
	if !found {
		var empty V
		return empty, found
	}

	return v.(V), found
}

// LoadAndDelete removes the entry for key k, returning the previous value and
// whether the key was present. The load and delete are a single atomic step,
// so concurrent removers observe at most one success.
func (m *SafeMap[K, V]) LoadAndDelete(k K) (V, bool) {
	v, found := m.m.LoadAndDelete(k)
	if !found {
		var empty V
		return empty, found
	}

	return v.(V), found
}

// Delete removes the entry for key k. Deleting a missing key is a no-op.
func (m *SafeMap[K, V]) Delete(k K) {
	m.m.Delete(k)
}

// Range calls f sequentially for each key and value present in the map.
// If f returns false, Range stops the iteration.
func (m *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	m.m.Range(func(k, v interface{}) bool {
		return f(k.(K), v.(V))
	})
}

// Len returns the number of entries in the map. It iterates over all entries
// to compute the count; use sparingly on large maps.
func (m *SafeMap[K, V]) Len() int {
	length := 0
	m.Range(func(k K, v V) bool {
		length++
		return true
	})

	return length
}

// Has reports whether key k is present in the map.
func (m *SafeMap[K, V]) Has(k K) bool {
	_, found := m.Load(k)
	return found
}
