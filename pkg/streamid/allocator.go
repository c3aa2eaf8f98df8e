// Package streamid implements the dense-index bitset allocator backing both
// the pipeline's stream-id space and its stage-id space.
package streamid

import "sync"

// Invalid is returned by Acquire when the allocator is full.
const Invalid = -1

// Allocator hands out the lowest unset index in a fixed-size bitset and
// maps external string keys to it. One mutex serializes every mutation;
// capacity is bounded (128 for streams, 64 for stages per spec.md §4.9).
type Allocator struct {
	mu       sync.Mutex
	capacity int
	bits     []bool
	index    map[string]int
}

// New creates an allocator with room for capacity distinct keys.
func New(capacity int) *Allocator {
	return &Allocator{
		capacity: capacity,
		bits:     make([]bool, capacity),
		index:    make(map[string]int, capacity),
	}
}

// Acquire returns key's index, assigning the lowest unset bit on first use.
// Returns Invalid if the bitset is already full.
func (a *Allocator) Acquire(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if idx, ok := a.index[key]; ok {
		return idx
	}
	for i, used := range a.bits {
		if !used {
			a.bits[i] = true
			a.index[key] = i
			return i
		}
	}
	return Invalid
}

// Release clears key's bit and mapping. A no-op if key was never acquired.
func (a *Allocator) Release(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, ok := a.index[key]
	if !ok {
		return
	}
	a.bits[idx] = false
	delete(a.index, key)
}

// Lookup returns key's current index and whether it is currently live.
func (a *Allocator) Lookup(key string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.index[key]
	return idx, ok
}

// Len returns the number of currently live keys.
func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.index)
}

// Capacity returns the fixed capacity this allocator was created with.
func (a *Allocator) Capacity() int {
	return a.capacity
}
