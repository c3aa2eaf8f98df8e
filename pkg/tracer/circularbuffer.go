package tracer

import (
	"sync/atomic"
)

// lapMask bounds the generation marker to mod-128 arithmetic, matching the
// original implementation's signed 7-bit lap counter
// (original_source/framework/core/src/profiler/circular_buffer.hpp uses
// `char` with kMask = 0x7F). Go has no atomic byte type, so the marker is
// stored in a uint32 instead; only the low 7 bits ever carry a lap value.
const lapMask = 0x7F

// busy is a marker value outside the lap range, reserved to mean "a writer
// or reader currently owns this slot".
const busy = 0xFF

// circularBuffer is a fixed-capacity, many-writer/occasional-reader ring.
// push never blocks on readers, only on another writer or reader touching
// the same slot; it is the lock-free backing store for the Tracer.
type circularBuffer[T any] struct {
	capacity   uint64
	bufferSize uint64
	margin     float64

	slots   []T
	markers []uint32 // generation marker per slot: lap (0..127) or busy
	current uint64   // atomically incremented absolute write cursor
}

func newCircularBuffer[T any](capacity uint64, margin float64) *circularBuffer[T] {
	if capacity == 0 {
		capacity = 1
	}
	size := uint64(float64(capacity) * (1 + margin))
	if size < capacity {
		size = capacity
	}
	return &circularBuffer[T]{
		capacity:   capacity,
		bufferSize: size,
		margin:     margin,
		slots:      make([]T, size),
		markers:    make([]uint32, size),
	}
}

func getLap(i, bufferSize uint64) uint32 {
	return uint32((i/bufferSize + 1) & lapMask)
}

// maxLap returns whichever of u, v is "ahead" in mod-128 ordering, per
// spec.md §4.1: u >= v iff (u-v) mod 128 <= 63.
func maxLap(u, v uint32) uint32 {
	if (u-v)&lapMask <= lapMask/2 {
		return u
	}
	return v
}

func (c *circularBuffer[T]) acquireForWrite(slot uint64) uint32 {
	for {
		prev := atomic.LoadUint32(&c.markers[slot])
		if prev != busy && atomic.CompareAndSwapUint32(&c.markers[slot], prev, busy) {
			return prev
		}
	}
}

func (c *circularBuffer[T]) acquireForRead(slot uint64, lap uint32) uint32 {
	for {
		prev := atomic.LoadUint32(&c.markers[slot])
		if prev != busy && prev == maxLap(prev, lap) {
			if atomic.CompareAndSwapUint32(&c.markers[slot], prev, busy) {
				return prev
			}
		}
	}
}

func (c *circularBuffer[T]) release(slot uint64, lap uint32) {
	atomic.StoreUint32(&c.markers[slot], lap)
}

// push appends one event to the buffer. It waits only while another writer
// or reader holds the same physical slot. Events older than
// current-capacity are silently overwritten by later pushes.
func (c *circularBuffer[T]) push(event T) {
	i := atomic.AddUint64(&c.current, 1) - 1
	lap := getLap(i, c.bufferSize)
	slot := i % c.bufferSize

	prev := c.acquireForWrite(slot)
	c.slots[slot] = event
	c.release(slot, maxLap(prev, lap))
}

// getAbsolute reads the event written at absolute index i, blocking
// (spinning) until that slot reaches the expected lap and is not busy.
func (c *circularBuffer[T]) getAbsolute(i uint64) T {
	lap := getLap(i, c.bufferSize)
	slot := i % c.bufferSize

	prev := c.acquireForRead(slot, lap)
	val := c.slots[slot]
	c.release(slot, prev)
	return val
}

// begin returns the oldest still-valid absolute index.
func (c *circularBuffer[T]) begin() uint64 {
	cur := atomic.LoadUint64(&c.current)
	if cur < c.capacity {
		return 0
	}
	return cur - c.capacity
}

// end returns the current absolute write cursor (one past the newest
// valid index).
func (c *circularBuffer[T]) end() uint64 {
	return atomic.LoadUint64(&c.current)
}
