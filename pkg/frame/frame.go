// Package frame defines the data unit that flows through a pipeline DAG.
package frame

import (
	"sync/atomic"
)

// Flags is a bitset of per-frame sentinels.
type Flags uint32

const (
	// FlagEOS marks an end-of-stream sentinel frame.
	FlagEOS Flags = 1 << iota
	// FlagInvalid marks a frame that failed validation upstream.
	FlagInvalid
)

// StreamIndex identifies a stream's slot in the allocator's bitset.
type StreamIndex int

// Invalid is the sentinel StreamIndex returned when allocation fails.
const Invalid StreamIndex = -1

// RecordKey uniquely identifies a frame for profiling purposes: the pair
// (stream ID, timestamp). Two frames sharing a key in the same process
// region are considered the same frame.
type RecordKey struct {
	StreamID  string
	Timestamp int64
}

// Frame is an opaque payload plus routing metadata. Ownership is shared:
// any stage may hold a reference while processing it, and a Frame carries
// no back-pointer to the pipeline that created it.
type Frame struct {
	Payload     any
	StreamID    string
	StreamIndex StreamIndex
	Timestamp   int64
	FrameID     uint64
	Flags       Flags

	modulesMask uint64
}

// New creates a frame with a zero modules mask, ready for a head stage to
// hand to Pipeline.ProvideData.
func New(payload any, streamID string, streamIndex StreamIndex, timestamp int64, frameID uint64, flags Flags) *Frame {
	return &Frame{
		Payload:     payload,
		StreamID:    streamID,
		StreamIndex: streamIndex,
		Timestamp:   timestamp,
		FrameID:     frameID,
		Flags:       flags,
	}
}

// Key returns the RecordKey identifying this frame across trace events and
// ongoing-records.
func (f *Frame) Key() RecordKey {
	return RecordKey{StreamID: f.StreamID, Timestamp: f.Timestamp}
}

// IsEOS reports whether this frame is the end-of-stream sentinel.
func (f *Frame) IsEOS() bool { return f.Flags&FlagEOS != 0 }

// IsInvalid reports whether this frame failed upstream validation.
func (f *Frame) IsInvalid() bool { return f.Flags&FlagInvalid != 0 }

// ModulesMask returns the current completion bitmask.
func (f *Frame) ModulesMask() uint64 {
	return atomic.LoadUint64(&f.modulesMask)
}

// SetModulesMask overwrites the completion bitmask. Used once, by the
// pipeline, to pre-fill unreachable stages on a fresh frame from a head
// stage (the route-mask fill in TransmitData).
func (f *Frame) SetModulesMask(mask uint64) {
	atomic.StoreUint64(&f.modulesMask, mask)
}

// MarkStage ORs stageID's bit into the completion mask and returns the mask
// after the update. Safe for concurrent callers racing to stamp distinct
// bits (a frame passing through parallel join branches).
func (f *Frame) MarkStage(stageID uint) uint64 {
	bit := uint64(1) << stageID
	for {
		old := atomic.LoadUint64(&f.modulesMask)
		next := old | bit
		if next == old {
			return old
		}
		if atomic.CompareAndSwapUint64(&f.modulesMask, old, next) {
			return next
		}
	}
}
