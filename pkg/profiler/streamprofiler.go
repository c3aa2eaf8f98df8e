package profiler

import "time"

// StreamProfiler accumulates counters and latency stats for one
// (process, stream) pair. It is a pure data object, not thread-safe on its
// own — callers serialize access via the owning ProcessProfiler's mutex
// (spec.md §4.3).
type StreamProfiler struct {
	streamID string

	completed uint64
	dropped   uint64

	latencyCount uint64
	latencySum   time.Duration
	latencyMin   time.Duration
	latencyMax   time.Duration

	wallTime time.Duration
}

// NewStreamProfiler creates an empty accumulator for streamID.
func NewStreamProfiler(streamID string) *StreamProfiler {
	return &StreamProfiler{streamID: streamID}
}

// AddLatency folds one observed latency into the running count, sum and
// min/max.
func (s *StreamProfiler) AddLatency(d time.Duration) *StreamProfiler {
	if s.latencyCount == 0 || d < s.latencyMin {
		s.latencyMin = d
	}
	if s.latencyCount == 0 || d > s.latencyMax {
		s.latencyMax = d
	}
	s.latencySum += d
	s.latencyCount++
	return s
}

// UpdateWallTime overwrites the accumulated wall-clock span; the caller
// supplies the cumulative value (spec.md §4.4's per-stream wall-time
// propagation uses the process-wide total, by design — see DESIGN.md,
// "Open Question decisions" item 3).
func (s *StreamProfiler) UpdateWallTime(d time.Duration) *StreamProfiler {
	s.wallTime = d
	return s
}

// AddDropped bumps the dropped counter by n.
func (s *StreamProfiler) AddDropped(n uint64) *StreamProfiler {
	s.dropped += n
	return s
}

// AddCompleted bumps the completed counter by one.
func (s *StreamProfiler) AddCompleted() *StreamProfiler {
	s.completed++
	return s
}

// GetProfile computes the derived fields (spec.md §4.3):
//
//	counter = completed + dropped
//	fps     = 1000 * counter / wall_time_ms   (wall_time_ms > 0, else -1)
//	latency = latency_sum_ms / latency_count  (latency_count > 0, else -1)
func (s *StreamProfiler) GetProfile() StreamProfile {
	p := StreamProfile{
		StreamID:  s.streamID,
		Completed: s.completed,
		Dropped:   s.dropped,
		Counter:   s.completed + s.dropped,
		WallTime:  s.wallTime,
		FPS:       -1,
		Latency:   -1,
	}

	if wallMS := durationMS(s.wallTime); wallMS > 0 {
		p.FPS = 1000 * float64(p.Counter) / wallMS
	}
	if s.latencyCount > 0 {
		p.Latency = durationMS(s.latencySum) / float64(s.latencyCount)
		p.MinLatency = s.latencyMin
		p.MaxLatency = s.latencyMax
	}
	return p
}
