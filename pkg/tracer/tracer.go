package tracer

import (
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultCapacity is the number of events retained when a Tracer is built
// without an explicit capacity (spec.md §6, tracer_capacity default).
const DefaultCapacity = 100000

// ringMargin separates the tail writer from readers (spec.md §4.1).
const ringMargin = 0.2

// Tracer is a thin wrapper over the circular event buffer: it assembles
// trace events from Record calls and answers time-window queries.
type Tracer struct {
	buf   *circularBuffer[Event]
	clock clock.Clock
}

// New creates a Tracer retaining up to capacity events.
func New(capacity uint64) *Tracer {
	return NewWithClock(capacity, clock.New())
}

// NewWithClock is New with an injectable clock, used by tests that need
// deterministic timestamps (mirrors the teacher's clock.NewMock() idiom,
// e.g. comp/forwarder/defaultforwarder/transaction/intake_offset_test.go).
func NewWithClock(capacity uint64, c clock.Clock) *Tracer {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	return &Tracer{buf: newCircularBuffer[Event](capacity, ringMargin), clock: c}
}

// Now returns the tracer's current time, routed through its clock so
// profilers sharing the tracer can stay on the same clock in tests.
func (t *Tracer) Now() time.Time {
	return t.clock.Now()
}

// Record pushes ev into the ring. Never fails or blocks on readers; old
// events are silently overwritten once the ring wraps.
func (t *Tracer) Record(ev Event) {
	t.buf.push(ev)
}

// GetTrace scans the buffer's current range and returns every event whose
// Time is strictly greater than start and less than or equal to end,
// bucketed by level.
func (t *Tracer) GetTrace(start, end time.Time) Trace {
	result := newTrace()
	if !end.After(start) {
		return result
	}

	begin, stop := t.buf.begin(), t.buf.end()
	for i := begin; i < stop; i++ {
		ev := t.buf.getAbsolute(i)
		if ev.Time.After(start) && !ev.Time.After(end) {
			result.add(ev)
		}
	}
	return result
}

// GetTraceBefore returns GetTrace(end-dur, end).
func (t *Tracer) GetTraceBefore(end time.Time, dur time.Duration) Trace {
	return t.GetTrace(end.Add(-dur), end)
}

// GetTraceAfter returns GetTrace(start, start+dur).
func (t *Tracer) GetTraceAfter(start time.Time, dur time.Duration) Trace {
	return t.GetTrace(start, start.Add(dur))
}
