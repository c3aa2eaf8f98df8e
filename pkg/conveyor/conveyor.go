// Package conveyor implements the bounded, non-blocking-push /
// timeout-blocking-pop queue that sits between a stage's parallel worker
// threads and its upstream parents (spec.md §3, grounded on
// original_source/framework/core/src/conveyor.cpp and connector.cpp).
package conveyor

import (
	"time"

	"go.uber.org/atomic"

	"github.com/cnstream-go/cnstream/pkg/frame"
)

// popTimeout is how long PopDataBuffer blocks waiting for an item before
// giving up and returning ok=false, mirroring the original's rel_time_
// (spec.md §3's "bounded wait", originally a fixed relative timeout on
// std::condition_variable::wait_for).
const popTimeout = 20 * time.Millisecond

// Conveyor is a single bounded FIFO queue of frames. Unlike a plain
// buffered channel, a full Conveyor never blocks its writer: PushDataBuffer
// fails fast and counts the failure so the pipeline can apply backpressure
// with a retry/log policy instead of stalling a goroutine on a full
// channel send.
type Conveyor struct {
	ch       chan *frame.Frame
	maxSize  int
	failTime atomic.Uint64
}

// New creates a Conveyor holding at most maxSize frames.
func New(maxSize int) *Conveyor {
	return &Conveyor{ch: make(chan *frame.Frame, maxSize), maxSize: maxSize}
}

// GetBufferSize reports how many frames are currently queued.
func (c *Conveyor) GetBufferSize() int { return len(c.ch) }

// PushDataBuffer enqueues data without blocking. It returns false and bumps
// the fail counter if the queue is already full.
func (c *Conveyor) PushDataBuffer(data *frame.Frame) bool {
	select {
	case c.ch <- data:
		c.failTime.Store(0)
		return true
	default:
		c.failTime.Inc()
		return false
	}
}

// GetFailTime reports how many consecutive PushDataBuffer calls have failed
// since the last success.
func (c *Conveyor) GetFailTime() uint64 { return c.failTime.Load() }

// PopDataBuffer blocks for up to popTimeout waiting for a frame. It returns
// nil if nothing arrived in time or the conveyor was closed and drained.
func (c *Conveyor) PopDataBuffer() *frame.Frame {
	timer := time.NewTimer(popTimeout)
	defer timer.Stop()
	select {
	case data, ok := <-c.ch:
		if !ok {
			return nil
		}
		return data
	case <-timer.C:
		return nil
	}
}

// PopAllDataBuffer drains every currently queued frame without blocking,
// used when a stage is stopping (spec.md §3 "Stop").
func (c *Conveyor) PopAllDataBuffer() []*frame.Frame {
	var out []*frame.Frame
	for {
		select {
		case data := <-c.ch:
			out = append(out, data)
		default:
			return out
		}
	}
}
