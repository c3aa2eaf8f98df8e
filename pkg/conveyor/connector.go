package conveyor

import (
	"fmt"

	"go.uber.org/atomic"
)

// Connector owns one Conveyor per parallel worker thread of a stage
// (spec.md §3, grounded on
// original_source/framework/core/src/connector.cpp).
type Connector struct {
	capacity  int
	conveyors []*Conveyor
	stopped   atomic.Bool
}

// NewConnector creates count conveyors, each bounded to capacity frames.
func NewConnector(count, capacity int) *Connector {
	conveyors := make([]*Conveyor, count)
	for i := range conveyors {
		conveyors[i] = New(capacity)
	}
	c := &Connector{capacity: capacity, conveyors: conveyors}
	c.stopped.Store(true)
	return c
}

// ConveyorCount returns how many conveyors this connector owns.
func (c *Connector) ConveyorCount() int { return len(c.conveyors) }

// ConveyorCapacity returns the per-conveyor bound.
func (c *Connector) ConveyorCapacity() int { return c.capacity }

// Conveyor returns the conveyor at idx, panicking on an out-of-range index
// the way the original's CHECK_GE/CHECK_LT pair does.
func (c *Connector) Conveyor(idx int) *Conveyor {
	if idx < 0 || idx >= len(c.conveyors) {
		panic(fmt.Sprintf("conveyor index %d out of range [0, %d)", idx, len(c.conveyors)))
	}
	return c.conveyors[idx]
}

// IsStopped reports whether Stop has been called more recently than Start.
func (c *Connector) IsStopped() bool { return c.stopped.Load() }

// Start marks the connector as accepting work.
func (c *Connector) Start() { c.stopped.Store(false) }

// Stop marks the connector as no longer accepting work. Queued frames are
// left in place; call EmptyDataQueue to discard them.
func (c *Connector) Stop() { c.stopped.Store(true) }

// EmptyDataQueue drains every conveyor without blocking.
func (c *Connector) EmptyDataQueue() {
	for _, conv := range c.conveyors {
		conv.PopAllDataBuffer()
	}
}
