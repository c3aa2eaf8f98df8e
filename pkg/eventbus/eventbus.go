// Package eventbus implements the asynchronous message channel from stage
// workers to the pipeline controller (spec.md §4.8, grounded on
// original_source/modules/core/include/cnstream_eventbus.hpp).
package eventbus

import (
	"sync"
)

// Type enumerates event kinds. The range from UserEventBase upward is
// reserved so user code can define its own event types without colliding
// with the bus's own vocabulary.
type Type int

const (
	Invalid Type = iota
	Error
	Warning
	EOS
	StreamError
	StreamFrameError
	Stop
	// UserEventBase is the first value available to user-defined events.
	UserEventBase Type = 1000
)

// Event is one bus message: which stage raised it, for which stream, and a
// human-readable detail (spec.md §4.8).
type Event struct {
	Type        Type
	ModuleName  string
	StreamID    string
	GoroutineID uint64
	Message     string
	// PTS is the frame timestamp relevant to this event, if any (e.g. the
	// frame that failed validation on transmit); zero when not applicable.
	PTS int64
}

// HandleFlag is a watcher's verdict on one event.
type HandleFlag int

const (
	// HandleNull means the watcher did not recognize or act on the event.
	HandleNull HandleFlag = iota
	// HandleInterception means the watcher handled the event and no other
	// watcher should see it.
	HandleInterception
	// HandleSynced means the watcher handled the event but other watchers
	// should still be informed.
	HandleSynced
	// HandleStop means the poll loop itself should stop.
	HandleStop
)

// Watcher observes bus events. It is invoked synchronously from the bus's
// single poll loop, in registration order, until one returns
// HandleInterception or HandleStop.
type Watcher func(Event) HandleFlag

// Bus is the event channel. Unlike the original's condition-variable
// queue, Post is a non-blocking buffered channel send: a bus with a full
// backlog drops the newly posted event rather than stalling a worker
// goroutine mid-Process.
type Bus struct {
	events chan Event
	stop   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	watchers []Watcher
	running  bool
}

// busBacklog bounds how many undelivered events the bus holds before
// PostEvent starts discarding new ones; the poll loop is expected to keep up
// with bursts on the order of per-frame error/EOS events, not saturate it.
const busBacklog = 4096

// New creates a Bus with no watchers and no running poll loop.
func New() *Bus {
	return &Bus{events: make(chan Event, busBacklog)}
}

// PostEvent enqueues event for the poll loop. It never blocks: if the
// channel is full, the event is dropped.
func (b *Bus) PostEvent(event Event) bool {
	select {
	case b.events <- event:
		return true
	default:
		return false
	}
}

// AddBusWatch registers func and returns the number of watchers now
// registered.
func (b *Bus) AddBusWatch(fn Watcher) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, fn)
	return len(b.watchers)
}

// ClearAllWatchers removes every registered watcher.
func (b *Bus) ClearAllWatchers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = nil
}

// IsRunning reports whether Start has been called and Stop has not yet
// completed.
func (b *Bus) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start launches the poll loop in a new goroutine. Calling Start twice
// without an intervening Stop is a no-op.
func (b *Bus) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	stop, done := b.stop, b.done
	b.mu.Unlock()

	go b.pollLoop(stop, done)
}

func (b *Bus) pollLoop(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev := <-b.events:
			if b.dispatch(ev) == HandleStop {
				return
			}
		case <-stop:
			return
		}
	}
}

// dispatch informs watchers in registration order until one returns
// HandleInterception (suppress remaining watchers) or HandleStop (also
// stop the poll loop).
func (b *Bus) dispatch(ev Event) HandleFlag {
	b.mu.Lock()
	watchers := append([]Watcher(nil), b.watchers...)
	b.mu.Unlock()

	for _, w := range watchers {
		switch w(ev) {
		case HandleInterception:
			return HandleNull
		case HandleStop:
			return HandleStop
		}
	}
	return HandleNull
}

// Stop signals the poll loop to exit and waits for it to do so.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	stop, done := b.stop, b.done
	b.mu.Unlock()

	close(stop)
	<-done
}
