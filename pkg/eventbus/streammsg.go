package eventbus

import "sync"

// MsgType mirrors Type but at the user-observable StreamMsg granularity
// (spec.md §4.8).
type MsgType int

const (
	ErrorMsg MsgType = iota
	FrameErrorMsg
	StreamErrorMsg
	EOSMsg
	StopMsg
)

// StreamMsg is what application code actually observes: a bus Event
// projected down to the fields a stream-status observer needs.
type StreamMsg struct {
	Type       MsgType
	StreamID   string
	ModuleName string
	PTS        int64
}

// Observer receives stream messages drained from the default watch's
// queue, one call per message, in the order they were posted.
type Observer func(StreamMsg)

// StreamMsgQueue is a FIFO of StreamMsgs (each Pipeline owns one), drained by its own
// loop goroutine and dispatched to a single registered Observer.
type StreamMsgQueue struct {
	msgs chan StreamMsg
	stop chan struct{}
	done chan struct{}

	mu       sync.Mutex
	observer Observer
	running  bool
}

// streamMsgBacklog bounds the queue the same way eventbus's busBacklog
// does: an unread backlog beyond this is dropped rather than blocking the
// default watch (and therefore the bus's poll loop) on a slow observer.
const streamMsgBacklog = 4096

// NewStreamMsgQueue creates an empty queue with no observer.
func NewStreamMsgQueue() *StreamMsgQueue {
	return &StreamMsgQueue{msgs: make(chan StreamMsg, streamMsgBacklog)}
}

// SetObserver installs the single observer invoked by the drain loop.
func (q *StreamMsgQueue) SetObserver(obs Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observer = obs
}

// Enqueue posts msg. Non-blocking; drops msg if the queue is saturated.
func (q *StreamMsgQueue) Enqueue(msg StreamMsg) bool {
	select {
	case q.msgs <- msg:
		return true
	default:
		return false
	}
}

// Start launches the drain loop.
func (q *StreamMsgQueue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	stop, done := q.stop, q.done
	q.mu.Unlock()

	go q.drainLoop(stop, done)
}

func (q *StreamMsgQueue) drainLoop(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case msg := <-q.msgs:
			q.mu.Lock()
			obs := q.observer
			q.mu.Unlock()
			if obs != nil {
				obs(msg)
			}
		case <-stop:
			return
		}
	}
}

// Stop halts the drain loop and waits for it to exit.
func (q *StreamMsgQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	stop, done := q.stop, q.done
	q.mu.Unlock()

	close(stop)
	<-done
}

// DefaultWatch builds a Watcher that converts every bus Event of a known
// type into a StreamMsg and enqueues it onto queue, implementing the bus's
// default watch (spec.md §4.8). The module-level types (Error, Warning,
// Stop) map to ErrorMsg/StopMsg; stream/frame-scoped types keep their
// distinction. Any other type is not enqueued and yields HandleNull.
func DefaultWatch(queue *StreamMsgQueue) Watcher {
	return func(ev Event) HandleFlag {
		msg := StreamMsg{StreamID: ev.StreamID, ModuleName: ev.ModuleName, PTS: ev.PTS}
		switch ev.Type {
		case Error, Warning:
			msg.Type = ErrorMsg
		case StreamFrameError:
			msg.Type = FrameErrorMsg
		case StreamError:
			msg.Type = StreamErrorMsg
		case EOS:
			msg.Type = EOSMsg
		case Stop:
			msg.Type = StopMsg
		default:
			return HandleNull
		}
		queue.Enqueue(msg)
		return HandleSynced
	}
}
