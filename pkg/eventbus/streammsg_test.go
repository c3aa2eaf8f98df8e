package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultWatchConvertsErrorEvent(t *testing.T) {
	q := NewStreamMsgQueue()
	watch := DefaultWatch(q)

	flag := watch(Event{Type: Error, StreamID: "s1", ModuleName: "decode"})
	assert.Equal(t, HandleSynced, flag)

	select {
	case msg := <-q.msgs:
		assert.Equal(t, ErrorMsg, msg.Type)
		assert.Equal(t, "s1", msg.StreamID)
	case <-time.After(time.Second):
		t.Fatal("expected a queued message")
	}
}

func TestDefaultWatchIgnoresUnknownEventType(t *testing.T) {
	q := NewStreamMsgQueue()
	watch := DefaultWatch(q)
	flag := watch(Event{Type: Type(9999)})
	assert.Equal(t, HandleNull, flag)
}

func TestStreamMsgQueueDrainLoopDispatchesInOrder(t *testing.T) {
	q := NewStreamMsgQueue()
	var received []MsgType
	done := make(chan struct{})
	q.SetObserver(func(msg StreamMsg) {
		received = append(received, msg.Type)
		if len(received) == 2 {
			close(done)
		}
	})
	q.Start()
	defer q.Stop()

	q.Enqueue(StreamMsg{Type: ErrorMsg})
	q.Enqueue(StreamMsg{Type: EOSMsg})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer never saw both messages")
	}
	assert.Equal(t, []MsgType{ErrorMsg, EOSMsg}, received)
}

func TestStreamMsgQueueEndToEndThroughBus(t *testing.T) {
	q := NewStreamMsgQueue()
	var gotPTS int64
	done := make(chan struct{})
	q.SetObserver(func(msg StreamMsg) {
		gotPTS = msg.PTS
		close(done)
	})
	q.Start()
	defer q.Stop()

	b := New()
	b.AddBusWatch(DefaultWatch(q))
	b.Start()
	defer b.Stop()

	b.PostEvent(Event{Type: StreamFrameError, StreamID: "s1", PTS: 42})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("message never reached observer")
	}
	assert.EqualValues(t, 42, gotPTS)
}
