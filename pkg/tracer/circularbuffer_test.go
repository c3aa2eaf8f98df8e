package tracer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cnstream-go/cnstream/pkg/frame"
)

func TestCircularBufferRetainsAtMostCapacityFromSingleThread(t *testing.T) {
	tr := New(100)
	base := time.Unix(0, 0)
	for i := 0; i < 200; i++ {
		tr.Record(Event{
			Key:         frame.RecordKey{StreamID: "s", Timestamp: int64(i)},
			ProcessName: "P",
			Level:       LevelPipeline,
			Type:        Start,
			Time:        base.Add(time.Duration(i+1) * time.Millisecond),
		})
	}

	trace := tr.GetTrace(time.Unix(0, 0), base.Add(1*time.Hour))
	assert.Len(t, trace.ProcessTraces["P"], 100, "ring of capacity 100 must retain exactly the newest 100 events")
}

func TestCircularBufferConcurrentWriters(t *testing.T) {
	tr := New(1000)
	base := time.Unix(0, 0)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				tr.Record(Event{
					Key:         frame.RecordKey{StreamID: "s", Timestamp: int64(w*1000 + i)},
					ProcessName: "P",
					Level:       LevelPipeline,
					Type:        Start,
					Time:        base.Add(time.Duration(w*1000+i+1) * time.Microsecond),
				})
			}
		}()
	}
	wg.Wait()

	trace := tr.GetTrace(time.Unix(0, 0), base.Add(1*time.Hour))
	assert.LessOrEqual(t, len(trace.ProcessTraces["P"]), 1000)
	assert.NotEmpty(t, trace.ProcessTraces["P"])
}
