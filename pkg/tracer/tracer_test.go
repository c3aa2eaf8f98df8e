package tracer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnstream-go/cnstream/pkg/frame"
)

func TestGetTraceBucketsByLevel(t *testing.T) {
	tr := New(100)
	base := time.Unix(100, 0)

	tr.Record(Event{Key: frame.RecordKey{StreamID: "s", Timestamp: 0}, ProcessName: "PROCESS", ModuleName: "decode", Level: LevelModule, Type: Start, Time: base.Add(1 * time.Millisecond)})
	tr.Record(Event{Key: frame.RecordKey{StreamID: "s", Timestamp: 0}, ProcessName: "OVERALL", Level: LevelPipeline, Type: Start, Time: base.Add(2 * time.Millisecond)})
	tr.Record(Event{Key: frame.RecordKey{StreamID: "s", Timestamp: 0}, ProcessName: "PROCESS", ModuleName: "decode", Level: LevelModule, Type: End, Time: base.Add(3 * time.Millisecond)})

	trace := tr.GetTrace(base, base.Add(1*time.Second))
	require.Contains(t, trace.ModuleTraces, "decode")
	require.Contains(t, trace.ModuleTraces["decode"], "PROCESS")
	assert.Len(t, trace.ModuleTraces["decode"]["PROCESS"], 2)
	assert.Len(t, trace.ProcessTraces["OVERALL"], 1)
}

func TestGetTraceIsStrictlyAfterStartAndAtMostEnd(t *testing.T) {
	tr := New(100)
	base := time.Unix(100, 0)

	tr.Record(Event{Key: frame.RecordKey{StreamID: "s", Timestamp: 0}, ProcessName: "P", Level: LevelPipeline, Type: Start, Time: base})
	tr.Record(Event{Key: frame.RecordKey{StreamID: "s", Timestamp: 1}, ProcessName: "P", Level: LevelPipeline, Type: Start, Time: base.Add(1 * time.Millisecond)})
	tr.Record(Event{Key: frame.RecordKey{StreamID: "s", Timestamp: 2}, ProcessName: "P", Level: LevelPipeline, Type: Start, Time: base.Add(2 * time.Millisecond)})

	trace := tr.GetTrace(base, base.Add(1*time.Millisecond))
	require.Len(t, trace.ProcessTraces["P"], 1)
	assert.Equal(t, int64(1), trace.ProcessTraces["P"][0].Key.Timestamp)
}

func TestGetTraceEmptyWhenEndNotAfterStart(t *testing.T) {
	tr := New(100)
	base := time.Unix(100, 0)
	tr.Record(Event{Key: frame.RecordKey{StreamID: "s", Timestamp: 0}, ProcessName: "P", Level: LevelPipeline, Type: Start, Time: base})

	trace := tr.GetTrace(base, base)
	assert.Empty(t, trace.ProcessTraces)

	trace = tr.GetTrace(base, base.Add(-time.Millisecond))
	assert.Empty(t, trace.ProcessTraces)
}

func TestGetTraceBeforeAndAfter(t *testing.T) {
	tr := New(100)
	base := time.Unix(100, 0)
	tr.Record(Event{Key: frame.RecordKey{StreamID: "s", Timestamp: 0}, ProcessName: "P", Level: LevelPipeline, Type: Start, Time: base.Add(5 * time.Millisecond)})

	before := tr.GetTraceBefore(base.Add(10*time.Millisecond), 10*time.Millisecond)
	assert.Len(t, before.ProcessTraces["P"], 1)

	after := tr.GetTraceAfter(base, 10*time.Millisecond)
	assert.Len(t, after.ProcessTraces["P"], 1)
}

func TestNoDuplicatesAcrossOverlappingQueries(t *testing.T) {
	tr := New(100)
	base := time.Unix(100, 0)
	for i := 0; i < 10; i++ {
		tr.Record(Event{Key: frame.RecordKey{StreamID: "s", Timestamp: int64(i)}, ProcessName: "P", Level: LevelPipeline, Type: Start, Time: base.Add(time.Duration(i) * time.Millisecond)})
	}
	trace := tr.GetTrace(base.Add(-time.Millisecond), base.Add(20*time.Millisecond))
	seen := map[int64]bool{}
	for _, e := range trace.ProcessTraces["P"] {
		assert.False(t, seen[e.Key.Timestamp], "duplicate event for timestamp %d", e.Key.Timestamp)
		seen[e.Key.Timestamp] = true
	}
	assert.Len(t, seen, 10)
}
