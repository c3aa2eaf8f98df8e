package profiler

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnstream-go/cnstream/pkg/frame"
)

func key(stream string, ts int64) frame.RecordKey {
	return frame.RecordKey{StreamID: stream, Timestamp: ts}
}

func TestProcessProfilerBasicLatencyAndFPS(t *testing.T) {
	mock := clock.NewMock()
	p := NewWithClock(Config{EnableProfiling: true, ProcessName: "decode"}, nil, mock)
	p.cfg.EnableTracing = false

	p.RecordStart(key("s1", 0))
	mock.Add(10 * time.Millisecond)
	p.RecordEnd(key("s1", 0))

	mock.Add(10 * time.Millisecond)
	p.RecordStart(key("s1", 1))
	mock.Add(10 * time.Millisecond)
	p.RecordEnd(key("s1", 1))

	prof := p.GetProfile()
	assert.EqualValues(t, 2, prof.Completed)
	assert.Zero(t, prof.Dropped)
	assert.EqualValues(t, 2, prof.Counter)
	assert.InDelta(t, 10.0, prof.Latency, 0.001)
	// Wall time accrues only while a record is ongoing: 10ms + 10ms, so
	// fps = 1000 * 2 / 20.
	assert.InDelta(t, 100.0, prof.FPS, 0.001)
	require.Len(t, prof.StreamProfiles, 1)
	assert.Equal(t, "s1", prof.StreamProfiles[0].StreamID)
	assert.EqualValues(t, 2, prof.StreamProfiles[0].Completed)
}

// TestProcessProfilerDropsBeyondMaxDPBSize exercises the DPB-style sweep
// (spec.md §4.4): MAX_DPB_SIZE consecutive unmatched starts for other
// records are tolerated, but once a start has been skipped over more than
// maxDPBSize times it is retired as dropped rather than kept around
// forever waiting for an end that will never come.
func TestProcessProfilerDropsBeyondMaxDPBSize(t *testing.T) {
	mock := clock.NewMock()
	p := NewWithClock(Config{EnableProfiling: true, ProcessName: "p", MaxDPBSize: 2}, nil, mock)

	// A starts and is never matched by an end.
	p.RecordStart(key("s1", 0))

	// Three more starts interleave; each of their ends retires whichever of
	// the still-open earlier starts they match, and on each end, record 0's
	// skip counter increments.
	for i := int64(1); i <= 3; i++ {
		p.RecordStart(key("s1", i))
		mock.Add(time.Millisecond)
		p.RecordEnd(key("s1", i))
	}

	prof := p.GetProfile()
	// Record 0's skip counter exceeds maxDPBSize=2 on the third other end,
	// so it is dropped; the three matched records completed normally.
	assert.EqualValues(t, 3, prof.Completed)
	assert.EqualValues(t, 1, prof.Dropped)
}

func TestProcessProfilerEndWithoutStartOnlyMovesCompleted(t *testing.T) {
	mock := clock.NewMock()
	p := NewWithClock(Config{EnableProfiling: true, ProcessName: "p"}, nil, mock)

	p.RecordEnd(key("s1", 0))

	prof := p.GetProfile()
	assert.EqualValues(t, 1, prof.Completed)
	assert.Zero(t, prof.Dropped)
	assert.EqualValues(t, -1, prof.Latency)
}

func TestProcessProfilerOnStreamEosDropsOngoing(t *testing.T) {
	mock := clock.NewMock()
	p := NewWithClock(Config{EnableProfiling: true, ProcessName: "p"}, nil, mock)

	p.RecordStart(key("s1", 0))
	p.RecordStart(key("s1", 1))
	p.OnStreamEos("s1")

	prof := p.GetProfile()
	assert.Empty(t, prof.StreamProfiles)

	// Calling it again for the same (now-forgotten) stream is a no-op.
	p.OnStreamEos("s1")
	prof = p.GetProfile()
	assert.Empty(t, prof.StreamProfiles)
}

func TestProcessProfilerDisabledIsNoop(t *testing.T) {
	p := NewWithClock(Config{EnableProfiling: false}, nil, clock.NewMock())
	p.RecordStart(key("s1", 0))
	p.RecordEnd(key("s1", 0))
	prof := p.GetProfile()
	assert.Zero(t, prof.Completed)
}

func TestGetProfileFromTraceReplaysIdenticallyToLiveRecording(t *testing.T) {
	mock := clock.NewMock()
	live := NewWithClock(Config{EnableProfiling: true, ProcessName: "p"}, nil, mock)

	t0 := mock.Now()
	live.RecordStart(key("s1", 0))
	mock.Add(5 * time.Millisecond)
	t1 := mock.Now()
	live.RecordEnd(key("s1", 0))

	liveProf := live.GetProfile()

	trace := []ProcessTraceElem{
		{Key: key("s1", 0), Time: t0, Type: 0},
		{Key: key("s1", 0), Time: t1, Type: 1},
	}
	replay := GetProfileFromTrace("p", 0, trace)

	assert.Equal(t, liveProf.Completed, replay.Completed)
	assert.Equal(t, liveProf.Dropped, replay.Dropped)
	assert.InDelta(t, liveProf.Latency, replay.Latency, 0.001)
}
