package profiler

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipelineProfiler(mock *clock.Mock) *PipelineProfiler {
	cfg := PipelineConfig{EnableProfiling: true, EnableTracing: true, TracerCapacity: 1024}
	isHead := map[string]bool{"source": true, "decode": false, "sink": false}
	return NewPipelineProfilerWithClock(cfg, []string{"source", "decode", "sink"}, isHead, mock)
}

func TestPipelineProfilerRegistersInputQueueOnlyForNonHeadStages(t *testing.T) {
	mock := clock.NewMock()
	pp := newTestPipelineProfiler(mock)

	assert.Nil(t, pp.Module("source").Process(processInputQueue))
	assert.NotNil(t, pp.Module("source").Process(processProcess))
	assert.NotNil(t, pp.Module("decode").Process(processInputQueue))
	assert.NotNil(t, pp.Module("sink").Process(processInputQueue))
}

func TestPipelineProfilerGetProfileOrdersModulesByBuildOrder(t *testing.T) {
	mock := clock.NewMock()
	pp := newTestPipelineProfiler(mock)

	k := key("s1", 0)
	pp.RecordPipelineStart(k)
	pp.RecordProcessStart("source", k)
	mock.Add(time.Millisecond)
	pp.RecordProcessEnd("source", k)

	pp.RecordInput("decode", k)
	mock.Add(time.Millisecond)
	pp.RecordDequeued("decode", k)
	pp.RecordProcessStart("decode", k)
	mock.Add(time.Millisecond)
	pp.RecordProcessEnd("decode", k)
	pp.RecordPipelineEnd(k)

	prof := pp.GetProfile()
	require.Len(t, prof.ModuleProfiles, 3)
	assert.Equal(t, "source", prof.ModuleProfiles[0].ModuleName)
	assert.Equal(t, "decode", prof.ModuleProfiles[1].ModuleName)
	assert.Equal(t, "sink", prof.ModuleProfiles[2].ModuleName)
	assert.EqualValues(t, 1, prof.Overall.Completed)
}

func TestPipelineProfilerGetProfileWindowReplaysTracedEvents(t *testing.T) {
	mock := clock.NewMock()
	pp := newTestPipelineProfiler(mock)

	start := mock.Now()
	mock.Add(time.Millisecond)
	k := key("s1", 0)
	pp.RecordProcessStart("decode", k)
	mock.Add(2 * time.Millisecond)
	pp.RecordProcessEnd("decode", k)
	end := mock.Now()

	window := pp.GetProfileWindow(start, end)
	require.Len(t, window.ModuleProfiles, 3)
	decodeProf := window.ModuleProfiles[1]
	require.Len(t, decodeProf.ProcessProfiles, 2)
	// processInputQueue had no activity, processProcess had one completion.
	var processProf ProcessProfile
	for _, pp := range decodeProf.ProcessProfiles {
		if pp.ProcessName == processProcess {
			processProf = pp
		}
	}
	assert.EqualValues(t, 1, processProf.Completed)
}

func TestPipelineProfilerOnStreamEosClearsAllModulesAndOverall(t *testing.T) {
	mock := clock.NewMock()
	pp := newTestPipelineProfiler(mock)

	k := key("s1", 0)
	pp.RecordPipelineStart(k)
	pp.RecordProcessStart("decode", k)

	pp.OnStreamEos("s1")

	prof := pp.GetProfile()
	for _, m := range prof.ModuleProfiles {
		for _, p := range m.ProcessProfiles {
			assert.Empty(t, p.StreamProfiles)
		}
	}
	assert.Empty(t, prof.Overall.StreamProfiles)
}
