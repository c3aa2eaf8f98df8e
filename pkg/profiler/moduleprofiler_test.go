package profiler

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnstream-go/cnstream/pkg/tracer"
)

func TestModuleProfilerRegisterProcessRejectsDuplicates(t *testing.T) {
	mp := NewModuleProfilerWithClock("decode", true, false, nil, 0, clock.NewMock())
	assert.True(t, mp.RegisterProcess(processProcess, tracer.LevelModule))
	assert.False(t, mp.RegisterProcess(processProcess, tracer.LevelModule))
}

func TestModuleProfilerGetProfileAggregatesRegisteredProcesses(t *testing.T) {
	mock := clock.NewMock()
	mp := NewModuleProfilerWithClock("decode", true, false, nil, 0, mock)
	mp.RegisterProcess(processInputQueue, tracer.LevelModule)
	mp.RegisterProcess(processProcess, tracer.LevelModule)

	mp.Process(processInputQueue).RecordStart(key("s1", 0))
	mp.Process(processInputQueue).RecordEnd(key("s1", 0))
	mp.Process(processProcess).RecordStart(key("s1", 0))
	mp.Process(processProcess).RecordEnd(key("s1", 0))

	prof := mp.GetProfile()
	require.Len(t, prof.ProcessProfiles, 2)
	assert.Equal(t, "decode", prof.ModuleName)
	assert.Equal(t, processInputQueue, prof.ProcessProfiles[0].ProcessName)
	assert.Equal(t, processProcess, prof.ProcessProfiles[1].ProcessName)
	assert.EqualValues(t, 1, prof.ProcessProfiles[0].Completed)
	assert.EqualValues(t, 1, prof.ProcessProfiles[1].Completed)
}

func TestModuleProfilerOnStreamEosForwardsToEveryProcess(t *testing.T) {
	mock := clock.NewMock()
	mp := NewModuleProfilerWithClock("decode", true, false, nil, 0, mock)
	mp.RegisterProcess(processProcess, tracer.LevelModule)
	mp.Process(processProcess).RecordStart(key("s1", 0))

	mp.OnStreamEos("s1")

	prof := mp.GetProfile()
	assert.Empty(t, prof.ProcessProfiles[0].StreamProfiles)
}
