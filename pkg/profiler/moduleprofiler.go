package profiler

import (
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/cnstream-go/cnstream/pkg/tracer"
)

// ModuleProfiler owns every named process region registered on one stage,
// e.g. "INPUT_QUEUE" and "PROCESS" (spec.md §4.5).
type ModuleProfiler struct {
	moduleName string
	tracer     *tracer.Tracer
	clock      clock.Clock
	enableProf bool
	enableTrc  bool
	maxDPBSize uint64

	mu        sync.Mutex
	processes map[string]*ProcessProfiler
	order     []string
}

// NewModuleProfiler creates an empty registry for moduleName.
func NewModuleProfiler(moduleName string, enableProfiling, enableTracing bool, t *tracer.Tracer, maxDPBSize uint64) *ModuleProfiler {
	return NewModuleProfilerWithClock(moduleName, enableProfiling, enableTracing, t, maxDPBSize, clock.New())
}

// NewModuleProfilerWithClock is NewModuleProfiler with an injectable clock.
func NewModuleProfilerWithClock(moduleName string, enableProfiling, enableTracing bool, t *tracer.Tracer, maxDPBSize uint64, c clock.Clock) *ModuleProfiler {
	return &ModuleProfiler{
		moduleName: moduleName,
		tracer:     t,
		clock:      c,
		enableProf: enableProfiling,
		enableTrc:  enableTracing && t != nil,
		maxDPBSize: maxDPBSize,
		processes:  make(map[string]*ProcessProfiler),
	}
}

// RegisterProcess adds a new named process region at the given trace level.
// Returns false if processName is already registered (spec.md §4.5).
func (m *ModuleProfiler) RegisterProcess(processName string, level tracer.Level) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processes[processName]; ok {
		return false
	}
	cfg := Config{
		EnableProfiling: m.enableProf,
		EnableTracing:   m.enableTrc,
		ProcessName:     processName,
		TraceLevel:      level,
		ModuleName:      m.moduleName,
		MaxDPBSize:      m.maxDPBSize,
	}
	m.processes[processName] = NewWithClock(cfg, m.tracer, m.clock)
	m.order = append(m.order, processName)
	return true
}

// Process returns the named process region, or nil if unregistered.
func (m *ModuleProfiler) Process(processName string) *ProcessProfiler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processes[processName]
}

// OnStreamEos forwards stream teardown to every registered process.
func (m *ModuleProfiler) OnStreamEos(streamID string) {
	m.mu.Lock()
	procs := make([]*ProcessProfiler, 0, len(m.processes))
	for _, p := range m.processes {
		procs = append(procs, p)
	}
	m.mu.Unlock()
	for _, p := range procs {
		p.OnStreamEos(streamID)
	}
}

// GetProfile aggregates every registered process's current snapshot, sorted
// by registration order.
func (m *ModuleProfiler) GetProfile() ModuleProfile {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	procs := make(map[string]*ProcessProfiler, len(m.processes))
	for k, v := range m.processes {
		procs[k] = v
	}
	m.mu.Unlock()

	prof := ModuleProfile{ModuleName: m.moduleName}
	for _, name := range order {
		prof.ProcessProfiles = append(prof.ProcessProfiles, procs[name].GetProfile())
	}
	return prof
}
