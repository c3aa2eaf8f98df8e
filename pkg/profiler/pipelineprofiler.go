package profiler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cnstream-go/cnstream/pkg/frame"
	"github.com/cnstream-go/cnstream/pkg/tracer"
)

// processInputQueue and processProcess name the two regions every stage can
// expose: time spent waiting in a stage's input queue, and time spent
// inside Stage.Process itself (spec.md §4.5).
const (
	processInputQueue = "INPUT_QUEUE"
	processProcess    = "PROCESS"
	processOverall    = "OVERALL"
)

// Config for the whole pipeline's profiling subsystem (spec.md §4.1's
// profiler_config: enable_profiling / enable_tracing / tracer_capacity).
type PipelineConfig struct {
	EnableProfiling bool
	EnableTracing   bool
	TracerCapacity  uint64
	MaxDPBSize      uint64
}

// PipelineProfiler is the single root of the profiling hierarchy: one
// Tracer, one ModuleProfiler per stage, and one overall end-to-end
// ProcessProfiler spanning pipeline entry to exit (spec.md §4.5).
type PipelineProfiler struct {
	cfg   PipelineConfig
	trace *tracer.Tracer
	clock clock.Clock

	mu      sync.Mutex
	modules map[string]*ModuleProfiler
	order   []string
	overall *ProcessProfiler
}

// NewPipelineProfiler builds the profiler hierarchy for a pipeline whose
// stage topology is described by stageNames (in build order) and
// isHeadStage (true for stages with no parents, which therefore have no
// input queue to profile).
func NewPipelineProfiler(cfg PipelineConfig, stageNames []string, isHeadStage map[string]bool) *PipelineProfiler {
	return NewPipelineProfilerWithClock(cfg, stageNames, isHeadStage, clock.New())
}

// NewPipelineProfilerWithClock is NewPipelineProfiler with an injectable
// clock, used by tests to control fps/latency deterministically.
func NewPipelineProfilerWithClock(cfg PipelineConfig, stageNames []string, isHeadStage map[string]bool, c clock.Clock) *PipelineProfiler {
	capacity := cfg.TracerCapacity
	if capacity == 0 {
		capacity = tracer.DefaultCapacity
	}

	p := &PipelineProfiler{
		cfg:     cfg,
		clock:   c,
		modules: make(map[string]*ModuleProfiler),
	}
	if cfg.EnableTracing {
		p.trace = tracer.NewWithClock(capacity, c)
	}

	for _, name := range stageNames {
		mp := NewModuleProfilerWithClock(name, cfg.EnableProfiling, cfg.EnableTracing, p.trace, cfg.MaxDPBSize, c)
		if !isHeadStage[name] {
			mp.RegisterProcess(processInputQueue, tracer.LevelModule)
		}
		mp.RegisterProcess(processProcess, tracer.LevelModule)
		p.modules[name] = mp
		p.order = append(p.order, name)
	}

	p.overall = NewWithClock(Config{
		EnableProfiling: cfg.EnableProfiling,
		EnableTracing:   cfg.EnableTracing,
		ProcessName:     processOverall,
		TraceLevel:      tracer.LevelPipeline,
		MaxDPBSize:      cfg.MaxDPBSize,
	}, p.trace, c)

	return p
}

// Tracer exposes the underlying ring buffer, or nil if tracing is disabled.
func (p *PipelineProfiler) Tracer() *tracer.Tracer { return p.trace }

// Module returns the per-stage profiler, or nil if stageName is unknown.
func (p *PipelineProfiler) Module(stageName string) *ModuleProfiler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modules[stageName]
}

// RecordInput marks key entering stageName's input queue. No-op for head
// stages, which were never registered with an INPUT_QUEUE process.
func (p *PipelineProfiler) RecordInput(stageName string, key frame.RecordKey) {
	if mp := p.Module(stageName); mp != nil {
		if proc := mp.Process(processInputQueue); proc != nil {
			proc.RecordStart(key)
		}
	}
}

// RecordDequeued marks key leaving stageName's input queue and about to
// enter Process.
func (p *PipelineProfiler) RecordDequeued(stageName string, key frame.RecordKey) {
	if mp := p.Module(stageName); mp != nil {
		if proc := mp.Process(processInputQueue); proc != nil {
			proc.RecordEnd(key)
		}
	}
}

// RecordProcessStart/RecordProcessEnd bracket a call to Stage.Process.
func (p *PipelineProfiler) RecordProcessStart(stageName string, key frame.RecordKey) {
	if mp := p.Module(stageName); mp != nil {
		if proc := mp.Process(processProcess); proc != nil {
			proc.RecordStart(key)
		}
	}
}

func (p *PipelineProfiler) RecordProcessEnd(stageName string, key frame.RecordKey) {
	if mp := p.Module(stageName); mp != nil {
		if proc := mp.Process(processProcess); proc != nil {
			proc.RecordEnd(key)
		}
	}
}

// RecordPipelineStart/RecordPipelineEnd bracket a frame's full traversal of
// the pipeline, from ProvideData to its completion callback.
func (p *PipelineProfiler) RecordPipelineStart(key frame.RecordKey) { p.overall.RecordStart(key) }
func (p *PipelineProfiler) RecordPipelineEnd(key frame.RecordKey)   { p.overall.RecordEnd(key) }

// OnStreamEos tears down every module's and the overall profiler's
// bookkeeping for streamID.
func (p *PipelineProfiler) OnStreamEos(streamID string) {
	p.mu.Lock()
	modules := make([]*ModuleProfiler, 0, len(p.modules))
	for _, mp := range p.modules {
		modules = append(modules, mp)
	}
	p.mu.Unlock()
	for _, mp := range modules {
		mp.OnStreamEos(streamID)
	}
	p.overall.OnStreamEos(streamID)
}

// GetProfile snapshots the current cumulative state of every module plus
// the overall process, in stage build order (spec.md §4.5).
func (p *PipelineProfiler) GetProfile() PipelineProfile {
	p.mu.Lock()
	order := append([]string(nil), p.order...)
	modules := make(map[string]*ModuleProfiler, len(p.modules))
	for k, v := range p.modules {
		modules[k] = v
	}
	p.mu.Unlock()

	prof := PipelineProfile{Overall: p.overall.GetProfile()}
	for _, name := range order {
		prof.ModuleProfiles = append(prof.ModuleProfiles, modules[name].GetProfile())
	}
	return prof
}

// GetProfileWindow derives a profile covering only the (start, end] time
// window by replaying the tracer's recorded events through fresh
// ProcessProfilers, rather than reading the live cumulative counters
// (spec.md §4.5, "time-windowed profile"). Returns the zero PipelineProfile
// if tracing was never enabled.
func (p *PipelineProfiler) GetProfileWindow(start, end time.Time) PipelineProfile {
	if p.trace == nil {
		return PipelineProfile{}
	}
	trace := p.trace.GetTrace(start, end)

	var prof PipelineProfile
	for _, name := range p.order {
		mp := p.modules[name]
		modProf := ModuleProfile{ModuleName: name}
		for _, procName := range []string{processInputQueue, processProcess} {
			if mp.Process(procName) == nil {
				continue
			}
			elems := trace.ModuleTraces[name][procName]
			modProf.ProcessProfiles = append(modProf.ProcessProfiles, GetProfileFromTrace(procName, p.cfg.MaxDPBSize, elems))
		}
		prof.ModuleProfiles = append(prof.ModuleProfiles, modProf)
	}
	prof.Overall = GetProfileFromTrace(processOverall, p.cfg.MaxDPBSize, trace.ProcessTraces[processOverall])
	return prof
}
