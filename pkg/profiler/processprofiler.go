package profiler

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cnstream-go/cnstream/pkg/frame"
	"github.com/cnstream-go/cnstream/pkg/tracer"
)

// Config configures one ProcessProfiler (spec.md §4.4).
type Config struct {
	EnableProfiling bool
	EnableTracing   bool
	ProcessName     string
	TraceLevel      tracer.Level
	// ModuleName is only meaningful when TraceLevel == tracer.LevelModule.
	ModuleName string
	// MaxDPBSize overrides DefaultMaxDPBSize when non-zero.
	MaxDPBSize uint64
}

// ProcessProfiler owns the drop policy and aggregation for one named
// process region inside one stage, or the whole pipeline for the overall
// region (spec.md §4.4).
type ProcessProfiler struct {
	cfg    Config
	tracer *tracer.Tracer
	clock  clock.Clock

	mu                sync.Mutex
	ongoing           uint64
	completed         uint64
	dropped           uint64
	latencyCount      uint64
	latencySum        time.Duration
	latencyMin        time.Duration
	latencyMax        time.Duration
	totalWallTime     time.Duration
	lastRecordTime    time.Time
	hasLastRecordTime bool
	perStream         map[string]*StreamProfiler
	policy            *recordPolicy
}

// New creates a ProcessProfiler. t may be nil when cfg.EnableTracing is
// false (tracing is then forced off regardless of cfg, matching the
// original's "if (!tracer) config_.enable_tracing = false").
func New(cfg Config, t *tracer.Tracer) *ProcessProfiler {
	return NewWithClock(cfg, t, clock.New())
}

// NewWithClock is New with an injectable clock for deterministic tests.
func NewWithClock(cfg Config, t *tracer.Tracer, c clock.Clock) *ProcessProfiler {
	if t == nil {
		cfg.EnableTracing = false
	}
	return &ProcessProfiler{
		cfg:       cfg,
		tracer:    t,
		clock:     c,
		perStream: make(map[string]*StreamProfiler),
		policy:    newRecordPolicy(cfg.MaxDPBSize),
	}
}

// Name returns the configured process name.
func (p *ProcessProfiler) Name() string { return p.cfg.ProcessName }

func (p *ProcessProfiler) now() time.Time {
	if p.clock != nil {
		return p.clock.Now()
	}
	return time.Now()
}

// RecordStart marks the beginning of this process region for key
// (spec.md §4.4).
func (p *ProcessProfiler) RecordStart(key frame.RecordKey) {
	if !p.cfg.EnableTracing && !p.cfg.EnableProfiling {
		return
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.EnableTracing {
		p.emitTrace(key, now, tracer.Start)
	}
	if p.cfg.EnableProfiling {
		p.recordStartLocked(key, now)
	}
}

// RecordEnd marks the end of this process region for key (spec.md §4.4).
func (p *ProcessProfiler) RecordEnd(key frame.RecordKey) {
	if !p.cfg.EnableTracing && !p.cfg.EnableProfiling {
		return
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.EnableTracing {
		p.emitTrace(key, now, tracer.End)
	}
	if p.cfg.EnableProfiling {
		p.recordEndLocked(key, now)
	}
}

func (p *ProcessProfiler) emitTrace(key frame.RecordKey, now time.Time, t tracer.EventType) {
	p.tracer.Record(tracer.Event{
		Key:         key,
		ModuleName:  p.cfg.ModuleName,
		ProcessName: p.cfg.ProcessName,
		Time:        now,
		Level:       p.cfg.TraceLevel,
		Type:        t,
	})
}

func (p *ProcessProfiler) ensureStream(streamID string) {
	if _, ok := p.perStream[streamID]; ok {
		return
	}
	p.perStream[streamID] = NewStreamProfiler(streamID)
	p.policy.onStreamStart(streamID)
}

// addPhysicalTime folds the delta since lastRecordTime into the process's
// cumulative wall time, and propagates that cumulative value to every
// per-stream accumulator (spec.md §4.4 / §9 open question: per-stream fps
// deliberately reflects the shared process clock, not a stream-local span).
func (p *ProcessProfiler) addPhysicalTime(now time.Time) {
	if !p.hasLastRecordTime {
		return
	}
	p.totalWallTime += now.Sub(p.lastRecordTime)
	for _, sp := range p.perStream {
		sp.UpdateWallTime(p.totalWallTime)
	}
}

func (p *ProcessProfiler) recordStartLocked(key frame.RecordKey, now time.Time) {
	p.ensureStream(key.StreamID)
	if p.ongoing > 0 {
		p.addPhysicalTime(now)
	}
	p.policy.addStart(key, now)
	p.lastRecordTime = now
	p.hasLastRecordTime = true
	p.ongoing++
}

func (p *ProcessProfiler) addLatency(streamID string, d time.Duration) {
	if sp, ok := p.perStream[streamID]; ok {
		sp.AddLatency(d)
	}
	if p.latencyCount == 0 || d < p.latencyMin {
		p.latencyMin = d
	}
	if p.latencyCount == 0 || d > p.latencyMax {
		p.latencyMax = d
	}
	p.latencySum += d
	p.latencyCount++
}

func (p *ProcessProfiler) addDropped(streamID string, n uint64) {
	if sp, ok := p.perStream[streamID]; ok {
		sp.AddDropped(n)
	}
	p.dropped += n
}

func (p *ProcessProfiler) recordEndLocked(key frame.RecordKey, now time.Time) {
	p.ensureStream(key.StreamID)

	idx, found := p.policy.findStart(key)
	switch {
	case !found && !p.hasLastRecordTime:
		// No start ever recorded for this process: only the completed
		// counters move (spec.md §4.4 step 3, "never" sentinel case).
	case !found:
		p.addPhysicalTime(now)
	default:
		if p.ongoing > 0 {
			p.addPhysicalTime(now)
		}
		latency := now.Sub(p.policy.records[key.StreamID][idx].start)
		p.addLatency(key.StreamID, latency)
		removed := p.policy.removeThisAndOtherUselessRecords(key.StreamID, idx)
		p.ongoing -= removed
		p.addDropped(key.StreamID, removed-1)
	}

	p.lastRecordTime = now
	p.hasLastRecordTime = true
	p.perStream[key.StreamID].AddCompleted()
	p.completed++
}

// OnStreamEos drops every remaining ongoing record for streamID, counting
// them as dropped, and removes its accumulators so subsequent GetProfile
// calls omit it (spec.md §4.4 "Stream EOS"). Calling it twice for the same
// stream is equivalent to calling it once.
func (p *ProcessProfiler) OnStreamEos(streamID string) {
	if !p.cfg.EnableTracing && !p.cfg.EnableProfiling {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.perStream[streamID]; !ok {
		return
	}
	remaining := p.policy.onStreamEos(streamID)
	p.ongoing -= remaining
	p.addDropped(streamID, remaining)
	delete(p.perStream, streamID)
}

// GetProfile snapshots every field under the lock (spec.md §4.4).
func (p *ProcessProfiler) GetProfile() ProcessProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *ProcessProfiler) snapshotLocked() ProcessProfile {
	prof := ProcessProfile{
		ProcessName: p.cfg.ProcessName,
		Completed:   p.completed,
		Dropped:     p.dropped,
		Counter:     p.completed + p.dropped,
		Ongoing:     p.ongoing,
		FPS:         -1,
		Latency:     -1,
	}
	if wallMS := durationMS(p.totalWallTime); wallMS > 0 {
		prof.FPS = 1000 * float64(prof.Counter) / wallMS
	}
	if p.latencyCount > 0 {
		prof.Latency = durationMS(p.latencySum) / float64(p.latencyCount)
		prof.MinLatency = p.latencyMin
		prof.MaxLatency = p.latencyMax
	}

	streamIDs := make([]string, 0, len(p.perStream))
	for id := range p.perStream {
		streamIDs = append(streamIDs, id)
	}
	sort.Strings(streamIDs)
	for _, id := range streamIDs {
		prof.StreamProfiles = append(prof.StreamProfiles, p.perStream[id].GetProfile())
	}
	return prof
}

// ProcessTraceElem is one (key, time, type) triple replayed through
// GetProfileFromTrace; it is an alias of tracer.Elem, so tracer query
// results can be passed in unchanged.
type ProcessTraceElem = tracer.Elem

// GetProfileFromTrace is a pure replay: it builds a fresh, empty
// ProcessProfiler with profiling enabled and tracing disabled, feeds it
// every element of trace in order, and returns its snapshot. This is how
// time-window profiles are derived from tracer data (spec.md §4.4).
func GetProfileFromTrace(processName string, maxDPBSize uint64, trace []ProcessTraceElem) ProcessProfile {
	fresh := NewWithClock(Config{EnableProfiling: true, ProcessName: processName, MaxDPBSize: maxDPBSize}, nil, nil)
	for _, elem := range trace {
		fresh.mu.Lock()
		switch elem.Type {
		case tracer.Start:
			fresh.recordStartLocked(elem.Key, elem.Time)
		case tracer.End:
			fresh.recordEndLocked(elem.Key, elem.Time)
		}
		fresh.mu.Unlock()
	}
	return fresh.GetProfile()
}
