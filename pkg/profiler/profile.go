// Package profiler implements the per-stream, per-process, per-module and
// per-pipeline profiling hierarchy of spec.md §4.3-§4.5: counters, latency
// accumulators, the DPB-style drop policy, and their snapshot/replay APIs.
package profiler

import "time"

// StreamProfile is the immutable snapshot returned by
// StreamProfiler.GetProfile.
type StreamProfile struct {
	StreamID    string
	Counter     uint64
	Completed   uint64
	Dropped     uint64
	FPS         float64
	Latency     float64
	MinLatency  time.Duration
	MaxLatency  time.Duration
	WallTime    time.Duration
}

// ProcessProfile is the immutable snapshot returned by
// ProcessProfiler.GetProfile.
type ProcessProfile struct {
	ProcessName    string
	Counter        uint64
	Completed      uint64
	Dropped        uint64
	Ongoing        uint64
	FPS            float64
	Latency        float64
	MinLatency     time.Duration
	MaxLatency     time.Duration
	StreamProfiles []StreamProfile
}

// ModuleProfile aggregates every process region registered on one stage.
type ModuleProfile struct {
	ModuleName      string
	ProcessProfiles []ProcessProfile
}

// PipelineProfile aggregates every module plus the overall end-to-end
// process region.
type PipelineProfile struct {
	ModuleProfiles []ModuleProfile
	Overall        ProcessProfile
}
