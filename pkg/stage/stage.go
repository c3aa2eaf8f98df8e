// Package stage defines the external collaborator contracts a processing
// node in the DAG must implement, and the immutable topology node the
// pipeline builds around one (spec.md §3 "StageNode", §6 "Stage contract").
package stage

import "github.com/cnstream-go/cnstream/pkg/frame"

// Transmitter is handed to a stage at Open time so it can route a frame
// onward after Process returns. The pipeline, not the stage, decides where
// a frame goes next; the stage only decides whether and when to call
// Transmit at all — a stage that wants to hold or drop a frame simply
// never calls it for that frame (spec.md §4.7 "the routing after success
// is driven by the stage's explicit transmit(frame) call").
type Transmitter interface {
	Transmit(f *frame.Frame)
}

// Stage is the interface every DAG node implements (spec.md §6).
type Stage interface {
	// Open is called once before any Process call, with the Transmitter
	// this stage must use to route frames it decides to pass on. A false
	// return aborts the pipeline's Start and causes Close to be skipped
	// for this stage.
	Open(config map[string]string, tx Transmitter) bool
	// Close is called once after every worker has stopped calling Process,
	// but only if Open returned true.
	Close()
	// Process handles one frame. It returns 0 on success (the frame may
	// have been transmitted downstream, dropped, or held internally) and a
	// negative value to signal failure; Process must not block
	// indefinitely, since it runs on a worker goroutine shared by every
	// stream routed to its conveyor.
	Process(f *frame.Frame) int32
}

// FrameObserver is fired by the pipeline after a frame has cleared a
// stage's Process call, i.e. once OnProcessEnd-equivalent bookkeeping is
// done but before the frame is routed onward. Optional.
type FrameObserver interface {
	OnFrameDone(f *frame.Frame)
}

// Source is implemented in addition to Stage by head stages: those with no
// parents, which inject freshly-minted frames via Pipeline.ProvideData
// (spec.md §6 "Source contract").
type Source interface {
	Stage
	AddSource(handler SourceHandler) bool
	RemoveSource(streamID string, force bool) bool
	RemoveSources(force bool) bool
}

// SourceHandler is the per-stream driver a Source stage owns: one handler
// per live stream, responsible for pulling or receiving raw data and
// calling Pipeline.ProvideData.
type SourceHandler interface {
	Open() bool
	Close()
	GetStreamID() string
}
