package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cnstream-go/cnstream/pkg/conveyor"
	"github.com/cnstream-go/cnstream/pkg/eventbus"
	"github.com/cnstream-go/cnstream/pkg/frame"
	"github.com/cnstream-go/cnstream/pkg/log"
	"github.com/cnstream-go/cnstream/pkg/profiler"
	"github.com/cnstream-go/cnstream/pkg/stage"
	"github.com/cnstream-go/cnstream/pkg/streamid"
)

// pushRetryInterval is how long Transmit sleeps between retries when a
// downstream conveyor is full (spec.md §4.7 "Transmit").
const pushRetryInterval = 20 * time.Millisecond

// fullQueueLogEvery logs once every this many consecutive push failures.
const fullQueueLogEvery = 50

// Pipeline is the built, runnable DAG: stage nodes in dense id order, one
// Connector per non-head stage, the event bus and stream message queue,
// the profiler hierarchy, and the stream id allocator (spec.md §3
// "Pipeline").
type Pipeline struct {
	logger         log.Component
	nodes          []*stage.Node
	byName         map[string]*stage.Node
	connectors     map[uint]*conveyor.Connector
	profiler       *profiler.PipelineProfiler
	streamAlloc    *streamid.Allocator
	allModulesMask uint64

	bus      *eventbus.Bus
	msgQueue *eventbus.StreamMsgQueue

	mu             sync.Mutex
	running        bool
	opened         []*stage.Node
	removedStreams map[string]bool
	eosStreams     map[string]bool

	frameDoneMu sync.Mutex
	frameDoneCB func(*frame.Frame)

	workers  *errgroup.Group
	fatalCh  chan struct{}
	fatalSet sync.Once
}

func newPipeline(
	nodes []*stage.Node,
	connectors map[uint]*conveyor.Connector,
	prof *profiler.PipelineProfiler,
	streamAlloc *streamid.Allocator,
	allModulesMask uint64,
	logger log.Component,
) *Pipeline {
	byName := make(map[string]*stage.Node, len(nodes))
	for _, n := range nodes {
		byName[n.Name] = n
	}
	return &Pipeline{
		logger:         logger,
		nodes:          nodes,
		byName:         byName,
		connectors:     connectors,
		profiler:       prof,
		streamAlloc:    streamAlloc,
		allModulesMask: allModulesMask,
		bus:            eventbus.New(),
		msgQueue:       eventbus.NewStreamMsgQueue(),
		removedStreams: make(map[string]bool),
		eosStreams:     make(map[string]bool),
		fatalCh:        make(chan struct{}),
	}
}

// Profiler exposes the pipeline's profiler hierarchy for snapshotting.
func (p *Pipeline) Profiler() *profiler.PipelineProfiler { return p.profiler }

// SetStreamMsgObserver installs the single observer invoked for every
// drained StreamMsg (spec.md §4.8).
func (p *Pipeline) SetStreamMsgObserver(obs eventbus.Observer) { p.msgQueue.SetObserver(obs) }

// SetFrameDoneCallback installs the pass-through callback invoked when a
// non-EOS frame has cleared every required stage.
func (p *Pipeline) SetFrameDoneCallback(cb func(*frame.Frame)) {
	p.frameDoneMu.Lock()
	defer p.frameDoneMu.Unlock()
	p.frameDoneCB = cb
}

type nodeTransmitter struct {
	p *Pipeline
	n *stage.Node
}

func (t *nodeTransmitter) Transmit(f *frame.Frame) { t.p.transmit(t.n, f) }

// Start opens every stage (in dense id order), then starts every non-head
// stage's Connector and worker pool plus the event bus and stream message
// loop (spec.md §4.7 "Start").
func (p *Pipeline) Start(config map[string]map[string]string) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("pipeline: already running")
	}
	p.mu.Unlock()

	var opened []*stage.Node
	for _, n := range p.nodes {
		tx := &nodeTransmitter{p: p, n: n}
		if !n.Stage.Open(config[n.Name], tx) {
			for _, o := range opened {
				o.Stage.Close()
			}
			return fmt.Errorf("pipeline: stage %q failed to open", n.Name)
		}
		opened = append(opened, n)
	}

	p.bus.AddBusWatch(p.busWatch())
	p.bus.Start()
	p.msgQueue.Start()

	var workers errgroup.Group
	for _, n := range p.nodes {
		if n.IsHead() {
			continue
		}
		n := n
		conn := p.connectors[n.ID]
		conn.Start()
		for idx := 0; idx < conn.ConveyorCount(); idx++ {
			idx := idx
			workers.Go(func() error {
				p.workerLoop(n, conn, idx)
				return nil
			})
		}
	}

	p.mu.Lock()
	p.workers = &workers
	p.running = true
	p.opened = opened
	p.mu.Unlock()
	return nil
}

// Stop drains and stops every connector, joins every worker, stops the
// bus and message loop, closes every opened stage, and releases the
// frame-done callback (spec.md §4.7 "Stop").
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	opened := p.opened
	workers := p.workers
	p.opened = nil
	p.workers = nil
	p.mu.Unlock()

	for _, n := range p.nodes {
		if n.IsHead() {
			continue
		}
		conn := p.connectors[n.ID]
		conn.Stop()
		conn.EmptyDataQueue()
	}
	if workers != nil {
		_ = workers.Wait()
	}

	p.bus.Stop()
	p.msgQueue.Stop()

	for _, n := range opened {
		n.Stage.Close()
	}

	p.frameDoneMu.Lock()
	p.frameDoneCB = nil
	p.frameDoneMu.Unlock()
}

// ProvideData is how a source (head-stage) handler injects a freshly
// minted frame into the pipeline (spec.md §4.7 "Frame provision").
func (p *Pipeline) ProvideData(stageName string, f *frame.Frame) bool {
	n, ok := p.byName[stageName]
	if !ok || !n.IsHead() {
		return false
	}
	if f.ModulesMask() != 0 {
		return false
	}
	if !f.IsEOS() && p.isStreamRemoved(f.StreamID) {
		return false
	}
	p.profiler.RecordPipelineStart(f.Key())
	p.transmit(n, f)
	return true
}

// AcquireStreamIndex assigns (or returns the existing) dense index for
// streamID, or frame.Invalid if the allocator is full.
func (p *Pipeline) AcquireStreamIndex(streamID string) frame.StreamIndex {
	idx := p.streamAlloc.Acquire(streamID)
	if idx == streamid.Invalid {
		return frame.Invalid
	}
	return frame.StreamIndex(idx)
}

// ReleaseStreamIndex frees streamID's slot in the stream id allocator.
func (p *Pipeline) ReleaseStreamIndex(streamID string) { p.streamAlloc.Release(streamID) }

// WaitForStop blocks until every one of totalStreams distinct streams has
// reached EOS, a fatal bus event fires (an ERROR or STOP event), or ctx is
// done — whichever comes first (spec.md §5 "WaitForStop").
func (p *Pipeline) WaitForStop(ctx context.Context, totalStreams int) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.fatalCh:
			return errors.New("pipeline: stopped due to a fatal event")
		case <-ticker.C:
			p.mu.Lock()
			done := len(p.eosStreams)
			p.mu.Unlock()
			if done >= totalStreams {
				return nil
			}
		}
	}
}

func (p *Pipeline) markStreamRemoved(streamID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removedStreams[streamID] = true
}

func (p *Pipeline) isStreamRemoved(streamID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removedStreams[streamID]
}

func (p *Pipeline) markStreamEOSDone(streamID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eosStreams[streamID] = true
}

// workerLoop is one of a non-head stage's parallelism worker goroutines,
// pinned to conveyor idx so that stream_index mod parallelism always lands
// on the same goroutine, giving per-stream in-order processing (spec.md
// §5 "Scheduling model").
func (p *Pipeline) workerLoop(n *stage.Node, conn *conveyor.Connector, idx int) {
	conv := conn.Conveyor(idx)
	for {
		if conn.IsStopped() {
			return
		}
		f := conv.PopDataBuffer()
		if f == nil {
			continue
		}
		p.onProcessStart(n, f)
		ret := p.safeProcess(n, f)
		if ret < 0 {
			p.onProcessFailed(n, f, ret)
		}
	}
}

// safeProcess invokes the stage's Process, translating any panic into an
// Error bus event instead of killing the worker goroutine (spec.md §7
// "worker threads never panic to the caller").
func (p *Pipeline) safeProcess(n *stage.Node, f *frame.Frame) (ret int32) {
	defer func() {
		if r := recover(); r != nil {
			p.bus.PostEvent(eventbus.Event{
				Type:       eventbus.Error,
				ModuleName: n.Name,
				StreamID:   f.StreamID,
				Message:    fmt.Sprintf("panic in Process: %v", r),
				PTS:        f.Timestamp,
			})
			ret = -1
		}
	}()
	return n.Stage.Process(f)
}

// onProcessStart brackets Process with profiler bookkeeping, skipped for
// EOS frames (spec.md §4.7 "OnProcessStart").
func (p *Pipeline) onProcessStart(n *stage.Node, f *frame.Frame) {
	if f.IsEOS() {
		return
	}
	p.profiler.RecordDequeued(n.Name, f.Key())
	p.profiler.RecordProcessStart(n.Name, f.Key())
}

// onProcessFailed reports a stage's negative Process return as a
// stream-scoped error: it removes only the offending stream, leaving the
// rest of the pipeline running (spec.md §8 Scenario F), rather than the
// pipeline-fatal generic ERROR event a process crash would raise.
func (p *Pipeline) onProcessFailed(n *stage.Node, f *frame.Frame, ret int32) {
	p.bus.PostEvent(eventbus.Event{
		Type:       eventbus.StreamError,
		ModuleName: n.Name,
		StreamID:   f.StreamID,
		Message:    fmt.Sprintf("%s process failed, return value: %d", n.Name, ret),
		PTS:        f.Timestamp,
	})
}

// onDataInvalid reports a frame that arrived already flagged INVALID
// (spec.md §7 "Frame-level errors"): non-fatal, surfaced as FRAME_ERR_MSG.
func (p *Pipeline) onDataInvalid(n *stage.Node, f *frame.Frame) {
	p.msgQueue.Enqueue(eventbus.StreamMsg{
		Type:       eventbus.FrameErrorMsg,
		ModuleName: n.Name,
		StreamID:   f.StreamID,
		PTS:        f.Timestamp,
	})
}

// onProcessEnd brackets the end of Process with profiler bookkeeping and
// fires the stage's optional FrameObserver (spec.md §4.7 "OnProcessEnd").
func (p *Pipeline) onProcessEnd(n *stage.Node, f *frame.Frame) {
	p.profiler.RecordProcessEnd(n.Name, f.Key())
	p.notifyObserver(n, f)
}

func (p *Pipeline) notifyObserver(n *stage.Node, f *frame.Frame) {
	if obs, ok := n.Stage.(stage.FrameObserver); ok {
		obs.OnFrameDone(f)
	}
}

// onEOS fires the stage's observer, tears down that stage's per-stream
// profiler state, and posts an EOS bus event (spec.md §4.7 "OnEos"). Unlike
// a process-level error, reaching EOS at any one stage is not itself fatal
// or stream-removing; the stream message is only synthesized once EOS
// clears every required stage, in onPassThrough.
func (p *Pipeline) onEOS(n *stage.Node, f *frame.Frame) {
	p.notifyObserver(n, f)
	p.profiler.Module(n.Name).OnStreamEos(f.StreamID)
	p.bus.PostEvent(eventbus.Event{Type: eventbus.EOS, ModuleName: n.Name, StreamID: f.StreamID})
}

// onPassThrough runs once a frame has cleared every stage reachable from
// its head (modules_mask == all_modules_mask): for EOS frames it
// synthesizes the EOS_MSG and tears down the overall profiler's per-stream
// state (spec.md §4.7 "OnPassThrough", the only place an EOS_MSG is
// produced); for every other frame it fires the pipeline-wide frame-done
// callback and records the end of the overall process.
func (p *Pipeline) onPassThrough(f *frame.Frame) {
	if f.IsEOS() {
		p.msgQueue.Enqueue(eventbus.StreamMsg{Type: eventbus.EOSMsg, StreamID: f.StreamID, PTS: f.Timestamp})
		p.profiler.OnStreamEos(f.StreamID)
		p.markStreamEOSDone(f.StreamID)
		p.ReleaseStreamIndex(f.StreamID)
		return
	}
	p.frameDoneMu.Lock()
	cb := p.frameDoneCB
	p.frameDoneMu.Unlock()
	if cb != nil {
		cb(f)
	}
	p.profiler.RecordPipelineEnd(f.Key())
}

// transmit is the DAG router: it marks n's bit on the frame's completion
// mask and, for each child whose every parent has now stamped the mask,
// pushes the frame into that child's conveyor chosen by stream_index mod
// conveyor_count, retrying on a full queue (spec.md §4.7 "Transmit").
//
// An INVALID frame returns immediately after onDataInvalid. An EOS frame
// does NOT return early after onEOS: it still falls through the mask
// stamping and routing below exactly like any other frame, matching the
// original's TransmitData — only the terminal onPassThrough synthesizes
// the EOS_MSG.
func (p *Pipeline) transmit(n *stage.Node, f *frame.Frame) {
	if f.IsInvalid() {
		p.onDataInvalid(n, f)
		return
	}

	if n.IsHead() && f.ModulesMask() == 0 {
		f.SetModulesMask(p.allModulesMask ^ n.RouteMask)
	}

	if f.IsEOS() {
		p.onEOS(n, f)
	} else {
		p.onProcessEnd(n, f)
		if p.isStreamRemoved(f.StreamID) {
			return
		}
	}

	mask := f.MarkStage(n.ID)
	if mask == p.allModulesMask {
		p.onPassThrough(f)
		return
	}

	for _, childID := range n.Next {
		child := p.nodes[childID]
		if mask&child.ParentsMask != child.ParentsMask {
			continue
		}
		conn := p.connectors[child.ID]
		if !f.IsEOS() {
			p.profiler.RecordInput(child.Name, f.Key())
		}
		idx := int(f.StreamIndex) % conn.ConveyorCount()
		if idx < 0 {
			idx = 0
		}
		conv := conn.Conveyor(idx)
		for !conn.IsStopped() && !conv.PushDataBuffer(f) {
			if conv.GetFailTime()%fullQueueLogEvery == 0 {
				p.logger.Debugf("[%s %d] input buffer is full", child.Name, idx)
			}
			time.Sleep(pushRetryInterval)
		}
	}
}

// busWatch mirrors the original DefaultBusWatch: ERROR and STOP halt the
// bus (the pipeline's default policy treats a stage error as fatal);
// STREAM_ERROR marks the stream removed but keeps the pipeline running
// (spec.md §4.8, §7 "Error taxonomy").
func (p *Pipeline) busWatch() eventbus.Watcher {
	return func(ev eventbus.Event) eventbus.HandleFlag {
		switch ev.Type {
		case eventbus.Error:
			p.msgQueue.Enqueue(eventbus.StreamMsg{Type: eventbus.ErrorMsg, ModuleName: ev.ModuleName, StreamID: ev.StreamID})
			p.logger.Errorf("[%s]: %s", ev.ModuleName, ev.Message)
			p.fatalSet.Do(func() { close(p.fatalCh) })
			return eventbus.HandleStop
		case eventbus.Warning:
			p.logger.Warnf("[%s]: %s", ev.ModuleName, ev.Message)
			return eventbus.HandleSynced
		case eventbus.Stop:
			p.logger.Infof("[%s]: %s", ev.ModuleName, ev.Message)
			p.fatalSet.Do(func() { close(p.fatalCh) })
			return eventbus.HandleStop
		case eventbus.EOS:
			p.logger.Debugf("pipeline received eos from %s stream %s", ev.ModuleName, ev.StreamID)
			return eventbus.HandleSynced
		case eventbus.StreamError:
			p.msgQueue.Enqueue(eventbus.StreamMsg{Type: eventbus.StreamErrorMsg, ModuleName: ev.ModuleName, StreamID: ev.StreamID})
			p.markStreamRemoved(ev.StreamID)
			p.logger.Debugf("pipeline received stream error from %s stream %s", ev.ModuleName, ev.StreamID)
			return eventbus.HandleSynced
		default:
			return eventbus.HandleNull
		}
	}
}
