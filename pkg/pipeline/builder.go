// Package pipeline builds and runs the DAG runtime: dense stage ids,
// parents/route masks, per-stage connectors and worker pools, frame
// routing, and the event/message plumbing tying it all together
// (spec.md §4.7, grounded on
// original_source/framework/core/src/cnstream_pipeline.cpp).
package pipeline

import (
	"fmt"

	"github.com/cnstream-go/cnstream/pkg/conveyor"
	"github.com/cnstream-go/cnstream/pkg/log"
	"github.com/cnstream-go/cnstream/pkg/profiler"
	"github.com/cnstream-go/cnstream/pkg/stage"
	"github.com/cnstream-go/cnstream/pkg/streamid"
)

// maxModuleNumber matches the 64-bit width of every completion mask
// (spec.md §6 "max_module_number ≤ 64", §9 "module id bitmask width").
const maxModuleNumber = 64

// defaultStreamCapacity is used when Builder.Build is given capacity <= 0.
const defaultStreamCapacity = 128

// StageSpec describes one topology node before the DAG is built: its
// identity, its runtime knobs, and the edges leaving it.
type StageSpec struct {
	Name          string
	Parallelism   int
	QueueCapacity int
	Next          []string
	Stage         stage.Stage
}

// Builder accumulates StageSpecs and produces a validated Pipeline.
type Builder struct {
	specs []StageSpec
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// AddStage appends one stage to the topology being built.
func (b *Builder) AddStage(spec StageSpec) *Builder {
	b.specs = append(b.specs, spec)
	return b
}

// Build validates the accumulated topology and constructs a Pipeline
// (spec.md §4.7 "Build phase"). streamCapacity bounds the stream id
// allocator (0 uses defaultStreamCapacity); logger receives worker and
// routing diagnostics.
func (b *Builder) Build(cfg profiler.PipelineConfig, streamCapacity int, logger log.Component) (*Pipeline, error) {
	if len(b.specs) == 0 {
		return nil, fmt.Errorf("pipeline: no stages declared")
	}
	if len(b.specs) > maxModuleNumber {
		return nil, fmt.Errorf("pipeline: %d stages exceeds the %d-stage module mask limit", len(b.specs), maxModuleNumber)
	}

	byName := make(map[string]*StageSpec, len(b.specs))
	declOrder := make([]string, 0, len(b.specs))
	for i := range b.specs {
		s := &b.specs[i]
		if s.Name == "" {
			return nil, fmt.Errorf("pipeline: stage at position %d has an empty name", i)
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate stage name %q", s.Name)
		}
		if s.Stage == nil {
			return nil, fmt.Errorf("pipeline: stage %q has a nil Stage implementation", s.Name)
		}
		byName[s.Name] = s
		declOrder = append(declOrder, s.Name)
	}
	for _, s := range b.specs {
		for _, next := range s.Next {
			if _, ok := byName[next]; !ok {
				return nil, fmt.Errorf("pipeline: stage %q references unknown next stage %q", s.Name, next)
			}
		}
	}

	hasParent := make(map[string]bool, len(b.specs))
	for _, s := range b.specs {
		for _, next := range s.Next {
			hasParent[next] = true
		}
	}

	// Dense id assignment by DFS preorder, starting from every head stage
	// in declaration order (spec.md §4.7 step 2). The stage-id allocator
	// is the same lowest-unset-bit Allocator used for stream ids (spec.md
	// §4.9 "the stage-id allocator is analogous"), so sequential Acquire
	// calls during a single preorder walk yield ids 0..N-1 in visit order.
	idAlloc := streamid.New(maxModuleNumber)
	idOrder := make([]string, 0, len(b.specs))
	visiting := make(map[string]bool, len(b.specs))

	var dfs func(name string) error
	dfs = func(name string) error {
		if visiting[name] {
			return fmt.Errorf("pipeline: cycle detected at stage %q", name)
		}
		if _, acquired := idAlloc.Lookup(name); acquired {
			return nil
		}
		visiting[name] = true
		if idAlloc.Acquire(name) == streamid.Invalid {
			return fmt.Errorf("pipeline: stage id allocator exhausted at %q", name)
		}
		idOrder = append(idOrder, name)
		for _, next := range byName[name].Next {
			if err := dfs(next); err != nil {
				return err
			}
		}
		visiting[name] = false
		return nil
	}
	for _, name := range declOrder {
		if !hasParent[name] {
			if err := dfs(name); err != nil {
				return nil, err
			}
		}
	}
	if len(idOrder) != len(b.specs) {
		return nil, fmt.Errorf("pipeline: %d stage(s) unreachable from any head stage", len(b.specs)-len(idOrder))
	}

	idOf := make(map[string]uint, len(idOrder))
	for i, name := range idOrder {
		idOf[name] = uint(i)
	}

	nodes := make([]*stage.Node, len(idOrder))
	for name, id := range idOf {
		spec := byName[name]
		next := make([]uint, len(spec.Next))
		for i, n := range spec.Next {
			next[i] = idOf[n]
		}
		nodes[id] = &stage.Node{
			ID:            id,
			Name:          name,
			Parallelism:   spec.Parallelism,
			QueueCapacity: spec.QueueCapacity,
			Next:          next,
			Stage:         spec.Stage,
		}
	}

	// parents_mask (spec.md §4.7 step 3).
	for _, n := range nodes {
		for _, childID := range n.Next {
			nodes[childID].ParentsMask |= 1 << n.ID
		}
	}

	// route_mask for head nodes: the DFS-reachable set from that head,
	// including itself (spec.md §4.7 step 4).
	for _, n := range nodes {
		if !n.IsHead() {
			continue
		}
		seen := make(map[uint]bool, len(nodes))
		var mark func(id uint)
		mark = func(id uint) {
			if seen[id] {
				return
			}
			seen[id] = true
			n.RouteMask |= 1 << id
			for _, c := range nodes[id].Next {
				mark(c)
			}
		}
		mark(n.ID)
	}

	// Connectors for every non-head stage (spec.md §4.7 step 5).
	connectors := make(map[uint]*conveyor.Connector, len(nodes))
	isHead := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		isHead[n.Name] = n.IsHead()
		if n.IsHead() {
			continue
		}
		if n.Parallelism <= 0 || n.QueueCapacity <= 0 {
			return nil, fmt.Errorf("pipeline: stage %q has invalid parallelism=%d or queue_capacity=%d",
				n.Name, n.Parallelism, n.QueueCapacity)
		}
		connectors[n.ID] = conveyor.NewConnector(n.Parallelism, n.QueueCapacity)
	}

	var allModulesMask uint64
	for _, n := range nodes {
		allModulesMask |= 1 << n.ID
	}

	prof := profiler.NewPipelineProfiler(cfg, idOrder, isHead)

	if streamCapacity <= 0 {
		streamCapacity = defaultStreamCapacity
	}
	streamAlloc := streamid.New(streamCapacity)

	return newPipeline(nodes, connectors, prof, streamAlloc, allModulesMask, logger), nil
}
