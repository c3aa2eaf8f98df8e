package stage

// Node is one stage's place in the built DAG: immutable after the
// pipeline's build phase completes (spec.md §3 "StageNode").
type Node struct {
	ID            uint
	Name          string
	Parallelism   int
	QueueCapacity int
	// ParentsMask is the OR of (1<<id) over every direct parent. Zero for a
	// head stage.
	ParentsMask uint64
	// RouteMask is, for a head stage only, the OR of (1<<id) over every
	// stage reachable from this head by DFS, including the head's own id.
	// Zero for non-head stages.
	RouteMask uint64
	// Next lists the dense ids of this stage's direct children, in the
	// order they were declared in the topology.
	Next []uint

	Stage Stage
}

// IsHead reports whether this node has no parents.
func (n *Node) IsHead() bool { return n.ParentsMask == 0 }
