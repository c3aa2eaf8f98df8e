// Package tracer implements the lock-free trace event ring and the
// time-window trace query API that sits on top of it (spec.md §4.1-4.2).
package tracer

import (
	"time"

	"github.com/cnstream-go/cnstream/pkg/frame"
)

// Level distinguishes whole-pipeline trace events from per-module ones.
type Level int

const (
	// LevelPipeline marks an event belonging to the overall process.
	LevelPipeline Level = iota
	// LevelModule marks an event belonging to one stage's process region.
	LevelModule
)

// EventType is START or END of a process region for one frame.
type EventType int

const (
	// Start marks the beginning of a process region for a frame.
	Start EventType = iota
	// End marks the end of a process region for a frame.
	End
)

// Event is one trace record: a frame key, the process/module it belongs
// to, when it happened, and whether it is a START or an END.
type Event struct {
	Key         frame.RecordKey
	ModuleName  string
	ProcessName string
	Time        time.Time
	Level       Level
	Type        EventType
}

// Elem is an Event stripped of its module/process name, bucketed by the
// caller into the right map key already.
type Elem struct {
	Key  frame.RecordKey
	Time time.Time
	Type EventType
}

// Trace is a query result: pipeline-level events bucketed by process name,
// and module-level events bucketed by module then by process name.
type Trace struct {
	ProcessTraces map[string][]Elem
	ModuleTraces  map[string]map[string][]Elem
}

// newTrace returns a Trace with both maps initialized empty.
func newTrace() Trace {
	return Trace{
		ProcessTraces: make(map[string][]Elem),
		ModuleTraces:  make(map[string]map[string][]Elem),
	}
}

func (t Trace) add(ev Event) {
	elem := Elem{Key: ev.Key, Time: ev.Time, Type: ev.Type}
	switch ev.Level {
	case LevelPipeline:
		t.ProcessTraces[ev.ProcessName] = append(t.ProcessTraces[ev.ProcessName], elem)
	case LevelModule:
		byProcess, ok := t.ModuleTraces[ev.ModuleName]
		if !ok {
			byProcess = make(map[string][]Elem)
			t.ModuleTraces[ev.ModuleName] = byProcess
		}
		byProcess[ev.ProcessName] = append(byProcess[ev.ProcessName], elem)
	}
}
