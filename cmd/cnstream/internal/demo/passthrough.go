// Package demo provides the minimal stage.Stage used to smoke-test a
// topology loaded by cmd/cnstream. Concrete source adapters and
// processing stages are out of scope (spec.md §1); this is the CLI's own
// plumbing self-test, not a feature.
package demo

import (
	"github.com/cnstream-go/cnstream/pkg/frame"
	"github.com/cnstream-go/cnstream/pkg/stage"
)

// Passthrough forwards every frame it receives to every configured child
// without inspecting or transforming it.
type Passthrough struct {
	tx stage.Transmitter
}

var _ stage.Stage = (*Passthrough)(nil)

// NewPassthrough returns an unopened Passthrough stage.
func NewPassthrough() *Passthrough { return &Passthrough{} }

func (s *Passthrough) Open(_ map[string]string, tx stage.Transmitter) bool {
	s.tx = tx
	return true
}

func (s *Passthrough) Close() {}

func (s *Passthrough) Process(f *frame.Frame) int32 {
	s.tx.Transmit(f)
	return 0
}
