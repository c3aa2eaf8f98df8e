package demo

import (
	"context"
	"time"

	"github.com/cnstream-go/cnstream/pkg/frame"
	"github.com/cnstream-go/cnstream/pkg/pipeline"
)

// DataProvider drives frames into a pipeline's head stage for a fixed list
// of stream names, at srcFrameRate frames/sec (0 means as fast as
// possible), optionally looping the stream list until ctx is done.
type DataProvider struct {
	Pipeline     *pipeline.Pipeline
	HeadStage    string
	StreamNames  []string
	SrcFrameRate int
	Loop         bool
}

// Run feeds frames until ctx is cancelled (when Loop is set) or every
// stream name has been sent once followed by an EOS (when it is not).
// It returns the number of frames successfully provided.
func (d *DataProvider) Run(ctx context.Context) int {
	var interval time.Duration
	if d.SrcFrameRate > 0 {
		interval = time.Second / time.Duration(d.SrcFrameRate)
	}

	sent := 0
	frameID := make(map[string]uint64, len(d.StreamNames))
	provideOne := func(streamID string, eos bool) bool {
		idx := d.Pipeline.AcquireStreamIndex(streamID)
		if idx == frame.Invalid {
			return false
		}
		flags := frame.Flags(0)
		if eos {
			flags = frame.FlagEOS
		}
		id := frameID[streamID]
		frameID[streamID] = id + 1
		ts := int64(id)
		f := frame.New(nil, streamID, idx, ts, id, flags)
		return d.Pipeline.ProvideData(d.HeadStage, f)
	}

	for {
		for _, name := range d.StreamNames {
			select {
			case <-ctx.Done():
				return sent
			default:
			}
			if provideOne(name, false) {
				sent++
			}
			if interval > 0 {
				select {
				case <-ctx.Done():
					return sent
				case <-time.After(interval):
				}
			}
		}
		if !d.Loop {
			for _, name := range d.StreamNames {
				provideOne(name, true)
			}
			return sent
		}
		select {
		case <-ctx.Done():
			return sent
		default:
		}
	}
}
