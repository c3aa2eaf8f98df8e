package profiler

import (
	"time"

	"github.com/cnstream-go/cnstream/pkg/frame"
)

// DefaultMaxDPBSize mirrors the H.264/H.265 "decoded picture buffer" bound
// that the useless-record sweep uses to decide a late start is lost rather
// than merely slow (spec.md §4.4, grounded on
// original_source/framework/core/src/profiler/process_profiler.cpp's
// RecordPolicy::kDEFAULT_MAX_DPB_SIZE).
const DefaultMaxDPBSize = 16

type ongoingRecord struct {
	key   frame.RecordKey
	start time.Time
	skip  uint64
}

// recordPolicy holds, per stream, the ordered list of starts awaiting a
// matching end plus each entry's skip counter. Kept as a small slice, not a
// map, since n is bounded by maxDPBSize (spec.md §9 design note).
type recordPolicy struct {
	maxDPBSize uint64
	records    map[string][]ongoingRecord
}

func newRecordPolicy(maxDPBSize uint64) *recordPolicy {
	if maxDPBSize == 0 {
		maxDPBSize = DefaultMaxDPBSize
	}
	return &recordPolicy{maxDPBSize: maxDPBSize, records: make(map[string][]ongoingRecord)}
}

// onStreamStart must be called before addStart records anything for a
// stream the policy hasn't seen yet.
func (p *recordPolicy) onStreamStart(streamID string) {
	if _, ok := p.records[streamID]; !ok {
		p.records[streamID] = nil
	}
}

func (p *recordPolicy) addStart(key frame.RecordKey, now time.Time) bool {
	if _, ok := p.records[key.StreamID]; !ok {
		return false
	}
	p.records[key.StreamID] = append(p.records[key.StreamID], ongoingRecord{key: key, start: now})
	return true
}

// findStart returns the index of key's ongoing start within its stream's
// record list, if any.
func (p *recordPolicy) findStart(key frame.RecordKey) (int, bool) {
	recs, ok := p.records[key.StreamID]
	if !ok {
		return 0, false
	}
	for i, r := range recs {
		if r.key == key {
			return i, true
		}
	}
	return 0, false
}

// removeThisAndOtherUselessRecords erases the record at idx plus every
// earlier record whose skip counter has now exceeded maxDPBSize. Earlier
// records are swept in insertion order; idx itself is always erased last.
// Returns 1 + the number of earlier records erased, so the result is
// always >= 1.
func (p *recordPolicy) removeThisAndOtherUselessRecords(streamID string, idx int) uint64 {
	recs := p.records[streamID]
	kept := make([]ongoingRecord, 0, len(recs))
	var removed uint64

	for i := 0; i < idx; i++ {
		r := recs[i]
		r.skip++
		if r.skip > p.maxDPBSize {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	kept = append(kept, recs[idx+1:]...)
	p.records[streamID] = kept
	return removed + 1
}

// onStreamEos clears streamID's remaining records and reports how many
// were still ongoing (spec.md §4.4 "Stream EOS").
func (p *recordPolicy) onStreamEos(streamID string) uint64 {
	recs, ok := p.records[streamID]
	if !ok {
		return 0
	}
	n := uint64(len(recs))
	delete(p.records, streamID)
	return n
}
