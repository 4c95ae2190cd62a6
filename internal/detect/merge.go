package detect

import (
	"sort"

	"github.com/tscut/tscut/internal/cue"
)

// MergeConfig tunes how candidates from different detectors are combined.
type MergeConfig struct {
	// MinConfidence drops candidates scored below it before merging.
	MinConfidence float64
}

// DefaultMergeConfig returns the merge settings used by the CLI.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{MinConfidence: 0.75}
}

// Merge filters candidates by confidence, unions overlapping removal
// ranges, and flattens the result into an ordered cut-out/cut-in point
// sequence for the resolver. Agreement between detectors widens a range,
// it never narrows one.
func Merge(cands []cue.Candidate, cfg MergeConfig) []cue.Point {
	kept := make([]cue.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Confidence >= cfg.MinConfidence && c.End > c.Start {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Start != kept[j].Start {
			return kept[i].Start < kept[j].Start
		}
		return kept[i].End < kept[j].End
	})

	type span struct{ start, end int64 }
	merged := []span{{kept[0].Start, kept[0].End}}
	for _, c := range kept[1:] {
		last := &merged[len(merged)-1]
		if c.Start <= last.end {
			if c.End > last.end {
				last.end = c.End
			}
			continue
		}
		merged = append(merged, span{c.Start, c.End})
	}

	points := make([]cue.Point, 0, 2*len(merged))
	for _, s := range merged {
		points = append(points,
			cue.Point{Time: s.start, Kind: cue.CutOut},
			cue.Point{Time: s.end, Kind: cue.CutIn})
	}
	return points
}
