package cue

import (
	"fmt"
	"sort"

	"github.com/tscut/tscut/internal/index"
)

// SnapMode selects how a cue timestamp maps onto a keyframe.
type SnapMode int

const (
	// SnapBefore picks the nearest keyframe at or before the timestamp.
	SnapBefore SnapMode = iota
	// SnapAfter picks the nearest keyframe at or after the timestamp.
	SnapAfter
	// SnapNearest picks the closer keyframe; ties resolve toward wider
	// removal (earlier for CutOut, later for CutIn).
	SnapNearest
)

// Options control boundary snapping. Keyframe intervals vary by encoder,
// so the snap policy is configurable rather than fixed. The zero value is
// not useful; use DefaultOptions.
type Options struct {
	// OutSnap applies to removal starts. Default SnapBefore, so removed
	// ranges fully cover unwanted content.
	OutSnap SnapMode
	// InSnap applies to removal ends, where kept content resumes.
	// Default SnapAfter, so the kept segment starts on a decodable frame
	// past the unwanted content.
	InSnap SnapMode
}

// DefaultOptions is the conservative policy: removals grow outward to the
// surrounding keyframes.
func DefaultOptions() Options {
	return Options{OutSnap: SnapBefore, InSnap: SnapAfter}
}

// timeRange is a removal interval in 90 kHz ticks.
type timeRange struct {
	start, end int64
}

// packetRange is a resolved removal: packet indices [start,end) plus the
// keyframe times backing them.
type packetRange struct {
	start, end         int // packet indices
	startTime, endTime int64
}

// Resolve maps raw cue points onto keyframe-aligned boundaries and returns
// the plan of kept segments. It is a pure function of its inputs: the same
// index and points always produce the same plan.
func Resolve(ix *index.StreamIndex, points []Point, opts Options) (*Plan, error) {
	total := ix.TotalBytes()
	plan := &Plan{TotalBytes: total}

	if len(points) == 0 {
		if ix.PacketCount() == 0 {
			return plan, nil
		}
		plan.Segments = []Segment{{
			StartPacket: 0,
			EndPacket:   ix.PacketCount(),
			StartOffset: 0,
			EndOffset:   total,
			StartTime:   0,
			EndTime:     ix.Duration(),
		}}
		return plan, nil
	}

	dur := ix.Duration()
	for _, p := range points {
		if p.Time < 0 || p.Time > dur {
			return nil, &OutOfRangeError{Time: p.Time}
		}
	}
	if len(ix.Keyframes()) == 0 {
		return nil, fmt.Errorf("cue: stream has no keyframes to align against")
	}

	removedTimes := pairPoints(points, dur)
	removed := make([]packetRange, 0, len(removedTimes))
	for _, tr := range removedTimes {
		pr, err := snapRange(ix, tr, opts)
		if err != nil {
			return nil, err
		}
		removed = append(removed, pr)
	}
	removed = mergeRanges(removed)

	buildSegments(plan, ix, removed, dur)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// pairPoints sweeps the sorted points into removal intervals. A leading
// CutIn removes everything before it; a trailing CutOut removes through
// the end. Redundant points inside an open or closed state are ignored.
func pairPoints(points []Point, dur int64) []timeRange {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Time != sorted[j].Time {
			return sorted[i].Time < sorted[j].Time
		}
		return sorted[i].Kind == CutOut && sorted[j].Kind == CutIn
	})

	var ranges []timeRange
	open := false
	var openT int64
	for i, p := range sorted {
		switch p.Kind {
		case CutOut:
			if !open {
				open = true
				openT = p.Time
			}
		case CutIn:
			if open {
				ranges = append(ranges, timeRange{openT, p.Time})
				open = false
			} else if i == 0 {
				ranges = append(ranges, timeRange{0, p.Time})
			}
		}
	}
	if open {
		ranges = append(ranges, timeRange{openT, dur})
	}
	return ranges
}

// snapRange resolves one removal interval onto keyframe packet boundaries.
// Boundary clamps: a start before the first keyframe clamps to stream
// start; an end past the last keyframe clamps to stream end.
func snapRange(ix *index.StreamIndex, tr timeRange, opts Options) (packetRange, error) {
	pr := packetRange{}

	kf, ok := snap(ix, tr.start, opts.OutSnap, false)
	if !ok {
		pr.start = 0
		pr.startTime = 0
	} else {
		pr.start = kf.Packet
		pr.startTime = kf.Time
	}

	kf, ok = snap(ix, tr.end, opts.InSnap, true)
	if !ok {
		pr.end = ix.PacketCount()
		pr.endTime = ix.Duration()
	} else {
		pr.end = kf.Packet
		pr.endTime = kf.Time
	}

	if pr.end < pr.start {
		return pr, fmt.Errorf("cue: removal [%d,%d) inverted after keyframe alignment", tr.start, tr.end)
	}
	return pr, nil
}

// snap maps a timestamp to a keyframe per mode. preferLater sets the
// tie-break direction for SnapNearest.
func snap(ix *index.StreamIndex, t int64, mode SnapMode, preferLater bool) (index.Keyframe, bool) {
	switch mode {
	case SnapBefore:
		return ix.KeyframeAtOrBefore(t)
	case SnapAfter:
		return ix.KeyframeAtOrAfter(t)
	}

	before, okB := ix.KeyframeAtOrBefore(t)
	after, okA := ix.KeyframeAtOrAfter(t)
	switch {
	case !okB:
		return after, okA
	case !okA:
		return before, okB
	}
	dBefore := t - before.Time
	dAfter := after.Time - t
	if dBefore == dAfter {
		if preferLater {
			return after, true
		}
		return before, true
	}
	if dAfter < dBefore {
		return after, true
	}
	return before, true
}

// mergeRanges coalesces overlapping or adjacent removals.
func mergeRanges(removed []packetRange) []packetRange {
	if len(removed) == 0 {
		return removed
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].start < removed[j].start })

	merged := removed[:1]
	for _, r := range removed[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
				last.endTime = r.endTime
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// buildSegments emits the kept complement of the removals, carrying the
// cumulative removed duration for downstream clock rebasing.
func buildSegments(plan *Plan, ix *index.StreamIndex, removed []packetRange, dur int64) {
	cursor := 0
	cursorTime := int64(0)
	var removedSoFar int64

	for _, r := range removed {
		if r.start > cursor {
			plan.Segments = append(plan.Segments, Segment{
				StartPacket:      cursor,
				EndPacket:        r.start,
				StartOffset:      ix.Records[cursor].Offset,
				EndOffset:        ix.PacketEnd(r.start - 1),
				StartTime:        cursorTime,
				EndTime:          r.startTime,
				Removed90kBefore: removedSoFar,
			})
		}
		removedSoFar += r.endTime - r.startTime
		cursor = r.end
		cursorTime = r.endTime
	}

	if cursor < ix.PacketCount() {
		plan.Segments = append(plan.Segments, Segment{
			StartPacket:      cursor,
			EndPacket:        ix.PacketCount(),
			StartOffset:      ix.Records[cursor].Offset,
			EndOffset:        ix.TotalBytes(),
			StartTime:        cursorTime,
			EndTime:          dur,
			Removed90kBefore: removedSoFar,
		})
	}
	plan.Removed90k = removedSoFar
}
