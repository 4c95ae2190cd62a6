package cue

import "fmt"

// Segment is one kept range of the input, aligned to packet boundaries.
// StartPacket is inclusive, EndPacket exclusive; offsets mirror them in
// bytes. StartTime and EndTime are 90 kHz ticks relative to stream start.
type Segment struct {
	StartPacket int
	EndPacket   int
	StartOffset int64
	EndOffset   int64
	StartTime   int64
	EndTime     int64

	// Removed90kBefore is the total removed duration preceding this
	// segment, the clock-rebase offset applied at its splice point.
	Removed90kBefore int64
}

// Bytes returns the byte length of the segment.
func (s Segment) Bytes() int64 { return s.EndOffset - s.StartOffset }

// Plan is the ordered set of kept segments derived from cue points and a
// stream index. Immutable once resolved.
type Plan struct {
	Segments   []Segment
	Removed90k int64 // total removed duration
	TotalBytes int64 // indexed input length
}

// KeptBytes returns the total bytes retained by the plan.
func (p *Plan) KeptBytes() int64 {
	var n int64
	for _, s := range p.Segments {
		n += s.Bytes()
	}
	return n
}

// Validate checks the plan invariants: segments pairwise non-overlapping,
// strictly ascending by start, and bounded by the indexed range.
func (p *Plan) Validate() error {
	var prevEnd int64 = -1
	for i, s := range p.Segments {
		if s.StartOffset >= s.EndOffset {
			return fmt.Errorf("cue: segment %d empty or inverted [%d,%d)", i, s.StartOffset, s.EndOffset)
		}
		if s.StartOffset <= prevEnd {
			return fmt.Errorf("cue: segment %d start %d overlaps previous end %d", i, s.StartOffset, prevEnd)
		}
		if s.StartOffset < 0 || s.EndOffset > p.TotalBytes {
			return fmt.Errorf("cue: segment %d [%d,%d) outside indexed range [0,%d)", i, s.StartOffset, s.EndOffset, p.TotalBytes)
		}
		prevEnd = s.EndOffset - 1
	}
	return nil
}
