// Package cue resolves externally supplied cue points onto keyframe-aligned
// packet boundaries, producing the immutable cut plan consumed by the
// extractor and remuxer. Cue points follow broadcast splice convention:
// CutOut leaves the program (removal begins), CutIn returns to it.
package cue

import "fmt"

// Kind distinguishes the two cue directions.
type Kind int

const (
	// CutOut marks the start of a removed range.
	CutOut Kind = iota
	// CutIn marks the end of a removed range; kept content resumes here.
	CutIn
)

func (k Kind) String() string {
	switch k {
	case CutOut:
		return "out"
	case CutIn:
		return "in"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Point is one cue point in 90 kHz ticks relative to stream start. Points
// may be imprecise; the resolver snaps them to keyframes.
type Point struct {
	Time int64
	Kind Kind
}

// Candidate is a removal range proposed by a detector, scored with a
// confidence in [0,1]. Candidates are merged by a voting policy before
// resolution; the resolver itself never sees confidences.
type Candidate struct {
	Start      int64 // 90 kHz, relative to stream start
	End        int64
	Confidence float64
	Source     string
}

// OutOfRangeError means a cue point lies strictly outside the indexed
// duration.
type OutOfRangeError struct {
	Time int64 // 90 kHz
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("cue: timestamp %d (90 kHz) outside indexed duration", e.Time)
}
