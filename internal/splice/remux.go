// Package splice turns a cut plan into an output container: verbatim
// segment extraction plus the header-only rewrites needed for decodability
// across splice points. Payload bytes are never altered.
package splice

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/tscut/tscut/internal/cue"
	"github.com/tscut/tscut/internal/mpegts"
)

// PCRPolicy selects how clock references are handled across splices.
type PCRPolicy int

const (
	// PCRPreserve keeps original clock values, relying on the
	// discontinuity indicator for decoder resynchronization.
	PCRPreserve PCRPolicy = iota
	// PCRRebase shifts clock references and PES timestamps after each
	// splice so the output clock appears continuous.
	PCRRebase
)

// ParsePCRPolicy maps the command-line spelling to a PCRPolicy.
func ParsePCRPolicy(s string) (PCRPolicy, error) {
	switch s {
	case "preserve":
		return PCRPreserve, nil
	case "rebase":
		return PCRRebase, nil
	}
	return 0, fmt.Errorf("splice: unknown PCR policy %q", s)
}

func (p PCRPolicy) String() string {
	if p == PCRRebase {
		return "rebase"
	}
	return "preserve"
}

type remuxState int

const (
	stateIdle remuxState = iota
	stateInSegment
	stateSpliceBoundary
	stateDone
)

// Remuxer consumes segments in plan order and rewrites per-PID continuity
// counters, discontinuity indicators, and (under PCRRebase) clock
// references. It owns the output writer exclusively until Finish.
type Remuxer struct {
	log    *slog.Logger
	w      io.Writer
	policy PCRPolicy

	state    remuxState
	segIndex int

	cc       map[uint16]uint8 // last emitted counter per PID
	rebase   int64            // 90 kHz offset subtracted in the current segment
	pending  bool             // discontinuity indicator still owed for this segment
	bytesOut int64
}

// NewRemuxer creates a Remuxer writing packets to w.
func NewRemuxer(w io.Writer, policy PCRPolicy, log *slog.Logger) *Remuxer {
	if log == nil {
		log = slog.Default()
	}
	return &Remuxer{
		log:    log.With("component", "remux"),
		w:      w,
		policy: policy,
		cc:     make(map[uint16]uint8),
	}
}

// BytesWritten returns the number of output bytes emitted so far.
func (r *Remuxer) BytesWritten() int64 { return r.bytesOut }

// BeginSegment starts the next kept segment. Every segment after the first
// owes a discontinuity indicator on its first capable packet.
func (r *Remuxer) BeginSegment(seg cue.Segment) error {
	switch r.state {
	case stateIdle, stateSpliceBoundary:
	default:
		return fmt.Errorf("splice: BeginSegment in state %d", r.state)
	}
	r.state = stateInSegment
	r.pending = r.segIndex > 0
	r.rebase = 0
	if r.policy == PCRRebase {
		r.rebase = seg.Removed90kBefore
	}
	return nil
}

// WritePacket rewrites the packet's sequencing metadata in place and
// writes it out. pkt must be a full 188-byte packet; its payload bytes are
// only touched for PES timestamp rebasing under PCRRebase.
func (r *Remuxer) WritePacket(pkt []byte) error {
	if r.state != stateInSegment {
		return fmt.Errorf("splice: WritePacket in state %d", r.state)
	}

	h, err := mpegts.ParseHeader(pkt)
	if err != nil {
		return fmt.Errorf("splice: remux input: %w", err)
	}

	// Renumber the continuity counter: monotonic modulo 16 per PID across
	// the concatenation, advancing only on payload-bearing packets.
	last, seen := r.cc[h.PID]
	next := h.ContinuityCounter
	if seen {
		next = last
		if h.HasPayload {
			next = (last + 1) & 0x0F
		}
	}
	r.cc[h.PID] = next
	mpegts.SetContinuityCounter(pkt, next)

	if r.pending {
		if mpegts.SetDiscontinuity(pkt) {
			r.pending = false
		}
	}

	if r.rebase > 0 {
		r.rebasePacket(pkt, h)
	}

	if _, err := r.w.Write(pkt); err != nil {
		return &IOError{Op: "write packet", Err: err}
	}
	r.bytesOut += int64(len(pkt))
	return nil
}

// rebasePacket shifts the PCR and any PES timestamps back by the removed
// duration preceding this segment, modulo the 33-bit wrap.
func (r *Remuxer) rebasePacket(pkt []byte, h mpegts.Header) {
	if h.HasPCR {
		mpegts.SetPCRBase(pkt, h.PCRBase-r.rebase)
	}
	if !h.PayloadUnitStart || !h.HasPayload || h.PayloadOffset >= len(pkt) {
		return
	}
	payload := pkt[h.PayloadOffset:]
	if !mpegts.IsPESStart(payload) {
		return
	}
	info, err := mpegts.ParsePESHeader(payload)
	if err != nil {
		return
	}
	if info.PTSOffset >= 0 {
		mpegts.EncodeTimestamp(payload[info.PTSOffset:info.PTSOffset+5], info.PTS-r.rebase)
	}
	if info.DTSOffset >= 0 {
		mpegts.EncodeTimestamp(payload[info.DTSOffset:info.DTSOffset+5], info.DTS-r.rebase)
	}
}

// EndSegment closes the current segment at a splice boundary.
func (r *Remuxer) EndSegment() error {
	if r.state != stateInSegment {
		return fmt.Errorf("splice: EndSegment in state %d", r.state)
	}
	if r.pending {
		// No packet in the segment could carry the indicator; decoders
		// will resynchronize from the counter gap instead.
		r.log.Warn("segment had no adaptation field to carry discontinuity indicator", "segment", r.segIndex)
		r.pending = false
	}
	r.segIndex++
	r.state = stateSpliceBoundary
	return nil
}

// Finish marks the remux complete. Valid from the last splice boundary or,
// for an empty plan, straight from idle.
func (r *Remuxer) Finish() error {
	switch r.state {
	case stateIdle, stateSpliceBoundary:
		r.state = stateDone
		return nil
	}
	return fmt.Errorf("splice: Finish in state %d", r.state)
}
