package detect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/tscut/tscut/internal/cue"
	"github.com/tscut/tscut/internal/index"
	"github.com/tscut/tscut/internal/mpegts"
	"github.com/tscut/tscut/internal/scte35"
)

// SCTE35Detector turns in-band SCTE-35 splice markers into candidate
// removal ranges. Markers are an explicit broadcaster signal, so candidates
// carry full confidence.
type SCTE35Detector struct {
	log *slog.Logger
}

// NewSCTE35Detector builds the marker detector.
func NewSCTE35Detector(log *slog.Logger) *SCTE35Detector {
	if log == nil {
		log = slog.Default()
	}
	return &SCTE35Detector{log: log}
}

func (d *SCTE35Detector) Name() string { return "scte35" }

type spliceEvent struct {
	time     int64 // 90 kHz, relative to stream start
	out      bool
	duration int64 // 0 when the marker carries no break duration
}

// Detect scans the SCTE-35 PID for splice_insert commands and pairs
// out-of-network events with their return (or break duration) into ranges.
func (d *SCTE35Detector) Detect(ctx context.Context, src *Source) ([]cue.Candidate, error) {
	pid, ok := scte35PID(src.Index)
	if !ok {
		d.log.Debug("no SCTE-35 stream in program map")
		return nil, nil
	}
	if src.Open == nil {
		return nil, fmt.Errorf("scte35: no stream reader available")
	}

	r, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	events, err := d.collectEvents(ctx, src.Index, r, pid)
	if err != nil {
		return nil, err
	}
	return pairEvents(events), nil
}

func scte35PID(ix *index.StreamIndex) (uint16, bool) {
	for pid, t := range ix.Types {
		if t == mpegts.StreamTypeSCTE35 {
			return pid, true
		}
	}
	return 0, false
}

func (d *SCTE35Detector) collectEvents(ctx context.Context, ix *index.StreamIndex, r io.ReadSeeker, pid uint16) ([]spliceEvent, error) {
	var (
		events  []spliceEvent
		section []byte
		pkt     [mpegts.PacketSize]byte
	)
	flush := func() {
		if len(section) == 0 {
			return
		}
		events = append(events, d.decodeSection(ix, section)...)
		section = nil
	}

	for _, rec := range ix.Records {
		if rec.PID != pid {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := r.Seek(rec.Offset, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, pkt[:]); err != nil {
			return nil, err
		}
		hdr, err := mpegts.ParseHeader(pkt[:])
		if err != nil || !hdr.HasPayload {
			continue
		}
		payload := pkt[hdr.PayloadOffset:]

		if rec.PayloadUnitStart {
			flush()
			if len(payload) < 1 {
				continue
			}
			start := 1 + int(payload[0])
			if start >= len(payload) {
				continue
			}
			section = append(section, payload[start:]...)
		} else if section != nil {
			section = append(section, payload...)
		}
		if sectionReady(section) {
			flush()
		}
	}
	flush()
	return events, nil
}

// sectionReady reports whether buf holds a full splice_info_section.
// Unlike PAT and PMT, SCTE-35 sections have section_syntax_indicator clear.
func sectionReady(buf []byte) bool {
	if len(buf) < 3 {
		return false
	}
	sectionLength := int(buf[1]&0x0F)<<8 | int(buf[2])
	return len(buf) >= 3+sectionLength
}

func (d *SCTE35Detector) decodeSection(ix *index.StreamIndex, buf []byte) []spliceEvent {
	if len(buf) < 3 {
		d.log.Debug("splice section fragment too short", "bytes", len(buf))
		return nil
	}
	sectionLength := int(buf[1]&0x0F)<<8 | int(buf[2])
	if 3+sectionLength <= len(buf) {
		buf = buf[:3+sectionLength]
	}
	sec, err := scte35.Decode(buf)
	if err != nil {
		d.log.Debug("splice section rejected", "error", err)
		return nil
	}
	if sec.Insert == nil || sec.Insert.EventCancel {
		return nil
	}
	ins := sec.Insert
	if ins.SpliceTime.PTS == nil {
		// splice_immediate markers have no presentation time to anchor a
		// file-based cut on.
		d.log.Debug("skipping immediate splice event", "event_id", ins.EventID)
		return nil
	}

	t := relativeTime(ix, *ins.SpliceTime.PTS+sec.PTSAdjustment)
	ev := spliceEvent{time: t, out: ins.OutOfNetwork}
	if ins.OutOfNetwork && ins.BreakDuration != nil {
		ev.duration = int64(ins.BreakDuration.Duration)
	}
	d.log.Debug("splice event",
		"event_id", ins.EventID,
		"out_of_network", ins.OutOfNetwork,
		"time", cue.FormatTime(t))
	return []spliceEvent{ev}
}

// relativeTime maps a raw 33-bit marker PTS onto the index timeline,
// tolerating one timestamp wrap in either direction.
func relativeTime(ix *index.StreamIndex, pts uint64) int64 {
	mask := int64(mpegts.TimestampWrap - 1)
	rel := (int64(pts) & mask) - (ix.StartTime() & mask)
	if rel < -mpegts.TimestampWrap/2 {
		rel += mpegts.TimestampWrap
	}
	if rel < 0 {
		rel = 0
	}
	return rel
}

// pairEvents converts the event sequence into removal ranges: each
// out-of-network event opens a range closed by the next return event, or by
// its own break duration when no return shows up.
func pairEvents(events []spliceEvent) []cue.Candidate {
	sort.Slice(events, func(i, j int) bool { return events[i].time < events[j].time })

	var (
		out     []cue.Candidate
		open    *spliceEvent
		mkRange = func(start, end int64) {
			if end > start {
				out = append(out, cue.Candidate{
					Start:      start,
					End:        end,
					Confidence: 1.0,
					Source:     "scte35",
				})
			}
		}
	)
	for i := range events {
		ev := events[i]
		if ev.out {
			if open != nil {
				end := open.time + open.duration
				mkRange(open.time, end)
			}
			open = &events[i]
			continue
		}
		if open != nil {
			mkRange(open.time, ev.time)
			open = nil
		}
	}
	if open != nil {
		mkRange(open.time, open.time+open.duration)
	}
	return out
}
