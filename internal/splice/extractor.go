package splice

import (
	"bufio"
	"context"
	"io"
	"log/slog"

	"github.com/tscut/tscut/internal/cue"
	"github.com/tscut/tscut/internal/index"
	"github.com/tscut/tscut/internal/mpegts"
)

// Extractor streams the kept segments of a plan from the source reader
// through a Remuxer, packet by packet. Retained payload bytes reach the
// output bit-identical; only the Remuxer's header rewrites differ.
type Extractor struct {
	log    *slog.Logger
	src    io.ReadSeeker
	strict bool
}

// NewExtractor creates an Extractor over the original input. With strict
// set, a segment whose start packet is not a keyframe aborts the job with
// an IntegrityError. Segment starts clamped to the head of the stream are
// exempt, since streams open with PSI packets rather than a keyframe.
func NewExtractor(src io.ReadSeeker, strict bool, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		log:    log.With("component", "extract"),
		src:    src,
		strict: strict,
	}
}

// Run copies every kept segment through rmx in plan order. Cancellation is
// checked at packet granularity; on any failure the remuxer's output is
// left unfinished for the caller to discard.
func (e *Extractor) Run(ctx context.Context, ix *index.StreamIndex, plan *cue.Plan, rmx *Remuxer) error {
	buf := make([]byte, mpegts.PacketSize)

	for i, seg := range plan.Segments {
		if e.strict && seg.StartPacket != 0 && !ix.Records[seg.StartPacket].Keyframe {
			return &IntegrityError{Offset: seg.StartOffset}
		}
		if i > 0 {
			e.log.Debug("splice point",
				"segment", i,
				"offset", seg.StartOffset,
				"rebase90k", seg.Removed90kBefore,
			)
		}

		if err := rmx.BeginSegment(seg); err != nil {
			return err
		}
		if _, err := e.src.Seek(seg.StartOffset, io.SeekStart); err != nil {
			return &IOError{Op: "seek segment start", Err: err}
		}

		br := bufio.NewReaderSize(e.src, 256*1024)
		cur := seg.StartOffset
		for pkt := seg.StartPacket; pkt < seg.EndPacket; pkt++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := ix.Records[pkt]
			// Junk skipped during indexing leaves gaps between records.
			if rec.Offset > cur {
				if _, err := br.Discard(int(rec.Offset - cur)); err != nil {
					return &IOError{Op: "skip to packet", Err: err}
				}
				cur = rec.Offset
			}
			size := rec.Size
			if _, err := io.ReadFull(br, buf[:size]); err != nil {
				return &IOError{Op: "read segment packet", Err: err}
			}
			cur += int64(size)
			if err := rmx.WritePacket(buf[:size]); err != nil {
				return err
			}
		}

		if err := rmx.EndSegment(); err != nil {
			return err
		}
	}

	return rmx.Finish()
}
