package index

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tscut/tscut/internal/mpegts"
)

const (
	defaultResyncWindow    = 64 * 1024
	defaultMalformedBudget = 32
)

// errSyncWindow is internal: the resync scan ran out of window.
var errSyncWindow = errors.New("index: resync window exhausted")

// Indexer performs the single sequential indexing pass over an input
// container. An Indexer is stateless between Build calls; independent
// inputs may be indexed concurrently with separate readers.
type Indexer struct {
	log             *slog.Logger
	resyncWindow    int
	malformedBudget int
}

// New creates an Indexer. If log is nil, slog.Default() is used.
func New(log *slog.Logger, opts ...func(*Indexer)) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	ix := &Indexer{
		log:             log.With("component", "index"),
		resyncWindow:    defaultResyncWindow,
		malformedBudget: defaultMalformedBudget,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// OptResyncWindow sets the maximum bytes scanned for a sync byte after
// sync loss before the input is rejected with a FormatError.
func OptResyncWindow(n int) func(*Indexer) {
	return func(ix *Indexer) { ix.resyncWindow = n }
}

// OptMalformedBudget sets how many malformed packets are skipped before
// the input is rejected with a StreamCorruptError.
func OptMalformedBudget(n int) func(*Indexer) {
	return func(ix *Indexer) { ix.malformedBudget = n }
}

// builder holds the per-pass mutable state.
type builder struct {
	ix  *StreamIndex
	log *slog.Logger

	psiBuf  map[uint16][]byte
	pmtPIDs map[uint16]bool

	malformed int

	lastVideoPTS int64 // raw, for wrap detection
	wrapOffset   int64
	lastClock    int64 // last unwrapped video time or PCR, for keyframes without a PTS
}

// Build reads the entire stream from r and returns its index. The pass is
// not restartable: r is consumed. Cancellation is checked at packet
// granularity.
func (ix *Indexer) Build(ctx context.Context, r io.Reader) (*StreamIndex, error) {
	br := bufio.NewReaderSize(r, 256*1024)

	b := &builder{
		ix: &StreamIndex{
			Types: make(map[uint16]mpegts.StreamType),
		},
		log:          ix.log,
		psiBuf:       make(map[uint16][]byte),
		pmtPIDs:      make(map[uint16]bool),
		lastVideoPTS: mpegts.NoTimestamp,
		lastClock:    mpegts.NoTimestamp,
	}
	b.ix.firstTime = mpegts.NoTimestamp
	b.ix.lastTime = mpegts.NoTimestamp

	buf := make([]byte, mpegts.PacketSize)
	var offset int64

scan:
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		head, err := br.Peek(1)
		if len(head) == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("index: read at offset %d: %w", offset, err)
		}

		if head[0] != mpegts.SyncByte {
			skipped, serr := ix.resync(br)
			b.countMalformed()
			if b.malformed > ix.malformedBudget {
				return nil, &StreamCorruptError{Offset: offset, Malformed: b.malformed}
			}
			switch {
			case errors.Is(serr, io.EOF):
				ix.log.Debug("trailing junk at end of stream", "offset", offset, "bytes", skipped)
				break scan
			case errors.Is(serr, errSyncWindow):
				return nil, &FormatError{Offset: offset}
			case serr != nil:
				return nil, serr
			}
			ix.log.Warn("sync loss, resynchronized", "offset", offset, "skipped", skipped)
			offset += skipped
			continue
		}

		if _, err := io.ReadFull(br, buf); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				ix.log.Debug("truncated packet at end of stream", "offset", offset)
				break
			}
			return nil, fmt.Errorf("index: read at offset %d: %w", offset, err)
		}

		h, err := mpegts.ParseHeader(buf)
		if err != nil || h.TransportError {
			b.countMalformed()
			if b.malformed > ix.malformedBudget {
				return nil, &StreamCorruptError{Offset: offset, Malformed: b.malformed}
			}
			ix.log.Debug("skipping malformed packet", "offset", offset, "error", err)
			offset += mpegts.PacketSize
			continue
		}

		b.addPacket(h, buf, offset)
		offset += mpegts.PacketSize
	}

	b.ix.endOffset = offset
	if n := len(b.ix.Records); n > 0 {
		b.ix.endOffset = b.ix.PacketEnd(n - 1)
	}
	b.normalizeKeyframes()

	ix.log.Info("index built",
		"packets", len(b.ix.Records),
		"keyframes", len(b.ix.keyframes),
		"videoPID", b.ix.VideoPID,
		"duration90k", b.ix.Duration(),
		"malformed", b.malformed,
	)
	return b.ix, nil
}

// resync discards bytes until it finds a sync byte whose following packet
// boundary also lands on one, returning the number of bytes discarded.
// io.EOF means the stream ended inside the junk run; errSyncWindow means
// the window was exhausted.
func (ix *Indexer) resync(br *bufio.Reader) (int64, error) {
	var skipped int64
	for skipped < int64(ix.resyncWindow) {
		if _, err := br.Discard(1); err != nil {
			if errors.Is(err, io.EOF) {
				return skipped, io.EOF
			}
			return skipped, fmt.Errorf("index: resync: %w", err)
		}
		skipped++

		p, err := br.Peek(mpegts.PacketSize + 1)
		if len(p) == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return skipped, io.EOF
			}
			return skipped, fmt.Errorf("index: resync: %w", err)
		}
		if p[0] != mpegts.SyncByte {
			continue
		}
		// Accept a short tail; the outer loop handles truncation.
		if len(p) < mpegts.PacketSize+1 || p[mpegts.PacketSize] == mpegts.SyncByte {
			return skipped, nil
		}
	}
	return skipped, errSyncWindow
}

func (b *builder) countMalformed() { b.malformed++ }

func (b *builder) addPacket(h mpegts.Header, buf []byte, offset int64) {
	rec := PacketRecord{
		PID:              h.PID,
		Offset:           offset,
		Size:             mpegts.PacketSize,
		CC:               h.ContinuityCounter,
		PayloadUnitStart: h.PayloadUnitStart,
		PCR:              mpegts.NoTimestamp,
		PTS:              mpegts.NoTimestamp,
		DTS:              mpegts.NoTimestamp,
	}
	if h.HasPCR {
		rec.PCR = h.PCRBase
	}

	payload := buf[h.PayloadOffset:]

	if h.HasPayload && (h.PID == mpegts.PIDPAT || b.pmtPIDs[h.PID]) {
		b.accumulatePSI(h, payload)
	} else if h.HasPayload && h.PayloadUnitStart && mpegts.IsPESStart(payload) {
		b.notePES(h, payload, &rec)
	}

	if h.HasPCR && h.PID == b.ix.PCRPID {
		b.lastClock = h.PCRBase + b.wrapOffset
	}

	if b.ix.VideoPID != 0 && h.PID == b.ix.VideoPID {
		b.noteVideo(h, payload, &rec, len(b.ix.Records))
	}

	b.ix.Records = append(b.ix.Records, rec)
}

// notePES decodes PES timestamps for any elementary stream, and latches an
// unannounced video PID when no PMT declared one.
func (b *builder) notePES(h mpegts.Header, payload []byte, rec *PacketRecord) {
	info, err := mpegts.ParsePESHeader(payload)
	if err != nil {
		return
	}
	rec.PTS = info.PTS
	rec.DTS = info.DTS

	if b.ix.VideoPID == 0 && mpegts.IsVideoStreamID(info.StreamID) {
		b.ix.VideoPID = h.PID
		if _, known := b.ix.Types[h.PID]; !known {
			b.ix.Types[h.PID] = mpegts.StreamTypeH264
		}
		b.log.Info("video PID latched from PES stream ID", "pid", h.PID)
	}
}

// noteVideo tracks the video timeline and keyframe list for one packet on
// the video PID.
func (b *builder) noteVideo(h mpegts.Header, payload []byte, rec *PacketRecord, packetIndex int) {
	unwrapped := mpegts.NoTimestamp

	if rec.PTS != mpegts.NoTimestamp {
		if b.lastVideoPTS != mpegts.NoTimestamp && rec.PTS+mpegts.TimestampWrap/2 < b.lastVideoPTS {
			b.wrapOffset += mpegts.TimestampWrap
		}
		b.lastVideoPTS = rec.PTS
		unwrapped = rec.PTS + b.wrapOffset
		b.lastClock = unwrapped

		if b.ix.firstTime == mpegts.NoTimestamp {
			b.ix.firstTime = unwrapped
		}
		if unwrapped > b.ix.lastTime {
			b.ix.lastTime = unwrapped
		}
	}

	keyframe := h.RandomAccess
	if !keyframe && h.PayloadUnitStart && mpegts.IsPESStart(payload) {
		if info, err := mpegts.ParsePESHeader(payload); err == nil && info.DataOffset < len(payload) {
			keyframe = startsWithKeyframe(b.ix.Types[h.PID], payload[info.DataOffset:])
		}
	}
	if !keyframe {
		return
	}

	rec.Keyframe = true
	t := unwrapped
	if t == mpegts.NoTimestamp {
		t = b.lastClock
	}
	if t == mpegts.NoTimestamp {
		t = 0
	}
	b.ix.keyframes = append(b.ix.keyframes, Keyframe{
		Packet: packetIndex,
		Offset: rec.Offset,
		Time:   t,
	})
}

func (b *builder) accumulatePSI(h mpegts.Header, payload []byte) {
	if h.PayloadUnitStart {
		b.psiBuf[h.PID] = append([]byte(nil), payload...)
	} else if buf, ok := b.psiBuf[h.PID]; ok {
		b.psiBuf[h.PID] = append(buf, payload...)
	} else {
		return
	}

	if !mpegts.SectionComplete(b.psiBuf[h.PID]) {
		return
	}

	sections, err := mpegts.ExtractSections(b.psiBuf[h.PID])
	delete(b.psiBuf, h.PID)
	if err != nil {
		b.log.Debug("bad PSI payload", "pid", h.PID, "error", err)
		return
	}

	for _, section := range sections {
		if h.PID == mpegts.PIDPAT {
			entries, err := mpegts.ParsePAT(section)
			if err != nil {
				b.log.Debug("bad PAT", "error", err)
				continue
			}
			for _, e := range entries {
				b.pmtPIDs[e.PMTPID] = true
			}
			continue
		}
		pmt, err := mpegts.ParsePMT(section)
		if err != nil {
			b.log.Debug("bad PMT", "pid", h.PID, "error", err)
			continue
		}
		b.ix.PCRPID = pmt.PCRPID
		for _, es := range pmt.Streams {
			b.ix.Types[es.PID] = es.Type
			if b.ix.VideoPID == 0 && es.Type.IsVideo() {
				b.ix.VideoPID = es.PID
				b.log.Info("found video PID", "pid", es.PID, "codec", es.Type.String())
			}
		}
	}
}

// normalizeKeyframes rebases keyframe times so the first video PTS maps to
// zero, matching the time base cue points are expressed in.
func (b *builder) normalizeKeyframes() {
	if b.ix.firstTime == mpegts.NoTimestamp {
		return
	}
	for i := range b.ix.keyframes {
		t := b.ix.keyframes[i].Time - b.ix.firstTime
		if t < 0 {
			t = 0
		}
		b.ix.keyframes[i].Time = t
	}
}
