package splice

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tscut/tscut/internal/cue"
	"github.com/tscut/tscut/internal/index"
	"github.com/tscut/tscut/internal/mpegts"
)

func sec(s float64) int64 { return int64(s * mpegts.ClockRate) }

// vPkt builds a video packet on PID 0x100 with an adaptation field. pcr < 0
// omits the clock reference.
func vPkt(cc uint8, rai bool, pcr, pts int64, es []byte) []byte {
	pes := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x80, 0x05}
	ts := [5]byte{0x20}
	mpegts.EncodeTimestamp(ts[:], pts)
	pes = append(pes, ts[:]...)
	pes = append(pes, es...)

	buf := make([]byte, mpegts.PacketSize)
	buf[0] = mpegts.SyncByte
	buf[1] = 0x41 // PUSI, PID 0x100
	buf[3] = 0x30 | (cc & 0x0F)
	afLen := mpegts.PacketSize - 5 - len(pes)
	buf[4] = byte(afLen)

	var flags byte
	stuffFrom := 6
	if rai {
		flags |= 0x40
	}
	if pcr >= 0 {
		flags |= 0x10
		mpegts.EncodePCR(buf[6:12], pcr, 0)
		stuffFrom = 12
	}
	buf[5] = flags
	for i := stuffFrom; i < 5+afLen; i++ {
		buf[i] = 0xFF
	}
	copy(buf[5+afLen:], pes)
	return buf
}

// makeStream emits frames 0.1s apart with a keyframe (and PCR) every
// keyEvery frames.
func makeStream(frames, keyEvery int) []byte {
	idr := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88}
	slice := []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x9A}

	var stream bytes.Buffer
	for i := 0; i < frames; i++ {
		pts := int64(i) * 9000
		key := i%keyEvery == 0
		es := slice
		pcr := int64(-1)
		if key {
			es = idr
			pcr = pts
		}
		stream.Write(vPkt(uint8(i), key, pcr, pts, es))
	}
	return stream.Bytes()
}

// cutStream indexes input, resolves the points, and runs the full
// extract+remux path into a buffer.
func cutStream(t *testing.T, input []byte, points []cue.Point, policy PCRPolicy, strict bool) ([]byte, *cue.Plan) {
	t.Helper()
	ix, err := index.New(nil).Build(context.Background(), bytes.NewReader(input))
	require.NoError(t, err)
	plan, err := cue.Resolve(ix, points, cue.DefaultOptions())
	require.NoError(t, err)

	var out bytes.Buffer
	rmx := NewRemuxer(&out, policy, nil)
	ext := NewExtractor(bytes.NewReader(input), strict, nil)
	require.NoError(t, ext.Run(context.Background(), ix, plan, rmx))
	return out.Bytes(), plan
}

func parsePackets(t *testing.T, data []byte) []mpegts.Header {
	t.Helper()
	require.Zero(t, len(data)%mpegts.PacketSize)
	headers := make([]mpegts.Header, 0, len(data)/mpegts.PacketSize)
	for off := 0; off < len(data); off += mpegts.PacketSize {
		h, err := mpegts.ParseHeader(data[off : off+mpegts.PacketSize])
		require.NoError(t, err)
		headers = append(headers, h)
	}
	return headers
}

func TestCut_EmptyCueSetIsIdentity(t *testing.T) {
	t.Parallel()
	input := makeStream(50, 10)
	out, plan := cutStream(t, input, nil, PCRPreserve, true)
	assert.Equal(t, input, out)
	assert.Equal(t, int64(0), plan.Removed90k)
}

func TestCut_MidRemoval(t *testing.T) {
	t.Parallel()
	input := makeStream(100, 10) // keyframes each second
	points := []cue.Point{
		{Time: sec(1.55), Kind: cue.CutOut},
		{Time: sec(2.5), Kind: cue.CutIn},
	}
	out, plan := cutStream(t, input, points, PCRPreserve, true)

	// Removal snaps to [1s,3s): frames 10..29 dropped.
	require.Len(t, plan.Segments, 2)
	assert.Equal(t, 80*mpegts.PacketSize, len(out))
	assert.Equal(t, plan.KeptBytes(), int64(len(out)))
	assert.Equal(t, sec(2), plan.Removed90k)

	headers := parsePackets(t, out)

	// Continuity counters run monotonically across the splice.
	for i := 1; i < len(headers); i++ {
		assert.Equal(t, (headers[i-1].ContinuityCounter+1)&0x0F, headers[i].ContinuityCounter, "packet %d", i)
	}

	// The first packet after the splice carries the discontinuity
	// indicator; no other packet does.
	for i, h := range headers {
		assert.Equal(t, i == 10, h.Discontinuity, "packet %d", i)
	}

	// Preserve policy leaves the original clock: first packet of the second
	// segment still carries its source PCR of 3s.
	require.True(t, headers[10].HasPCR)
	assert.Equal(t, sec(3), headers[10].PCRBase)
}

func TestCut_RebaseShiftsClocks(t *testing.T) {
	t.Parallel()
	input := makeStream(100, 10)
	points := []cue.Point{
		{Time: sec(1.55), Kind: cue.CutOut},
		{Time: sec(2.5), Kind: cue.CutIn},
	}
	out, plan := cutStream(t, input, points, PCRRebase, true)
	require.Equal(t, sec(2), plan.Removed90k)

	headers := parsePackets(t, out)

	// Frame 30's PCR of 3s lands at 1s after removing 2s of material.
	require.True(t, headers[10].HasPCR)
	assert.Equal(t, sec(1), headers[10].PCRBase)

	// Its PES PTS shifts identically.
	pkt := out[10*mpegts.PacketSize : 11*mpegts.PacketSize]
	info, err := mpegts.ParsePESHeader(pkt[headers[10].PayloadOffset:])
	require.NoError(t, err)
	assert.Equal(t, sec(1), info.PTS)

	// Segment one is untouched.
	first, err := mpegts.ParsePESHeader(out[headers[0].PayloadOffset:mpegts.PacketSize])
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.PTS)
}

func TestCut_RebaseWrapsModulo33Bits(t *testing.T) {
	t.Parallel()
	pkt := vPkt(0, true, 90000, 90000, []byte{0x00, 0x00, 0x00, 0x01, 0x65})
	var out bytes.Buffer
	r := NewRemuxer(&out, PCRRebase, nil)
	require.NoError(t, r.BeginSegment(cue.Segment{Removed90kBefore: 180000}))
	require.NoError(t, r.WritePacket(pkt))

	h, err := mpegts.ParseHeader(out.Bytes())
	require.NoError(t, err)
	// 90000 - 180000 wraps to 2^33 - 90000.
	assert.Equal(t, mpegts.TimestampWrap-90000, h.PCRBase)
}

func TestExtractor_StrictIntegrity(t *testing.T) {
	t.Parallel()
	input := makeStream(20, 10)
	ix, err := index.New(nil).Build(context.Background(), bytes.NewReader(input))
	require.NoError(t, err)

	// Hand-built plan starting mid-GOP on a non-keyframe.
	plan := &cue.Plan{
		TotalBytes: ix.TotalBytes(),
		Segments: []cue.Segment{{
			StartPacket: 5,
			EndPacket:   20,
			StartOffset: ix.Records[5].Offset,
			EndOffset:   ix.TotalBytes(),
		}},
	}

	var out bytes.Buffer
	err = NewExtractor(bytes.NewReader(input), true, nil).
		Run(context.Background(), ix, plan, NewRemuxer(&out, PCRPreserve, nil))
	var integrityErr *IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, ix.Records[5].Offset, integrityErr.Offset)

	// Without strict, the same plan copies through.
	out.Reset()
	err = NewExtractor(bytes.NewReader(input), false, nil).
		Run(context.Background(), ix, plan, NewRemuxer(&out, PCRPreserve, nil))
	require.NoError(t, err)
	assert.Equal(t, 15*mpegts.PacketSize, out.Len())
}

func TestExtractor_Cancelled(t *testing.T) {
	t.Parallel()
	input := makeStream(20, 10)
	ix, err := index.New(nil).Build(context.Background(), bytes.NewReader(input))
	require.NoError(t, err)
	plan, err := cue.Resolve(ix, nil, cue.DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err = NewExtractor(bytes.NewReader(input), false, nil).
		Run(ctx, ix, plan, NewRemuxer(&out, PCRPreserve, nil))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRemuxer_StateMachine(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := NewRemuxer(&out, PCRPreserve, nil)

	pkt := vPkt(0, false, -1, 0, nil)
	require.Error(t, r.WritePacket(pkt), "write before BeginSegment")

	require.NoError(t, r.BeginSegment(cue.Segment{}))
	require.Error(t, r.BeginSegment(cue.Segment{}), "nested BeginSegment")
	require.Error(t, r.Finish(), "Finish mid-segment")
	require.NoError(t, r.WritePacket(pkt))
	require.NoError(t, r.EndSegment())
	require.Error(t, r.EndSegment(), "double EndSegment")
	require.NoError(t, r.Finish())
	require.Error(t, r.BeginSegment(cue.Segment{}), "BeginSegment after Finish")
}

func TestParsePCRPolicy(t *testing.T) {
	t.Parallel()
	p, err := ParsePCRPolicy("preserve")
	require.NoError(t, err)
	assert.Equal(t, PCRPreserve, p)

	p, err = ParsePCRPolicy("rebase")
	require.NoError(t, err)
	assert.Equal(t, PCRRebase, p)

	_, err = ParsePCRPolicy("drift")
	assert.Error(t, err)
}
