package mpegts

import (
	"bytes"
	"testing"
)

// makePacket builds a payload-only packet.
func makePacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	buf := make([]byte, PacketSize)
	buf[0] = SyncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | (cc & 0x0F)
	if pusi {
		buf[1] |= 0x40
	}
	for i := 4 + copy(buf[4:], payload); i < PacketSize; i++ {
		buf[i] = 0xFF
	}
	return buf
}

// makePacketWithPCR builds an adaptation+payload packet carrying a PCR.
func makePacketWithPCR(pid uint16, cc uint8, base int64, ext uint16, payload []byte) []byte {
	buf := make([]byte, PacketSize)
	buf[0] = SyncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x30 | (cc & 0x0F)

	afLen := PacketSize - 5 - len(payload)
	buf[4] = byte(afLen)
	buf[5] = 0x10 // PCR flag
	EncodePCR(buf[6:12], base, ext)
	for i := 12; i < 5+afLen; i++ {
		buf[i] = 0xFF // AF stuffing
	}
	copy(buf[5+afLen:], payload)
	return buf
}

func TestParseHeader_Basic(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x100, 5, true, []byte{0x01, 0x02})

	h, err := ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.PID != 0x100 {
		t.Errorf("PID = 0x%X, want 0x100", h.PID)
	}
	if h.ContinuityCounter != 5 {
		t.Errorf("CC = %d, want 5", h.ContinuityCounter)
	}
	if !h.PayloadUnitStart {
		t.Error("PUSI should be true")
	}
	if !h.HasPayload || h.HasAdaptation {
		t.Errorf("HasPayload=%v HasAdaptation=%v, want true/false", h.HasPayload, h.HasAdaptation)
	}
	if h.PayloadOffset != 4 {
		t.Errorf("PayloadOffset = %d, want 4", h.PayloadOffset)
	}
	if h.PCRBase != NoTimestamp {
		t.Errorf("PCRBase = %d, want NoTimestamp", h.PCRBase)
	}
}

func TestParseHeader_BadSync(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x100, 0, false, nil)
	buf[0] = 0x48
	if _, err := ParseHeader(buf); err == nil {
		t.Fatal("expected error for bad sync byte")
	}
}

func TestParseHeader_WrongSize(t *testing.T) {
	t.Parallel()
	if _, err := ParseHeader(make([]byte, 187)); err == nil {
		t.Fatal("expected error for short packet")
	}
}

func TestParseHeader_PCR(t *testing.T) {
	t.Parallel()
	const base = int64(123456789)
	const ext = uint16(0x1AB)
	buf := makePacketWithPCR(0x100, 3, base, ext, []byte{0xAA})

	h, err := ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !h.HasPCR {
		t.Fatal("HasPCR should be true")
	}
	if h.PCRBase != base {
		t.Errorf("PCRBase = %d, want %d", h.PCRBase, base)
	}
	if h.PCRExt != ext {
		t.Errorf("PCRExt = %d, want %d", h.PCRExt, ext)
	}
	if got := buf[h.PayloadOffset]; got != 0xAA {
		t.Errorf("payload byte = 0x%02X, want 0xAA", got)
	}
}

func TestPCRRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		base int64
		ext  uint16
	}{
		{0, 0},
		{1, 299},
		{TimestampWrap - 1, 0x1FF},
		{0x123456789, 42},
	}
	var b [6]byte
	for _, tc := range cases {
		EncodePCR(b[:], tc.base, tc.ext)
		base, ext := DecodePCR(b[:])
		want := tc.base & (TimestampWrap - 1)
		if base != want || ext != tc.ext {
			t.Errorf("round trip (%d,%d) = (%d,%d)", tc.base, tc.ext, base, ext)
		}
		if b[4]&0x7E != 0x7E {
			t.Errorf("reserved bits not set in byte 4: 0x%02X", b[4])
		}
	}
}

func TestSetPCRBase_PreservesExtension(t *testing.T) {
	t.Parallel()
	buf := makePacketWithPCR(0x100, 0, 900000, 123, nil)
	SetPCRBase(buf, 450000)
	base, ext := DecodePCR(buf[6:12])
	if base != 450000 {
		t.Errorf("base = %d, want 450000", base)
	}
	if ext != 123 {
		t.Errorf("ext = %d, want 123", ext)
	}
}

func TestSetContinuityCounter(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x100, 5, true, nil)
	SetContinuityCounter(buf, 0x1C) // only low 4 bits land
	h, err := ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.ContinuityCounter != 0x0C {
		t.Errorf("CC = %d, want 12", h.ContinuityCounter)
	}
	if !h.HasPayload {
		t.Error("payload flag clobbered")
	}
}

func TestSetDiscontinuity(t *testing.T) {
	t.Parallel()
	withAF := makePacketWithPCR(0x100, 0, 0, 0, nil)
	if !SetDiscontinuity(withAF) {
		t.Fatal("SetDiscontinuity should succeed with an adaptation field")
	}
	h, err := ParseHeader(withAF)
	if err != nil {
		t.Fatal(err)
	}
	if !h.Discontinuity {
		t.Error("discontinuity indicator not set")
	}

	noAF := makePacket(0x100, 0, false, []byte{1, 2, 3})
	before := bytes.Clone(noAF)
	if SetDiscontinuity(noAF) {
		t.Error("SetDiscontinuity should refuse a payload-only packet")
	}
	if !bytes.Equal(noAF, before) {
		t.Error("payload-only packet was modified")
	}
}

func FuzzParseHeader(f *testing.F) {
	f.Add(makePacket(0x100, 0, true, []byte{1, 2, 3}))
	f.Add(makePacketWithPCR(0x1FFF, 15, TimestampWrap-1, 0x1FF, nil))
	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) != PacketSize {
			return
		}
		h, err := ParseHeader(data)
		if err != nil {
			return
		}
		if h.PayloadOffset < 4 || h.PayloadOffset > PacketSize {
			t.Fatalf("PayloadOffset %d out of range", h.PayloadOffset)
		}
		if h.PID > 0x1FFF {
			t.Fatalf("PID 0x%X out of range", h.PID)
		}
	})
}

func BenchmarkParseHeader(b *testing.B) {
	buf := makePacketWithPCR(0x100, 7, 900000, 100, []byte{0x00, 0x00, 0x01})
	for i := 0; i < b.N; i++ {
		if _, err := ParseHeader(buf); err != nil {
			b.Fatal(err)
		}
	}
}
