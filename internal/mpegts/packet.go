package mpegts

import "fmt"

// pcrOffset is where the 6 PCR bytes sit when the PCR flag is set:
// 4 header bytes, adaptation_field_length, adaptation flags.
const pcrOffset = 6

// ParseHeader parses the header and adaptation field of a 188-byte packet.
func ParseHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) != PacketSize {
		return h, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), PacketSize)
	}
	if buf[0] != SyncByte {
		return h, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	h.TransportError = buf[1]&0x80 != 0
	h.PayloadUnitStart = buf[1]&0x40 != 0
	h.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	h.HasAdaptation = buf[3]&0x20 != 0
	h.HasPayload = buf[3]&0x10 != 0
	h.ContinuityCounter = buf[3] & 0x0F
	h.PCRBase = NoTimestamp

	offset := 4

	if h.HasAdaptation {
		h.AdaptationLen = int(buf[4])
		if h.AdaptationLen > 0 {
			flags := buf[5]
			h.Discontinuity = flags&0x80 != 0
			h.RandomAccess = flags&0x40 != 0
			if flags&0x10 != 0 && h.AdaptationLen >= 7 {
				h.HasPCR = true
				h.PCRBase, h.PCRExt = DecodePCR(buf[pcrOffset : pcrOffset+6])
			}
		}
		offset += 1 + h.AdaptationLen
		if offset > PacketSize {
			offset = PacketSize
		}
	}

	h.PayloadOffset = offset
	return h, nil
}

// SetContinuityCounter rewrites the 4-bit continuity counter in place.
func SetContinuityCounter(pkt []byte, cc uint8) {
	pkt[3] = pkt[3]&0xF0 | cc&0x0F
}

// SetDiscontinuity sets the discontinuity indicator in the adaptation
// field. It reports false when the packet carries no adaptation field with
// a flags byte; growing one would shift payload bytes, which the
// no-reencode contract forbids.
func SetDiscontinuity(pkt []byte) bool {
	if pkt[3]&0x20 == 0 || pkt[4] < 1 {
		return false
	}
	pkt[5] |= 0x80
	return true
}

// SetPCRBase rewrites the 33-bit PCR base in place, preserving the 9-bit
// extension. The caller must have verified the packet carries a PCR.
func SetPCRBase(pkt []byte, base int64) {
	_, ext := DecodePCR(pkt[pcrOffset : pcrOffset+6])
	EncodePCR(pkt[pcrOffset:pcrOffset+6], base, ext)
}

// DecodePCR extracts the 33-bit base (90 kHz) and 9-bit extension from the
// 6-byte adaptation field encoding.
func DecodePCR(b []byte) (base int64, ext uint16) {
	base = int64(b[0])<<25 |
		int64(b[1])<<17 |
		int64(b[2])<<9 |
		int64(b[3])<<1 |
		int64(b[4]>>7)
	ext = uint16(b[4]&0x01)<<8 | uint16(b[5])
	return base, ext
}

// EncodePCR writes a 33-bit base and 9-bit extension into the 6-byte
// encoding, keeping the reserved bits set.
func EncodePCR(b []byte, base int64, ext uint16) {
	base &= TimestampWrap - 1
	b[0] = byte(base >> 25)
	b[1] = byte(base >> 17)
	b[2] = byte(base >> 9)
	b[3] = byte(base >> 1)
	b[4] = byte(base&1)<<7 | 0x7E | byte(ext>>8)
	b[5] = byte(ext)
}
