package mpegts

import "fmt"

// PESInfo describes the header of a packetized elementary stream unit.
// PTSOffset and DTSOffset are byte offsets of the 5-byte timestamp
// encodings within the payload passed to ParsePESHeader, so the remuxer can
// rewrite them in place; they are -1 when the timestamp is absent.
type PESInfo struct {
	StreamID   byte
	PTS        int64 // NoTimestamp when absent
	DTS        int64 // NoTimestamp when absent
	PTSOffset  int
	DTSOffset  int
	DataOffset int // start of elementary stream bytes within the payload
}

// IsPESStart checks for the PES start code prefix (0x000001).
func IsPESStart(payload []byte) bool {
	return len(payload) >= 3 && payload[0] == 0x00 && payload[1] == 0x00 && payload[2] == 0x01
}

// hasOptionalPESHeader reports whether the stream ID carries the optional
// PES header. padding_stream, private_stream_2, ECM, EMM, DSMCC, H.222.1
// type E, and program_stream_directory do not.
func hasOptionalPESHeader(streamID byte) bool {
	switch streamID {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

// IsVideoStreamID reports whether the PES stream ID is in the video range.
func IsVideoStreamID(id byte) bool { return id >= 0xE0 && id <= 0xEF }

// IsAudioStreamID reports whether the PES stream ID is in the audio range.
func IsAudioStreamID(id byte) bool { return id >= 0xC0 && id <= 0xDF }

// ParsePESHeader parses a PES header from the start of payload. Only the
// fields the cut engine needs are decoded: stream ID, PTS, and DTS, plus
// their byte positions for in-place rebasing.
func ParsePESHeader(payload []byte) (PESInfo, error) {
	info := PESInfo{PTS: NoTimestamp, DTS: NoTimestamp, PTSOffset: -1, DTSOffset: -1}

	if len(payload) < 6 {
		return info, fmt.Errorf("mpegts: PES header too short (%d bytes)", len(payload))
	}
	if !IsPESStart(payload) {
		return info, fmt.Errorf("mpegts: invalid PES start code")
	}

	info.StreamID = payload[3]

	if !hasOptionalPESHeader(info.StreamID) {
		info.DataOffset = 6
		return info, nil
	}
	if len(payload) < 9 {
		return info, fmt.Errorf("mpegts: PES optional header truncated")
	}

	// payload[7]: PTS_DTS_indicator(2) + ESCR + ES_rate + DSM_trick +
	// additional_copy + CRC + extension flags.
	ptsDTSIndicator := payload[7] >> 6 & 0x03
	headerDataLength := int(payload[8])

	info.DataOffset = 9 + headerDataLength
	if info.DataOffset > len(payload) {
		info.DataOffset = len(payload)
	}

	switch ptsDTSIndicator {
	case 2: // PTS only
		if len(payload) >= 14 {
			info.PTSOffset = 9
			info.PTS = DecodeTimestamp(payload[9:14])
		}
	case 3: // PTS + DTS
		if len(payload) >= 19 {
			info.PTSOffset = 9
			info.PTS = DecodeTimestamp(payload[9:14])
			info.DTSOffset = 14
			info.DTS = DecodeTimestamp(payload[14:19])
		}
	}

	return info, nil
}

// DecodeTimestamp extracts a 33-bit PTS/DTS from the 5-byte PES encoding.
func DecodeTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1&0x7F)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1&0x7F)
}

// EncodeTimestamp writes a 33-bit PTS/DTS into the 5-byte PES encoding,
// preserving the prefix nibble and marker bits from the original bytes.
func EncodeTimestamp(b []byte, v int64) {
	v &= TimestampWrap - 1
	prefix := b[0] & 0xF0
	b[0] = prefix | byte(v>>29&0x0E) | 0x01
	b[1] = byte(v >> 22)
	b[2] = byte(v>>14&0xFE) | 0x01
	b[3] = byte(v >> 7)
	b[4] = byte(v<<1&0xFE) | 0x01
}
