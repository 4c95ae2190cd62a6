// Package mpegts implements the MPEG-TS packet-level primitives shared by
// the indexer and the remuxer: header parsing including the adaptation
// field, PCR and PES timestamp codecs with in-place rewrite support, and
// PAT/PMT section parsing.
package mpegts

import "fmt"

const (
	// PacketSize is the fixed size of an MPEG-TS packet.
	PacketSize = 188
	// SyncByte starts every valid MPEG-TS packet.
	SyncByte = 0x47

	// ClockRate is the 90 kHz system clock shared by PCR base, PTS, and DTS.
	ClockRate = 90000
	// TimestampWrap is the modulus of the 33-bit 90 kHz timestamps.
	TimestampWrap = int64(1) << 33

	// NoTimestamp marks an absent PTS, DTS, or PCR value.
	NoTimestamp int64 = -1
)

// Header contains the parsed fields of a transport stream packet header,
// including the adaptation field when present. It never aliases the packet
// bytes, so a Header stays valid after the packet buffer is reused.
type Header struct {
	PID               uint16
	ContinuityCounter uint8
	TransportError    bool
	PayloadUnitStart  bool
	HasAdaptation     bool
	HasPayload        bool

	// Adaptation field details, meaningful only when HasAdaptation.
	AdaptationLen int // value of the adaptation_field_length byte
	Discontinuity bool
	RandomAccess  bool
	HasPCR        bool
	PCRBase       int64  // 90 kHz
	PCRExt        uint16 // 27 MHz remainder, 0..299

	// PayloadOffset is where payload bytes start within the 188-byte
	// packet. Equals PacketSize when the adaptation field fills the packet.
	PayloadOffset int
}

// StreamType is the elementary stream type from the PMT.
type StreamType uint8

// Stream types seen in broadcast transport streams.
const (
	StreamTypeMPEG2Video StreamType = 0x02
	StreamTypeMPEG1Audio StreamType = 0x03
	StreamTypeMPEG2Audio StreamType = 0x04
	StreamTypeADTS       StreamType = 0x0F
	StreamTypeH264       StreamType = 0x1B
	StreamTypeH265       StreamType = 0x24
	StreamTypeAC3        StreamType = 0x81
	StreamTypeSCTE35     StreamType = 0x86
)

// IsVideo reports whether the stream type carries video.
func (t StreamType) IsVideo() bool {
	return t == StreamTypeMPEG2Video || t == StreamTypeH264 || t == StreamTypeH265
}

// IsAudio reports whether the stream type carries audio.
func (t StreamType) IsAudio() bool {
	switch t {
	case StreamTypeMPEG1Audio, StreamTypeMPEG2Audio, StreamTypeADTS, StreamTypeAC3:
		return true
	}
	return false
}

func (t StreamType) String() string {
	switch t {
	case StreamTypeMPEG2Video:
		return "MPEG-2 Video"
	case StreamTypeMPEG1Audio:
		return "MPEG-1 Audio"
	case StreamTypeMPEG2Audio:
		return "MPEG-2 Audio"
	case StreamTypeADTS:
		return "AAC"
	case StreamTypeH264:
		return "H.264"
	case StreamTypeH265:
		return "H.265"
	case StreamTypeAC3:
		return "AC-3"
	case StreamTypeSCTE35:
		return "SCTE-35"
	}
	return fmt.Sprintf("type 0x%02X", uint8(t))
}
