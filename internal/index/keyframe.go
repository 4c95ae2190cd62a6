package index

import "github.com/tscut/tscut/internal/mpegts"

// maxNALScan bounds how many NAL units we inspect at the head of an access
// unit before deciding it is not a random-access point.
const maxNALScan = 8

// startsWithKeyframe reports whether the elementary stream bytes at the
// start of an access unit open a random-access point. Used as a fallback
// when an encoder never sets the adaptation field random-access indicator.
func startsWithKeyframe(streamType mpegts.StreamType, es []byte) bool {
	switch streamType {
	case mpegts.StreamTypeH264:
		return startsWithH264Keyframe(es)
	case mpegts.StreamTypeH265:
		return startsWithH265Keyframe(es)
	case mpegts.StreamTypeMPEG2Video:
		return startsWithMPEG2Sequence(es)
	}
	return false
}

// nalStarts returns offsets immediately after each 3- or 4-byte Annex-B
// start code, up to maxNALScan units.
func nalStarts(data []byte) []int {
	var starts []int
	for i := 0; i+3 < len(data) && len(starts) < maxNALScan; i++ {
		if data[i] != 0 || data[i+1] != 0 {
			continue
		}
		if data[i+2] == 1 {
			starts = append(starts, i+3)
			i += 2
		} else if data[i+2] == 0 && data[i+3] == 1 {
			starts = append(starts, i+4)
			i += 3
		}
	}
	return starts
}

func startsWithH264Keyframe(es []byte) bool {
	for _, off := range nalStarts(es) {
		if off >= len(es) {
			break
		}
		switch es[off] & 0x1F {
		case 5, 7: // IDR slice, SPS
			return true
		case 1, 2, 3, 4: // non-IDR slice data
			return false
		}
	}
	return false
}

func startsWithH265Keyframe(es []byte) bool {
	for _, off := range nalStarts(es) {
		if off >= len(es) {
			break
		}
		nalType := es[off] >> 1 & 0x3F
		switch {
		case nalType >= 16 && nalType <= 21: // BLA, IDR, CRA
			return true
		case nalType == 32 || nalType == 33: // VPS, SPS
			return true
		case nalType <= 9: // trailing/leading slice data
			return false
		}
	}
	return false
}

// startsWithMPEG2Sequence looks for a sequence header start code
// (00 00 01 B3), which precedes every MPEG-2 GOP entry point.
func startsWithMPEG2Sequence(es []byte) bool {
	for i := 0; i+3 < len(es) && i < 64; i++ {
		if es[i] == 0 && es[i+1] == 0 && es[i+2] == 1 {
			switch es[i+3] {
			case 0xB3:
				return true
			case 0x00: // picture start before any sequence header
				return false
			}
		}
	}
	return false
}
