package mpegts

import "fmt"

const (
	// PIDPAT is the well-known PID of the Program Association Table.
	PIDPAT uint16 = 0x0000

	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// PATEntry maps a program number to its PMT PID.
type PATEntry struct {
	ProgramNumber uint16
	PMTPID        uint16
}

// ESInfo describes one elementary stream listed in a PMT.
type ESInfo struct {
	PID  uint16
	Type StreamType
}

// PMT is the parsed Program Map Table.
type PMT struct {
	PCRPID  uint16
	Streams []ESInfo
}

// ExtractSections walks a PSI payload (starting at the pointer field) and
// returns the raw section bytes it contains, stopping at stuffing.
func ExtractSections(payload []byte) ([][]byte, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("mpegts: PSI payload too short")
	}

	pointerField := int(payload[0])
	offset := 1 + pointerField
	if offset >= len(payload) {
		return nil, fmt.Errorf("mpegts: PSI pointer field out of range")
	}

	var sections [][]byte
	for offset < len(payload) {
		if payload[offset] == 0xFF {
			break // stuffing
		}
		if offset+3 > len(payload) {
			break
		}
		// section_syntax_indicator must be 1 for PAT/PMT; zero padding
		// bytes have it clear.
		if payload[offset+1]&0x80 == 0 {
			break
		}
		sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
		sectionEnd := offset + 3 + sectionLength
		if sectionEnd > len(payload) {
			break
		}
		sections = append(sections, payload[offset:sectionEnd])
		offset = sectionEnd
	}
	return sections, nil
}

// SectionComplete reports whether an accumulated PSI payload holds at least
// one complete section, so per-PID accumulation knows when to flush.
func SectionComplete(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	pointerField := int(payload[0])
	offset := 1 + pointerField
	if offset >= len(payload) {
		return false
	}
	if offset+3 > len(payload) {
		return false
	}
	if payload[offset] == 0xFF || payload[offset+1]&0x80 == 0 {
		return true
	}
	sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
	return offset+3+sectionLength <= len(payload)
}

// ParsePAT parses a PAT section into its program entries. The NIT entry
// (program number 0) is skipped.
func ParsePAT(section []byte) ([]PATEntry, error) {
	if err := VerifyCRC32(section); err != nil {
		return nil, fmt.Errorf("mpegts: PAT %w", err)
	}
	if len(section) < 12 { // 8 header + 4 CRC
		return nil, fmt.Errorf("mpegts: PAT too short")
	}
	if section[0] != tableIDPAT {
		return nil, fmt.Errorf("mpegts: PAT table ID 0x%02X", section[0])
	}

	sectionLength := int(section[1]&0x0F)<<8 | int(section[2])
	entryEnd := 3 + sectionLength - 4 // exclude CRC
	if entryEnd > len(section)-4 {
		entryEnd = len(section) - 4
	}

	var entries []PATEntry
	for i := 8; i+4 <= entryEnd; i += 4 {
		programNumber := uint16(section[i])<<8 | uint16(section[i+1])
		pmtPID := uint16(section[i+2]&0x1F)<<8 | uint16(section[i+3])
		if programNumber == 0 {
			continue
		}
		entries = append(entries, PATEntry{ProgramNumber: programNumber, PMTPID: pmtPID})
	}
	return entries, nil
}

// ParsePMT parses a PMT section into the PCR PID and elementary streams.
func ParsePMT(section []byte) (PMT, error) {
	var pmt PMT
	if err := VerifyCRC32(section); err != nil {
		return pmt, fmt.Errorf("mpegts: PMT %w", err)
	}
	if len(section) < 16 { // 12 header + 4 CRC
		return pmt, fmt.Errorf("mpegts: PMT too short")
	}
	if section[0] != tableIDPMT {
		return pmt, fmt.Errorf("mpegts: PMT table ID 0x%02X", section[0])
	}

	sectionLength := int(section[1]&0x0F)<<8 | int(section[2])
	sectionEnd := 3 + sectionLength

	pmt.PCRPID = uint16(section[8]&0x1F)<<8 | uint16(section[9])
	programInfoLength := int(section[10]&0x0F)<<8 | int(section[11])
	offset := 12 + programInfoLength

	for offset+5 <= sectionEnd-4 && offset+5 <= len(section) {
		streamType := StreamType(section[offset])
		pid := uint16(section[offset+1]&0x1F)<<8 | uint16(section[offset+2])
		esInfoLength := int(section[offset+3]&0x0F)<<8 | int(section[offset+4])
		pmt.Streams = append(pmt.Streams, ESInfo{PID: pid, Type: streamType})
		offset += 5 + esInfoLength
	}
	return pmt, nil
}
