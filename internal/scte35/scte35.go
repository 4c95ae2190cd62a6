// Package scte35 decodes the subset of ANSI/SCTE 35 splice information
// sections a broadcast cutter needs to discover ad boundaries: splice
// inserts with their PTS times and break durations, time signals, and the
// null heartbeat. Encoding is supported for the same subset so tests and
// tooling can synthesize marker streams.
package scte35

import (
	"fmt"

	"github.com/tscut/tscut/internal/mpegts"
)

const (
	tableID = 0xFC

	// SpliceNullType, SpliceInsertType, and TimeSignalType are the
	// splice_command_type values this package understands.
	SpliceNullType   uint32 = 0x00
	SpliceInsertType uint32 = 0x05
	TimeSignalType   uint32 = 0x06
)

// SpliceTime carries an optional 33-bit PTS.
type SpliceTime struct {
	PTS *uint64
}

// BreakDuration specifies how long a commercial break lasts.
type BreakDuration struct {
	AutoReturn bool
	Duration   uint64 // 90 kHz ticks
}

// SpliceNull is the heartbeat command.
type SpliceNull struct{}

// SpliceInsert signals entering or leaving a break. OutOfNetwork true
// means the break starts (cut out); false means return to program (cut in).
type SpliceInsert struct {
	EventID         uint32
	EventCancel     bool
	OutOfNetwork    bool
	Immediate       bool
	SpliceTime      SpliceTime
	BreakDuration   *BreakDuration
	UniqueProgramID uint32
	AvailNum        uint32
	AvailsExpected  uint32
}

// TimeSignal carries a single splice time.
type TimeSignal struct {
	SpliceTime SpliceTime
}

// Section is a decoded splice_info_section. Exactly one of the command
// fields is non-nil.
type Section struct {
	PTSAdjustment uint64
	Tier          uint32
	CommandType   uint32

	Null       *SpliceNull
	Insert     *SpliceInsert
	TimeSignal *TimeSignal
}

// Decode parses a binary splice_info_section, verifying its CRC.
func Decode(data []byte) (*Section, error) {
	if err := mpegts.VerifyCRC32(data); err != nil {
		return nil, fmt.Errorf("scte35: %w", err)
	}
	if len(data) < 15 || data[0] != tableID {
		return nil, fmt.Errorf("scte35: not a splice_info_section")
	}

	r := newBitReader(data)
	r.skip(8)  // table_id
	r.skip(1)  // section_syntax_indicator
	r.skip(1)  // private_indicator
	r.skip(2)  // sap_type
	r.skip(12) // section_length
	r.skip(8)  // protocol_version
	r.skip(1)  // encrypted_packet
	r.skip(6)  // encryption_algorithm

	s := &Section{}
	s.PTSAdjustment = r.readUint64(33)
	r.skip(8) // cw_index
	s.Tier = r.readUint32(12)

	commandLength := int(r.readUint32(12))
	s.CommandType = r.readUint32(8)

	cmdStart := r.bitPos / 8
	cmdEnd := cmdStart + commandLength
	if commandLength == 0xFFF || cmdEnd > len(data)-4 {
		cmdEnd = len(data) - 4 // legacy length, bounded by the CRC
	}
	if cmdEnd < cmdStart {
		return nil, fmt.Errorf("scte35: section truncated")
	}
	cmdData := data[cmdStart:cmdEnd]

	switch s.CommandType {
	case SpliceNullType:
		s.Null = &SpliceNull{}
	case SpliceInsertType:
		insert := &SpliceInsert{}
		if err := insert.decode(cmdData); err != nil {
			return nil, err
		}
		s.Insert = insert
	case TimeSignalType:
		ts := &TimeSignal{}
		if err := ts.decode(cmdData); err != nil {
			return nil, err
		}
		s.TimeSignal = ts
	default:
		return nil, fmt.Errorf("scte35: unsupported splice command 0x%02X", s.CommandType)
	}

	return s, nil
}

func (cmd *SpliceInsert) decode(data []byte) error {
	r := newBitReader(data)
	cmd.EventID = r.readUint32(32)
	cmd.EventCancel = r.readBit()
	r.skip(7) // reserved

	if !cmd.EventCancel {
		cmd.OutOfNetwork = r.readBit()
		programSplice := r.readBit()
		durationFlag := r.readBit()
		cmd.Immediate = r.readBit()
		r.skip(4) // reserved

		if programSplice && !cmd.Immediate {
			cmd.SpliceTime = decodeSpliceTime(r)
		}
		if !programSplice {
			componentCount := int(r.readUint32(8))
			for i := 0; i < componentCount; i++ {
				r.skip(8) // component_tag
				if !cmd.Immediate {
					decodeSpliceTime(r)
				}
			}
		}
		if durationFlag {
			cmd.BreakDuration = &BreakDuration{
				AutoReturn: r.readBit(),
			}
			r.skip(6) // reserved
			cmd.BreakDuration.Duration = r.readUint64(33)
		}
	}

	cmd.UniqueProgramID = r.readUint32(16)
	cmd.AvailNum = r.readUint32(8)
	cmd.AvailsExpected = r.readUint32(8)
	if r.overflow {
		return fmt.Errorf("scte35: splice_insert truncated")
	}
	return nil
}

func (cmd *TimeSignal) decode(data []byte) error {
	r := newBitReader(data)
	cmd.SpliceTime = decodeSpliceTime(r)
	if r.overflow {
		return fmt.Errorf("scte35: time_signal truncated")
	}
	return nil
}

func decodeSpliceTime(r *bitReader) SpliceTime {
	var st SpliceTime
	if r.readBit() { // time_specified_flag
		r.skip(6) // reserved
		pts := r.readUint64(33)
		st.PTS = &pts
	} else {
		r.skip(7) // reserved
	}
	return st
}
