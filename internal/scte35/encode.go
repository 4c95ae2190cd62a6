package scte35

import (
	"fmt"

	"github.com/tscut/tscut/internal/mpegts"
)

// Encode serializes the section, computing section_length and CRC.
func (s *Section) Encode() ([]byte, error) {
	var cmdData []byte
	var cmdType uint32
	var err error

	switch {
	case s.Insert != nil:
		cmdType = SpliceInsertType
		cmdData, err = s.Insert.encode()
	case s.TimeSignal != nil:
		cmdType = TimeSignalType
		cmdData, err = s.TimeSignal.encode()
	case s.Null != nil:
		cmdType = SpliceNullType
		cmdData = nil
	default:
		return nil, fmt.Errorf("scte35: section has no command")
	}
	if err != nil {
		return nil, err
	}

	// 11 bytes of fixed fields after table_id..section_length, plus the
	// command, a zero descriptor loop length, and the CRC.
	sectionLength := 11 + len(cmdData) + 2 + 4
	total := 3 + sectionLength

	w := newBitWriter(total)
	w.putUint32(8, tableID)
	w.putBit(false) // section_syntax_indicator
	w.putBit(false) // private_indicator
	w.putUint32(2, 3)
	w.putUint32(12, uint32(sectionLength))
	w.putUint32(8, 0) // protocol_version
	w.putBit(false)   // encrypted_packet
	w.putUint32(6, 0) // encryption_algorithm
	w.putUint64(33, s.PTSAdjustment)
	w.putUint32(8, 0) // cw_index
	w.putUint32(12, s.Tier)
	w.putUint32(12, uint32(len(cmdData)))
	w.putUint32(8, cmdType)
	for _, b := range cmdData {
		w.putUint32(8, uint32(b))
	}
	w.putUint32(16, 0) // descriptor_loop_length
	if w.overflow {
		return nil, fmt.Errorf("scte35: command does not fit section_length %d", sectionLength)
	}

	crc := mpegts.ComputeCRC32(w.data[:total-4])
	w.putUint32(32, crc)
	return w.data, nil
}

func (cmd *SpliceInsert) encode() ([]byte, error) {
	length := 5 // event_id + cancel/reserved
	if !cmd.EventCancel {
		length++ // flags byte
		if !cmd.Immediate {
			length += spliceTimeLength(cmd.SpliceTime)
		}
		if cmd.BreakDuration != nil {
			length += 5
		}
	}
	length += 4 // unique_program_id + avail_num + avails_expected

	w := newBitWriter(length)
	w.putUint32(32, cmd.EventID)
	w.putBit(cmd.EventCancel)
	w.putUint32(7, 0x7F) // reserved

	if !cmd.EventCancel {
		w.putBit(cmd.OutOfNetwork)
		w.putBit(true) // program_splice_flag
		w.putBit(cmd.BreakDuration != nil)
		w.putBit(cmd.Immediate)
		w.putUint32(4, 0x0F) // reserved

		if !cmd.Immediate {
			encodeSpliceTime(w, cmd.SpliceTime)
		}
		if cmd.BreakDuration != nil {
			w.putBit(cmd.BreakDuration.AutoReturn)
			w.putUint32(6, 0x3F) // reserved
			w.putUint64(33, cmd.BreakDuration.Duration)
		}
	}

	w.putUint32(16, cmd.UniqueProgramID)
	w.putUint32(8, cmd.AvailNum)
	w.putUint32(8, cmd.AvailsExpected)
	return w.data, nil
}

func (cmd *TimeSignal) encode() ([]byte, error) {
	w := newBitWriter(spliceTimeLength(cmd.SpliceTime))
	encodeSpliceTime(w, cmd.SpliceTime)
	return w.data, nil
}

func spliceTimeLength(st SpliceTime) int {
	if st.PTS != nil {
		return 5
	}
	return 1
}

func encodeSpliceTime(w *bitWriter, st SpliceTime) {
	if st.PTS != nil {
		w.putBit(true)
		w.putUint32(6, 0x3F) // reserved
		w.putUint64(33, *st.PTS)
		return
	}
	w.putBit(false)
	w.putUint32(7, 0x7F) // reserved
}
