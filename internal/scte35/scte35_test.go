package scte35

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tscut/tscut/internal/mpegts"
)

func u64(v uint64) *uint64 { return &v }

func TestSpliceInsertRoundTrip(t *testing.T) {
	t.Parallel()
	in := &Section{
		PTSAdjustment: 12345,
		Tier:          0xFFF,
		Insert: &SpliceInsert{
			EventID:      1001,
			OutOfNetwork: true,
			SpliceTime:   SpliceTime{PTS: u64(900000)},
			BreakDuration: &BreakDuration{
				AutoReturn: true,
				Duration:   30 * 90000,
			},
			UniqueProgramID: 7,
			AvailNum:        1,
			AvailsExpected:  4,
		},
	}

	data, err := in.Encode()
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, SpliceInsertType, out.CommandType)
	assert.Equal(t, uint64(12345), out.PTSAdjustment)
	assert.Equal(t, uint32(0xFFF), out.Tier)

	require.NotNil(t, out.Insert)
	ins := out.Insert
	assert.Equal(t, uint32(1001), ins.EventID)
	assert.True(t, ins.OutOfNetwork)
	assert.False(t, ins.EventCancel)
	assert.False(t, ins.Immediate)
	require.NotNil(t, ins.SpliceTime.PTS)
	assert.Equal(t, uint64(900000), *ins.SpliceTime.PTS)
	require.NotNil(t, ins.BreakDuration)
	assert.True(t, ins.BreakDuration.AutoReturn)
	assert.Equal(t, uint64(30*90000), ins.BreakDuration.Duration)
	assert.Equal(t, uint32(7), ins.UniqueProgramID)
	assert.Equal(t, uint32(1), ins.AvailNum)
	assert.Equal(t, uint32(4), ins.AvailsExpected)
}

func TestSpliceInsert_ReturnToNetwork(t *testing.T) {
	t.Parallel()
	in := &Section{
		Tier: 0xFFF,
		Insert: &SpliceInsert{
			EventID:      1002,
			OutOfNetwork: false,
			SpliceTime:   SpliceTime{PTS: u64((1 << 33) - 1)},
		},
	}

	data, err := in.Encode()
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)

	require.NotNil(t, out.Insert)
	assert.False(t, out.Insert.OutOfNetwork)
	assert.Nil(t, out.Insert.BreakDuration)
	require.NotNil(t, out.Insert.SpliceTime.PTS)
	assert.Equal(t, uint64(1<<33-1), *out.Insert.SpliceTime.PTS)
}

func TestSpliceInsert_CancelRoundTrip(t *testing.T) {
	t.Parallel()
	in := &Section{
		Insert: &SpliceInsert{EventID: 42, EventCancel: true},
	}
	data, err := in.Encode()
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	require.NotNil(t, out.Insert)
	assert.True(t, out.Insert.EventCancel)
	assert.Equal(t, uint32(42), out.Insert.EventID)
}

func TestTimeSignalRoundTrip(t *testing.T) {
	t.Parallel()
	in := &Section{
		Tier:       0xFFF,
		TimeSignal: &TimeSignal{SpliceTime: SpliceTime{PTS: u64(4500000)}},
	}
	data, err := in.Encode()
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TimeSignalType, out.CommandType)
	require.NotNil(t, out.TimeSignal)
	require.NotNil(t, out.TimeSignal.SpliceTime.PTS)
	assert.Equal(t, uint64(4500000), *out.TimeSignal.SpliceTime.PTS)
}

func TestSpliceNullRoundTrip(t *testing.T) {
	t.Parallel()
	data, err := (&Section{Null: &SpliceNull{}}).Encode()
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	assert.NotNil(t, out.Null)
}

func TestDecode_RejectsBadCRC(t *testing.T) {
	t.Parallel()
	data, err := (&Section{Null: &SpliceNull{}}).Encode()
	require.NoError(t, err)
	data[4] ^= 0x01
	_, err = Decode(data)
	assert.Error(t, err)
}

func TestDecode_RejectsWrongTable(t *testing.T) {
	t.Parallel()
	data, err := (&Section{Null: &SpliceNull{}}).Encode()
	require.NoError(t, err)
	data[0] = 0x00
	_, err = Decode(data)
	assert.Error(t, err)
}

// sectionWithValidCRC appends a matching CRC so only the length and field
// checks in Decode are exercised.
func sectionWithValidCRC(body []byte) []byte {
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], mpegts.ComputeCRC32(body))
	return append(body, crc[:]...)
}

func TestDecode_TruncatedSection(t *testing.T) {
	t.Parallel()

	// 11 bytes of body plus CRC clears the minimum-length check but ends
	// before the splice command starts.
	body := make([]byte, 11)
	body[0] = tableID
	_, err := Decode(sectionWithValidCRC(body))
	assert.ErrorContains(t, err, "truncated")

	// Shorter still fails the length check rather than the slice bounds.
	short := sectionWithValidCRC([]byte{tableID})
	_, err = Decode(short)
	assert.Error(t, err)
}

func TestEncode_RequiresCommand(t *testing.T) {
	t.Parallel()
	_, err := (&Section{}).Encode()
	assert.Error(t, err)
}
