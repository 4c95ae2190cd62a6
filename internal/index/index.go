// Package index builds an ordered, read-only index of transport stream
// packets in a single sequential pass: per-packet keyframe flags, clock
// references, and PES timestamps, plus the PID-to-stream-type table from
// PAT/PMT. The resulting StreamIndex is immutable and safe to share.
package index

import (
	"sort"

	"github.com/tscut/tscut/internal/mpegts"
)

// PacketRecord describes one transport stream packet. Immutable once the
// index is built.
type PacketRecord struct {
	PID    uint16
	Offset int64
	Size   int
	CC     uint8

	PayloadUnitStart bool
	Keyframe         bool

	// PCR is the 90 kHz clock reference base, mpegts.NoTimestamp when the
	// packet carries none. PTS and DTS come from the PES header starting in
	// this packet, mpegts.NoTimestamp when absent.
	PCR int64
	PTS int64
	DTS int64
}

// Keyframe is a random-access point on the video PID. Time is in 90 kHz
// ticks relative to the start of the stream.
type Keyframe struct {
	Packet int // index into Records
	Offset int64
	Time   int64
}

// StreamIndex is the read-only result of indexing one input. Fields are
// exported for inspection but must not be mutated after Build returns.
type StreamIndex struct {
	Records []PacketRecord
	Types   map[uint16]mpegts.StreamType

	VideoPID uint16
	PCRPID   uint16

	keyframes []Keyframe
	firstTime int64 // first video PTS (unwrapped), NoTimestamp if none seen
	lastTime  int64 // last video PTS (unwrapped)
	endOffset int64
}

// PacketCount returns the number of indexed packets.
func (ix *StreamIndex) PacketCount() int { return len(ix.Records) }

// TotalBytes returns the end offset of the last indexed packet.
func (ix *StreamIndex) TotalBytes() int64 { return ix.endOffset }

// Duration returns the indexed duration in 90 kHz ticks, measured between
// the first and last video presentation timestamps. Zero when the stream
// carries no video timestamps.
func (ix *StreamIndex) Duration() int64 {
	if ix.firstTime == mpegts.NoTimestamp {
		return 0
	}
	return ix.lastTime - ix.firstTime
}

// StartTime returns the first video PTS, or mpegts.NoTimestamp.
func (ix *StreamIndex) StartTime() int64 { return ix.firstTime }

// Keyframes returns the video random-access points in stream order.
// The returned slice is shared and must not be modified.
func (ix *StreamIndex) Keyframes() []Keyframe { return ix.keyframes }

// KeyframeAtOrBefore returns the last keyframe with Time <= t.
func (ix *StreamIndex) KeyframeAtOrBefore(t int64) (Keyframe, bool) {
	i := sort.Search(len(ix.keyframes), func(i int) bool {
		return ix.keyframes[i].Time > t
	})
	if i == 0 {
		return Keyframe{}, false
	}
	return ix.keyframes[i-1], true
}

// KeyframeAtOrAfter returns the first keyframe with Time >= t.
func (ix *StreamIndex) KeyframeAtOrAfter(t int64) (Keyframe, bool) {
	i := sort.Search(len(ix.keyframes), func(i int) bool {
		return ix.keyframes[i].Time >= t
	})
	if i == len(ix.keyframes) {
		return Keyframe{}, false
	}
	return ix.keyframes[i], true
}

// PacketEnd returns the exclusive end offset of packet i.
func (ix *StreamIndex) PacketEnd(i int) int64 {
	r := ix.Records[i]
	return r.Offset + int64(r.Size)
}
