package scte35

// bitReader reads bits MSB-first from a byte slice. Reads past the end
// return zero and latch overflow so callers can fail once at the end.
type bitReader struct {
	data     []byte
	bitPos   int
	overflow bool
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (r *bitReader) readBit() bool {
	if r.bitPos >= len(r.data)*8 {
		r.overflow = true
		return false
	}
	b := r.data[r.bitPos/8] >> uint(7-r.bitPos%8) & 1
	r.bitPos++
	return b == 1
}

func (r *bitReader) readBits(n int) uint64 {
	var val uint64
	for i := 0; i < n; i++ {
		val <<= 1
		if r.readBit() {
			val |= 1
		}
	}
	return val
}

func (r *bitReader) readUint32(n int) uint32 { return uint32(r.readBits(n)) }

func (r *bitReader) readUint64(n int) uint64 { return r.readBits(n) }

func (r *bitReader) skip(n int) {
	r.bitPos += n
	if r.bitPos > len(r.data)*8 {
		r.overflow = true
	}
}

// bitWriter writes bits MSB-first into a preallocated byte slice. Writes
// past the end are dropped and latch overflow, which means the caller
// sized the buffer wrong for the fields it encoded.
type bitWriter struct {
	data     []byte
	bitPos   int
	overflow bool
}

func newBitWriter(size int) *bitWriter {
	return &bitWriter{data: make([]byte, size)}
}

func (w *bitWriter) putBit(b bool) {
	if w.bitPos >= len(w.data)*8 {
		w.overflow = true
		return
	}
	if b {
		w.data[w.bitPos/8] |= 1 << uint(7-w.bitPos%8)
	}
	w.bitPos++
}

func (w *bitWriter) putBits(n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		w.putBit(v>>uint(i)&1 == 1)
	}
}

func (w *bitWriter) putUint32(n int, v uint32) { w.putBits(n, uint64(v)) }

func (w *bitWriter) putUint64(n int, v uint64) { w.putBits(n, v) }
