package index

import "fmt"

// FormatError means the sync pattern could not be located within the
// configured resync window; the input is not a transport stream we can read.
type FormatError struct {
	Offset int64 // byte offset where the search started
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("index: no sync byte within resync window starting at offset %d", e.Offset)
}

// StreamCorruptError means the malformed-packet budget was exceeded.
type StreamCorruptError struct {
	Offset    int64 // byte offset of the packet that exceeded the budget
	Malformed int
}

func (e *StreamCorruptError) Error() string {
	return fmt.Sprintf("index: %d malformed packets, budget exceeded at offset %d", e.Malformed, e.Offset)
}
