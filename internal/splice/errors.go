package splice

import "fmt"

// IntegrityError means a computed splice boundary is not keyframe-aligned
// and strict mode is on.
type IntegrityError struct {
	Offset int64 // byte offset of the offending segment start
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("splice: segment start at offset %d is not a keyframe packet", e.Offset)
}

// IOError wraps an underlying storage failure. No retries happen at this
// layer; the caller owns retry policy.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("splice: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
