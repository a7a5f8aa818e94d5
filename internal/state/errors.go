package state

import "fmt"

// ConcurrentWriteError indicates two reducer inputs wrote the same
// single-writer field in the same merge. This is a design/programming
// error in a node, not a runtime condition to recover from (spec.md §7).
type ConcurrentWriteError struct {
	Field string
}

func (e *ConcurrentWriteError) Error() string {
	return fmt.Sprintf("concurrent write to single-writer field %q", e.Field)
}
