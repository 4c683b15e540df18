package dimension

import "fmt"

// ConflictError reports a dimension proposal whose key already exists with a
// different shape. The existing shape always wins; callers treat the
// conflict as success-with-existing and must not apply the proposal.
type ConflictError struct {
	Key      string
	Existing Shape
	Proposed Shape
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("dimension %s already exists with shape %s (proposed %s)", e.Key, e.Existing, e.Proposed)
}
