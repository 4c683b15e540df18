package card

import "fmt"

// ValidationError reports a merge-time shape mismatch. The offending value is
// rejected and skipped; the rest of the merge proceeds.
type ValidationError struct {
	Dimension string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Dimension, e.Message)
}
