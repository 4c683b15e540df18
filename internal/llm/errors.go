package llm

import (
	"errors"
	"fmt"
)

// ModelError represents a failed model call: transport errors, timeouts,
// quota exhaustion, or a response that violates the expected schema.
// A ModelError is always terminal for the job or phase that triggered it;
// the core never retries on its own.
type ModelError struct {
	Op      string // call type, e.g. "text-entry", "chat-analyze"
	Message string
	Cause   error
}

func (e *ModelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("model call %s failed: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("model call %s failed: %s", e.Op, e.Message)
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// IsModelError reports whether err is (or wraps) a ModelError.
func IsModelError(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}
