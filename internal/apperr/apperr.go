// Package apperr holds error types shared across the billing core.
// Domain packages keep their own sentinel errors; the types here carry
// structured context that handlers surface back to callers.
package apperr

import "fmt"

// ValidationError reports malformed caller input along with the
// offending field so clients can fix the request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
