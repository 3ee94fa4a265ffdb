package domain

import (
	"errors"
	"fmt"
)

// ValidationError marks a structurally invalid opportunity. It is the only per-item failure
// surfaced to callers; the opportunity is skipped and the rest of a batch continues.
type ValidationError struct {
	OpportunityID string
	Field         string
	Reason        string
}

func (e *ValidationError) Error() string {
	if e.OpportunityID == "" {
		return fmt.Sprintf("invalid opportunity: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid opportunity %s: %s %s", e.OpportunityID, e.Field, e.Reason)
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
