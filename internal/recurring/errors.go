package recurring

import (
	"fmt"

	"nightsched/internal/model"
)

// ValidationError reports a template whose recurrence config cannot be used.
type ValidationError struct {
	TemplateID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("recurring template %q: %s", e.TemplateID, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return model.ErrInvalid
}

// PreconditionError means Generate was called on something that is not a
// template. It signals an integration bug in the caller.
type PreconditionError struct {
	EventID string
	Reason  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("recurring: event %q: %s", e.EventID, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return model.ErrPrecondition
}
