package moderation

import (
	"context"
	"errors"
	"fmt"
)

// InputValidationError is returned when a request fails its input schema.
// It is raised before any model call is made.
type InputValidationError struct {
	Flow       string
	Field      string
	Constraint string
	Err        error
}

func (e *InputValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input for %s: %v", e.Flow, e.Err)
	}
	return fmt.Sprintf("invalid input for %s: field %s violates %s", e.Flow, e.Field, e.Constraint)
}

func (e *InputValidationError) Unwrap() error {
	return e.Err
}

// TransportError is returned when the model provider could not be reached,
// failed, or did not answer before the deadline.
type TransportError struct {
	Flow     string
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("model call for %s via %s failed: %v", e.Flow, e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call failed because its deadline passed.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// ModelOutputError is returned when the model reply does not match the
// flow's declared output shape.
type ModelOutputError struct {
	Flow   string
	Reason string
	// Raw is the reply as received, for logging.
	Raw string
	Err error
}

func (e *ModelOutputError) Error() string {
	return fmt.Sprintf("model output for %s is invalid: %s", e.Flow, e.Reason)
}

func (e *ModelOutputError) Unwrap() error {
	return e.Err
}
