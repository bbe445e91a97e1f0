package intake

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationRejected is wrapped by every ValidationError.
	ErrValidationRejected = errors.New("validation rejected")
	// ErrNoActiveSession marks a message from a user without a session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionComplete marks a turn against a session with nothing left to collect.
	ErrSessionComplete = errors.New("session already complete")
)

// ValidationError describes rejected input for a field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DeliveryError reports that a finalized submission could not be handed to
// the administrator. The session is already gone when this is returned.
type DeliveryError struct {
	SubmissionID string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver submission %s: %v", e.SubmissionID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
