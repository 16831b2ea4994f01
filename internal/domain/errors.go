package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks structurally or semantically invalid input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a lookup for a record that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks a status transition that is not legal from the
	// record's current status.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrConflict marks a write that lost against concurrent state.
	ErrConflict = errors.New("conflict")
)

// ValidationReason classifies why an inbound request was rejected.
type ValidationReason string

const (
	ValidationInvalidRecipient ValidationReason = "INVALID_RECIPIENT"
	ValidationInvalidType      ValidationReason = "INVALID_TYPE"
	ValidationMissingSubject   ValidationReason = "MISSING_SUBJECT"
)

// ValidationError carries the rejection reason for an inbound request. It
// matches ErrValidation via errors.Is.
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
