package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the id does not exist or is owned by someone else.
	ErrNotFound = errors.New("application not found")

	// ErrInvalidTransition means an automated merge tried to move a status
	// backward. Batch callers absorb it as a no-op.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConflictOnCreate means a concurrent writer inserted the same draft
	// first. The resolver recovers by retrying as an update.
	ErrConflictOnCreate = errors.New("duplicate create detected")

	// ErrSyncInProgress means another sync is already running for the owner.
	ErrSyncInProgress = errors.New("a sync is already running for this user")
)

// ValidationError marks a malformed batch item. Inside a batch it is
// counted as skipped, never aborts; on the direct CRUD path it surfaces as
// a 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
