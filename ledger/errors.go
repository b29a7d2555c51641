/*
errors.go - Error types for the ledger engine

ERROR CATEGORIES:
  1. Validation errors - a required field is missing or out of range.
     Raised before any mutation; nothing is committed.
  2. Session errors - end-of-day without an open session, wrong admin password.
  3. Store errors - unsupported version, empty backup slot. Persistence
     failures themselves are logged by the store, not returned to callers.

  Reference misses (unknown id on update/delete) are NOT errors: the engine
  returns found=false and leaves the document untouched.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrMissingCustomer is returned when a submitted operation names no
	// customer at all (no id, name or phone).
	ErrMissingCustomer = errors.New("operation has no customer")

	// ErrSessionNotOpen is returned when closing a day with no active session.
	ErrSessionNotOpen = errors.New("no open session")

	// ErrUnauthorized is returned when the admin password does not match.
	ErrUnauthorized = errors.New("admin password mismatch")

	// ErrUnsupportedVersion is returned for documents written by a newer build.
	ErrUnsupportedVersion = errors.New("unsupported document version")

	// ErrNoBackup is returned when restoring with an empty backup slot.
	ErrNoBackup = errors.New("no backup available")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the entity and field that failed, so the UI can
// show a field-specific message.
type ValidationError struct {
	Entity string // "customer", "part", "operation", "transaction"
	Field  string // json field name, e.g. "items[0].quantity"
	Reason string // "required", "must_be_positive", ...
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(entity, field, reason string) *ValidationError {
	return &ValidationError{Entity: entity, Field: field, Reason: reason}
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMissingCustomer) ||
		errors.Is(err, ErrSessionNotOpen) ||
		errors.Is(err, ErrUnauthorized)
}
