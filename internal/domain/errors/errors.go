// Package errors defines domain-specific error types.
// Using typed errors (instead of strings) allows clients to handle specific cases.
//
// Taxonomy:
// - ValidationError: business-rule or input violation, never retried
// - not found: ErrEntityNotFound wrapped with context
// - ConflictError / ConcurrencyError: duplicate settlement or version collision
// - PersistenceError: storage layer unavailable
//
// Pattern: Sentinel Errors + Custom Error Types
package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors for domain validation
var (
	// Entity errors
	ErrInvalidEntityID = errors.New("invalid entity ID")
	ErrEntityNotFound  = errors.New("entity not found")

	// Wallet errors
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrTransactionLimitExceeded = errors.New("transaction limit exceeded")
	ErrNonPositiveAmount        = errors.New("amount must be greater than zero")
	ErrCurrencyMismatch         = errors.New("currency does not match wallet currency")
	ErrEventOutOfOrder          = errors.New("event version out of order")

	// Payment errors
	ErrPaymentAlreadySettled = errors.New("payment already cancelled or refunded")
	ErrBlankReason           = errors.New("reason must not be blank")

	// Event store errors
	ErrVersionConflict  = errors.New("aggregate version conflict")
	ErrUnknownEventType = errors.New("unknown event type")
)

// ValidationError represents validation failures with field-level details.
// Err optionally carries the sentinel that classifies the failure.
type ValidationError struct {
	Field   string // Field name that failed validation
	Message string // What went wrong
	Err     error  // Underlying sentinel (e.g. ErrInsufficientBalance)
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// Unwrap exposes the classifying sentinel.
func (e ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error classified by err.
func NewValidationError(field, message string, err error) ValidationError {
	return ValidationError{Field: field, Message: message, Err: err}
}

// ConflictError represents a business-level conflict, e.g. a payment that
// has already reached a terminal state.
type ConflictError struct {
	Resource string // e.g. "Payment"
	ID       string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s [%s]: %s", e.Resource, e.ID, e.Message)
}

// Unwrap returns the classifying sentinel.
func (e *ConflictError) Unwrap() error {
	return e.Err
}

// NewConflictError creates a new conflict error.
func NewConflictError(resource, id, message string, err error) *ConflictError {
	return &ConflictError{
		Resource: resource,
		ID:       id,
		Message:  message,
		Err:      err,
	}
}

// ConcurrencyError represents errors from concurrent access (optimistic locking).
// Returned by the event store when another writer claimed the version first.
type ConcurrencyError struct {
	EntityType      string // e.g., "Wallet"
	EntityID        string // ID of the aggregate
	ExpectedVersion int64
	Message         string
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency error on %s [%s]: %s", e.EntityType, e.EntityID, e.Message)
}

// Unwrap makes errors.Is(err, ErrVersionConflict) work.
func (e *ConcurrencyError) Unwrap() error {
	return ErrVersionConflict
}

// NewConcurrencyError creates a new concurrency error.
func NewConcurrencyError(entityType, entityID string, expectedVersion int64, message string) *ConcurrencyError {
	return &ConcurrencyError{
		EntityType:      entityType,
		EntityID:        entityID,
		ExpectedVersion: expectedVersion,
		Message:         message,
	}
}

// PersistenceError wraps storage failures. The failed operation left no
// partial state behind.
type PersistenceError struct {
	Op  string // e.g. "append event"
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new persistence error.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// Helper functions for common error checking

// IsNotFound checks if an error is an "entity not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var valErr ValidationError
	return errors.As(err, &valErr)
}

// IsConflict checks if an error is a business conflict or a version collision.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce) || IsConcurrencyError(err)
}

// IsConcurrencyError checks if an error is a concurrency error.
func IsConcurrencyError(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}

// IsPersistence checks if an error is a storage failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// Kind values returned by Kind.
const (
	KindValidation  = "validation"
	KindNotFound    = "not_found"
	KindConflict    = "conflict"
	KindPersistence = "persistence"
	KindInternal    = "internal"
)

// Kind classifies err into one of the stable taxonomy names.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidationError(err):
		return KindValidation
	case IsNotFound(err):
		return KindNotFound
	case IsConflict(err):
		return KindConflict
	case IsPersistence(err):
		return KindPersistence
	default:
		return KindInternal
	}
}
