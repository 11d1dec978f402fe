/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All ledger error types in one place. Every failure mode of Record maps
  to exactly one sentinel, so callers (and the HTTP layer) discriminate
  with errors.Is/errors.As rather than string matching.

ERROR CATEGORIES:
  1. Validation errors - malformed input, never retried
  2. Not-found errors  - dangling staff/item/patient references
  3. Stock errors      - a dispense would drive quantity negative
  4. Conflict errors   - lost-update detected; retry the whole call
  5. Storage errors    - persistence failure, surfaced as-is

Every error is raised before or during the single unit of work and
leaves both the ledger and inventory unchanged.
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
	// ErrValidation is returned for missing or malformed input.
	ErrValidation = errors.New("invalid transaction request")

	// ErrNotFound is returned when a referenced staff member, patient,
	// or inventory item does not exist.
	ErrNotFound = errors.New("referenced record not found")

	// ErrInsufficientStock is returned when a dispense would make an
	// item's quantity negative. Nothing is written.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConcurrencyConflict is returned when concurrent delta
	// application is detected. Callers should retry the whole Record
	// call, not just the delta step.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrStorage wraps persistence-layer failures. Not retried
	// automatically: retrying a non-idempotent write could double-apply
	// a delta.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which field failed and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies the dangling reference.
type NotFoundError struct {
	Kind string // "staff", "patient", "item"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientStockError reports the shortfall on a rejected dispense.
type InsufficientStockError struct {
	ItemID    string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %q: available %d, requested %d",
		e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the request itself
// rather than server state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true for dangling-reference failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if repeating the whole Record call might
// succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
