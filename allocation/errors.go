/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on sentinels with errors.Is and extract detail from the
  structured types with errors.As.

ERROR CATEGORIES:
  1. Validation errors   - malformed input, no state change occurred
  2. Contention errors   - resource momentarily unavailable, retry against
                           fresh state (NotAvailable, CapacityExhausted)
  3. Transition errors   - attempt to leave a terminal state, non-retryable
  4. Conflict errors     - write would create a second ACTIVE device entry
  5. Not-found errors    - referenced entity does not exist

USAGE:
  if errors.Is(err, allocation.ErrCapacityExhausted) {
      // surface as a retryable business condition, not a fault
  }

SEE ALSO:
  - engine.go: Produces contention and transition errors
  - catalog.go: Produces validation errors
*/
package allocation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input (duplicate serial,
	// non-positive seat count, bad date bounds). No state change occurs.
	ErrValidation = errors.New("validation failed")

	// ErrNotAvailable is returned when a device is not AVAILABLE at the
	// moment of assignment, including when a concurrent caller claimed it.
	ErrNotAvailable = errors.New("device not available")

	// ErrCapacityExhausted is returned when a pool has no free seats at the
	// atomic decrement step, even if a seat was free at an earlier read.
	ErrCapacityExhausted = errors.New("pool capacity exhausted")

	// ErrInvalidTransition is returned for attempts to move an entity out of
	// a terminal state or skip a required intermediate state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConflict is returned when a write would create a second ACTIVE
	// assignment for a device.
	ErrConflict = errors.New("conflicting active assignment")

	// ErrDuplicateIdempotencyKey is returned when an assignment with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDeviceNotFound is returned when a referenced device doesn't exist.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrPoolNotFound is returned when a referenced pool doesn't exist.
	ErrPoolNotFound = errors.New("license pool not found")

	// ErrAssignmentNotFound is returned when a referenced assignment doesn't exist.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrRequestNotFound is returned when a referenced request doesn't exist.
	ErrRequestNotFound = errors.New("request not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotAvailableError reports the status that blocked a device assignment.
type NotAvailableError struct {
	DeviceID DeviceID
	Status   DeviceStatus
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("device %s not available: status is %s", e.DeviceID, e.Status)
}

func (e *NotAvailableError) Unwrap() error { return ErrNotAvailable }

// CapacityExhaustedError reports a pool with no free seats.
type CapacityExhaustedError struct {
	PoolID     PoolID
	TotalSeats int
}

func (e *CapacityExhaustedError) Error() string {
	return fmt.Sprintf("pool %s exhausted: all %d seats assigned", e.PoolID, e.TotalSeats)
}

func (e *CapacityExhaustedError) Unwrap() error { return ErrCapacityExhausted }

// InvalidTransitionError reports a rejected state transition.
type InvalidTransitionError struct {
	Entity string // "device", "assignment", "request"
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s %s: %s -> %s", e.Entity, e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ConflictError reports an existing ACTIVE assignment blocking a write.
type ConflictError struct {
	DeviceID   DeviceID
	ExistingID AssignmentID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("device %s already has active assignment %s", e.DeviceID, e.ExistingID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error is legitimate contention that might
// succeed on retry against fresh state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotAvailable) ||
		errors.Is(err, ErrCapacityExhausted)
}

// IsClientError returns true if the error is due to invalid client input or
// a non-retryable business rule violation.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrPoolNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}
