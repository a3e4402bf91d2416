// Package errors defines the engine error taxonomy and the handling behavior
// attached to each kind: validation failures fail fast, worker failures retry
// with backoff, open circuits reject admission.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError indicates a malformed task or goal definition.
// It fails fast and is never retried.
type ValidationError struct {
	// Field is the offending attribute, if known.
	Field string

	// Reason is a human-readable explanation.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// DependencyTimeoutError indicates a dependency chain did not resolve in time.
// The dependent unit fails without its worker being invoked.
type DependencyTimeoutError struct {
	// UnitID is the waiting unit.
	UnitID string

	// Waited is how long the unit waited before giving up.
	Waited time.Duration

	// Unresolved lists the dependency IDs that never completed.
	Unresolved []string
}

// Error implements the error interface.
func (e *DependencyTimeoutError) Error() string {
	return fmt.Sprintf("dependency timeout: unit %s waited %s for %d unresolved dependencies",
		e.UnitID, e.Waited.Round(time.Millisecond), len(e.Unresolved))
}

// WorkerExecutionError wraps a failure from a worker capability invocation.
type WorkerExecutionError struct {
	// WorkerID is the worker that failed.
	WorkerID string

	// TaskID is the unit being executed.
	TaskID string

	// Attempts is the number of invocation attempts made so far.
	Attempts int

	// Retryable indicates whether the failure may resolve on retry.
	Retryable bool

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *WorkerExecutionError) Error() string {
	return fmt.Sprintf("worker %s failed task %s after %d attempt(s): %v",
		e.WorkerID, e.TaskID, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *WorkerExecutionError) Unwrap() error {
	return e.Err
}

// ResourceExhaustionError indicates a concurrency or rate limit was exceeded.
// It causes admission deferral, never task failure.
type ResourceExhaustionError struct {
	// Resource names the exhausted resource.
	Resource string

	// Limit is the configured limit that was hit.
	Limit int
}

// Error implements the error interface.
func (e *ResourceExhaustionError) Error() string {
	return fmt.Sprintf("resource exhausted: %s (limit %d)", e.Resource, e.Limit)
}

// CircuitOpenError indicates the target worker's breaker is open.
// The task is queued or rejected per the caller's choice, never dropped.
type CircuitOpenError struct {
	// WorkerID is the worker whose circuit is open.
	WorkerID string

	// Since is when the circuit opened.
	Since time.Time
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for worker %s since %s", e.WorkerID, e.Since.Format(time.RFC3339))
}

// IsRetryable reports whether an error may resolve with another attempt.
// Explicit marks (MarkRetryable/MarkPermanent) win. Validation,
// dependency-timeout, and circuit-open errors never retry. Worker errors
// carry their own retryability; anything else falls back to keyword
// classification of the error text.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if retryable, marked := retryabilityMark(err); marked {
		return retryable
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}

	var dte *DependencyTimeoutError
	if errors.As(err, &dte) {
		return false
	}

	var coe *CircuitOpenError
	if errors.As(err, &coe) {
		return false
	}

	var wee *WorkerExecutionError
	if errors.As(err, &wee) {
		return wee.Retryable
	}

	return IsTransient(err)
}
