package service

import (
	"fmt"

	"github.com/google/uuid"
)

// Coordinator operations report failures as tagged error values so callers
// can map them to transport codes with errors.As. Panics are reserved for
// truly unexpected faults.

// ValidationError reports a malformed request shape or value. No state was
// mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown or not-owned session, job or asset.
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError reports an action attempted on a terminal session/job, or a
// part/total mismatch. For the mismatch case it carries both counts.
type ConflictError struct {
	Reason        string
	UploadedParts int
	TotalParts    int
}

func (e *ConflictError) Error() string {
	if e.TotalParts > 0 {
		return fmt.Sprintf("%s (uploaded %d of %d parts)", e.Reason, e.UploadedParts, e.TotalParts)
	}
	return e.Reason
}

// StorageError wraps a failed object-store call. Completion storage errors
// are retryable by the caller; abort is best-effort and never retried.
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// TransientProcessingError is a style-processor failure within the retry
// budget; the job goes back on the queue with backoff.
type TransientProcessingError struct {
	Err error
}

func (e *TransientProcessingError) Error() string {
	return fmt.Sprintf("transient processing failure: %v", e.Err)
}

func (e *TransientProcessingError) Unwrap() error {
	return e.Err
}

// PermanentProcessingError means the retry budget is exhausted; the job and
// its owning project stay visibly failed.
type PermanentProcessingError struct {
	Attempts int
	Err      error
}

func (e *PermanentProcessingError) Error() string {
	return fmt.Sprintf("processing failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *PermanentProcessingError) Unwrap() error {
	return e.Err
}

// AuthError reports a missing or invalid credential at the HTTP or real-time
// boundary.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return e.Reason
}
