package storage

import (
	"errors"
	"fmt"

	"github.com/roach88/recstore/internal/ir"
)

// RecordNotFoundError reports a missing or tombstoned record.
type RecordNotFoundError struct {
	ID string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record %q not found", e.ID)
}

// UnicityError reports that a write would duplicate a unique value held by
// another live record. Record is that conflicting record.
type UnicityError struct {
	Field  string
	Record ir.Record
}

func (e *UnicityError) Error() string {
	return fmt.Sprintf("unicity constraint violated on field %q", e.Field)
}

// BackendUnavailableError reports a transient connectivity failure. Callers
// may retry or degrade; the store itself never retries it.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// NewNotFound creates a RecordNotFoundError.
func NewNotFound(id string) *RecordNotFoundError {
	return &RecordNotFoundError{ID: id}
}

// NewUnicityError creates a UnicityError.
func NewUnicityError(field string, conflicting ir.Record) *UnicityError {
	return &UnicityError{Field: field, Record: conflicting}
}

// Unavailable wraps err as a BackendUnavailableError.
func Unavailable(backend string, err error) *BackendUnavailableError {
	return &BackendUnavailableError{Backend: backend, Err: err}
}

// IsNotFound returns true if err is or wraps a RecordNotFoundError.
func IsNotFound(err error) bool {
	var nf *RecordNotFoundError
	return errors.As(err, &nf)
}

// IsUnicity returns true if err is or wraps a UnicityError.
func IsUnicity(err error) bool {
	var ue *UnicityError
	return errors.As(err, &ue)
}

// IsUnavailable returns true if err is or wraps a BackendUnavailableError.
func IsUnavailable(err error) bool {
	var be *BackendUnavailableError
	return errors.As(err, &be)
}
