package engine

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned when the event source yields an unseen event
// whose id is greater than the previous one. Pages must be newest-first.
var ErrOutOfOrder = errors.New("events out of order")

// RunError is a failed repository scan.
//
// A RunError never advances the repository's watermark; committed facts
// are kept and the next run picks up the remaining events.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Repository is the full name of the affected repository.
	Repository string

	// Err is the underlying cause.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeScanFailed indicates a transient collaborator failure.
	ErrCodeScanFailed RunErrorCode = "SCAN_FAILED"

	// ErrCodeOutOfOrder indicates the source broke the newest-first contract.
	ErrCodeOutOfOrder RunErrorCode = "OUT_OF_ORDER"

	// ErrCodeRepositoryMissing indicates the repository no longer exists.
	ErrCodeRepositoryMissing RunErrorCode = "REPOSITORY_MISSING"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Repository != "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Repository, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsOutOfOrder returns true if the error is an ordering violation.
// Uses errors.As to handle wrapped errors.
func IsOutOfOrder(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeOutOfOrder
	}
	return errors.Is(err, ErrOutOfOrder)
}

// IsRepositoryMissing returns true if the repository was not found.
func IsRepositoryMissing(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRepositoryMissing
	}
	return false
}
