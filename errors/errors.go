// Package errors provides error handling for printfarm.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check domain errors
//	if errors.Is(err, errors.ErrQuotaExceeded) {
//	    // handle quota rejection
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Domain sentinel errors for the scheduling core.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested job, printer, or preset does not exist
	ErrNotFound = New("not found")

	// ErrInvalidTransition indicates a job status transition that the
	// lifecycle table does not permit (e.g. completed -> printing)
	ErrInvalidTransition = New("invalid transition")

	// ErrConflict indicates the caller lost a per-entity race; the operation
	// is safe to retry against the fresh state
	ErrConflict = New("conflict")

	// ErrQuotaExceeded indicates a quota reservation was rejected; use
	// quota.ExceededDimension to recover which dimension tripped
	ErrQuotaExceeded = New("quota exceeded")

	// ErrInvalidReorder indicates a queue reorder that is not a permutation
	// of the current unassigned job set
	ErrInvalidReorder = New("invalid reorder")

	// ErrDispatchFailed indicates a dispatch stage failure; use
	// dispatch.FailedStage to recover which stage failed
	ErrDispatchFailed = New("dispatch failed")

	// ErrAuthorizationDenied indicates the principal may not perform the
	// requested approval or override action
	ErrAuthorizationDenied = New("authorization denied")
)

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflict checks if an error is or wraps ErrConflict
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsInvalidTransition checks if an error is or wraps ErrInvalidTransition
func IsInvalidTransition(err error) bool {
	return err != nil && Is(err, ErrInvalidTransition)
}

// NewNotFound creates a not-found error with a formatted message
func NewNotFound(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidTransition creates an invalid-transition error naming both states
func NewInvalidTransition(from, to string) error {
	return Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
}
