// Package errors provides error handling for artificer.
//
// This package re-exports github.com/cockroachdb/errors (stack traces, wrapping,
// hints, details) and adds the repository error taxonomy in kinds.go.
//
// Usage:
//
//	// Wrap with context
//	if err := store.Get(ctx, id); err != nil {
//	    return errors.Wrap(err, "failed to load artifact")
//	}
//
//	// Raise a typed error
//	return errors.NewConflict("derived_create", "derived artifacts are created by derivation only")
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
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
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors, one per error kind.
// Every *Error matches the sentinel of its kind with errors.Is.
var (
	// ErrQuerySyntax indicates malformed query text
	ErrQuerySyntax = New("query syntax error")

	// ErrQueryValidation indicates a well-formed query that names unknown things or is badly bound
	ErrQueryValidation = New("query validation error")

	// ErrConflict indicates a duplicate or an illegal mutation of derived data
	ErrConflict = New("resource conflict")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrConstraint indicates a delete or replace blocked by dependents
	ErrConstraint = New("constraint violation")

	// ErrDerivation indicates a builder failed and the derived generation was discarded
	ErrDerivation = New("derivation failed")

	// ErrRepository indicates a backing-store failure
	ErrRepository = New("repository error")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflictError checks if an error is or wraps ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsConstraintError checks if an error is or wraps ErrConstraint
func IsConstraintError(err error) bool {
	return err != nil && Is(err, ErrConstraint)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
