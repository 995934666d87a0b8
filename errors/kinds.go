package errors

import (
	"fmt"
)

// Kind classifies an error for callers of the repository.
type Kind string

const (
	KindUnknown         Kind = "unknown"
	KindQuerySyntax     Kind = "query_syntax"
	KindQueryValidation Kind = "query_validation"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindConstraint      Kind = "constraint"
	KindDerivation      Kind = "derivation"
	KindRepository      Kind = "repository"
)

// Constraint reasons carried as the Code of a KindConstraint error.
const (
	ConstraintRelationship   = "relationship"
	ConstraintCustomProperty = "custom_property"
	ConstraintClassifier     = "classifier"
)

// Repository codes with retry semantics.
const (
	CodeBusy              = "busy"
	CodeRevisionConflict  = "revision_conflict"
	CodeSequencingTimeout = "sequencing_timeout"
	CodeSequencingFailed  = "sequencing_failed"
	CodeStore             = "store"
)

// Error is a classified repository error.
// Code is stable and machine readable; Message is for humans.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Subject   string // offending uuid, relationship name or query token
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Subject != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Subject)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && kindSentinel(e.Kind) == target
}

func kindSentinel(k Kind) error {
	switch k {
	case KindQuerySyntax:
		return ErrQuerySyntax
	case KindQueryValidation:
		return ErrQueryValidation
	case KindConflict:
		return ErrConflict
	case KindNotFound:
		return ErrNotFound
	case KindConstraint:
		return ErrConstraint
	case KindDerivation:
		return ErrDerivation
	case KindRepository:
		return ErrRepository
	}
	return nil
}

func newKind(kind Kind, code, subject, format string, args ...interface{}) error {
	return WithStack(&Error{
		Kind:    kind,
		Code:    code,
		Subject: subject,
		Message: fmt.Sprintf(format, args...),
	})
}

// NewQuerySyntax reports malformed query text at the given token.
func NewQuerySyntax(token, format string, args ...interface{}) error {
	return newKind(KindQuerySyntax, "syntax", token, format, args...)
}

// NewQueryValidation reports an unknown name or a bad parameter binding.
func NewQueryValidation(code, subject, format string, args ...interface{}) error {
	return newKind(KindQueryValidation, code, subject, format, args...)
}

// NewConflict reports a duplicate or an illegal mutation.
func NewConflict(code, subject, format string, args ...interface{}) error {
	return newKind(KindConflict, code, subject, format, args...)
}

// NewNotFound reports an unknown uuid or name.
func NewNotFound(what, subject string) error {
	return newKind(KindNotFound, what, subject, "%s not found", what)
}

// NewConstraint reports a blocked delete or content replace.
// Reason is one of the Constraint* constants; subject is the artifact uuid that was acted on.
func NewConstraint(reason, subject, format string, args ...interface{}) error {
	return newKind(KindConstraint, reason, subject, format, args...)
}

// NewDerivation wraps a builder failure.
func NewDerivation(subject string, cause error) error {
	return WithStack(&Error{
		Kind:    KindDerivation,
		Code:    "builder",
		Subject: subject,
		Message: "derivation aborted",
		cause:   cause,
	})
}

// NewRepository wraps a backing-store failure.
func NewRepository(code string, retryable bool, cause error) error {
	return WithStack(&Error{
		Kind:      KindRepository,
		Code:      code,
		Message:   "repository failure",
		Retryable: retryable,
		cause:     cause,
	})
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Code returns the stable "kind.code" string of err, or "unknown".
func Code(err error) string {
	var e *Error
	if As(err, &e) {
		if e.Code == "" {
			return string(e.Kind)
		}
		return string(e.Kind) + "." + e.Code
	}
	return string(KindUnknown)
}

// IsRetryable reports whether a caller may retry the failed operation.
func IsRetryable(err error) bool {
	var e *Error
	return As(err, &e) && e.Retryable
}
