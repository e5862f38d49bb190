// Package apperr is the typed error taxonomy shared across the orchestrator.
// Every layer wraps lower errors with fmt.Errorf("pkg.Func: %w", err); apperr
// adds a Kind on top of that chain so handlers and the coordinator can decide
// HTTP status and retry behavior without string-matching error text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories named in the orchestrator's error
// handling design.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindNotFound       Kind = "NotFound"
	KindProvider       Kind = "ProviderError"
	KindSchema         Kind = "SchemaError"
	KindTimeout        Kind = "Timeout"
	KindDocumentSkipped Kind = "DocumentSkipped"
	KindFatal          Kind = "Fatal"
)

// Error is a Kind-tagged error. Cause is the wrapped lower-level error, if any.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of err if it (or something it wraps) is an *Error,
// and KindFatal otherwise — an untagged error is treated as unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// Retryable reports whether the error kind is one the caller may retry.
// ValidationError, NotFound, and DocumentSkipped are all terminal; only
// ProviderError and Timeout are transient by nature.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindProvider, KindTimeout:
		return true
	default:
		return false
	}
}

func IsValidation(err error) bool      { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool        { return KindOf(err) == KindNotFound }
func IsDocumentSkipped(err error) bool { return KindOf(err) == KindDocumentSkipped }
