// Package bberrors defines the exhaustive error-kind vocabulary bundlebase
// surfaces to callers (spec §7) and a single error type that carries it.
package bberrors

import (
	"fmt"
	"strings"
)

// Kind is one of the exhaustive error kinds from spec §7.
type Kind string

const (
	NotFoundKind               Kind = "NotFound"
	BundleAlreadyExistsKind    Kind = "BundleAlreadyExists"
	ConcurrentWriteConflictKind Kind = "ConcurrentWriteConflict"
	SchemaConflictKind         Kind = "SchemaConflict"
	ColumnNotFoundKind         Kind = "ColumnNotFound"
	IndexNotFoundKind          Kind = "IndexNotFound"
	UnsupportedIndexTypeKind   Kind = "UnsupportedIndexType"
	ViewNotFoundKind           Kind = "ViewNotFound"
	ViewAlreadyExistsKind      Kind = "ViewAlreadyExists"
	SourceNotFoundKind         Kind = "SourceNotFound"
	FunctionNotFoundKind       Kind = "FunctionNotFound"
	InvalidUrlKind             Kind = "InvalidUrl"
	DecodeErrorKind            Kind = "DecodeError"
	PlanErrorKind              Kind = "PlanError"
	ExecutionErrorKind         Kind = "ExecutionError"
	ConfigErrorKind            Kind = "ConfigError"
	AuthDeniedKind             Kind = "AuthDenied"
	IoKind                     Kind = "Io"
	TimeoutKind                Kind = "Timeout"
	CanceledKind               Kind = "Canceled"
)

// Error is the error type returned across the bundlebase API surface.
// Alternatives, when non-empty, lists the available names the caller
// could have meant — the "available alternatives" contract of spec §7.
type Error struct {
	Kind         Kind
	Message      string
	Alternatives []string
	Wrapped      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Alternatives) > 0 {
		b.WriteString(" (available: ")
		b.WriteString(strings.Join(e.Alternatives, ", "))
		b.WriteString(")")
	}
	if e.Wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.Wrapped.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	for err != nil {
		if be, ok := err.(*Error); ok {
			return be.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// New builds a plain *Error with the given kind and formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that wraps an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: cause}
}

// WithAlternatives attaches the list of valid names the caller could have
// meant, e.g. the set of view names when a requested view is missing.
func WithAlternatives(kind Kind, message string, alternatives []string) *Error {
	return &Error{Kind: kind, Message: message, Alternatives: alternatives}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(NotFoundKind, format, args...)
}

func ViewNotFound(name string, known []string) *Error {
	return WithAlternatives(ViewNotFoundKind, fmt.Sprintf("no view named %q", name), known)
}

func ColumnNotFound(name string, known []string) *Error {
	return WithAlternatives(ColumnNotFoundKind, fmt.Sprintf("no column named %q", name), known)
}

func IndexNotFound(column string, known []string) *Error {
	return WithAlternatives(IndexNotFoundKind, fmt.Sprintf("no index on column %q", column), known)
}

func SourceNotFound(id string, known []string) *Error {
	return WithAlternatives(SourceNotFoundKind, fmt.Sprintf("no source %q", id), known)
}

func FunctionNotFound(name string, known []string) *Error {
	return WithAlternatives(FunctionNotFoundKind, fmt.Sprintf("no function named %q", name), known)
}
