package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a toolchain failure.
type Kind string

const (
	KindMalformedDefinition   Kind = "malformed_definition"
	KindDefinitionNotFound    Kind = "definition_not_found"
	KindInvalidSpecification  Kind = "invalid_specification"
	KindNameCollision         Kind = "name_collision"
	KindFetchFailure          Kind = "fetch_failure"
	KindClassificationUnknown Kind = "classification_unknown"
	KindConfigNotFound        Kind = "config_not_found"
	KindIO                    Kind = "io"
)

// Error is a classified error carried through the generator and sync tools.
type Error struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	underlying error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg = msg + " (" + e.Details + ")"
	}
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", msg, e.underlying)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.underlying
}

// Is reports whether target is an *Error of the same kind. This lets callers
// match against the sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrMalformedDefinition = &Error{
		Kind:    KindMalformedDefinition,
		Message: "malformed definition",
	}

	ErrDefinitionNotFound = &Error{
		Kind:    KindDefinitionNotFound,
		Message: "definition file not found",
	}

	ErrInvalidSpecification = &Error{
		Kind:    KindInvalidSpecification,
		Message: "invalid specification",
	}

	ErrNameCollision = &Error{
		Kind:    KindNameCollision,
		Message: "operation name collision",
	}

	ErrFetchFailure = &Error{
		Kind:    KindFetchFailure,
		Message: "could not fetch specification",
	}

	ErrClassificationUnknown = &Error{
		Kind:    KindClassificationUnknown,
		Message: "specification changed but could not be classified",
	}

	ErrConfigNotFound = &Error{
		Kind:    KindConfigNotFound,
		Message: "configuration file not found",
	}
)

// New creates a new Error.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with a kind and additional context.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		underlying: err,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details string) *Error {
	return &Error{
		Kind:       e.Kind,
		Message:    e.Message,
		Details:    details,
		underlying: e.underlying,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Exit codes shared by the command-line tools.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitChanged = 2
)

// ExitCode maps an error to a process exit code. nil maps to ExitOK; every
// classified or unclassified failure maps to ExitFailure. ExitChanged is never
// produced from an error: drift is a result, not a failure.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return ExitFailure
}
