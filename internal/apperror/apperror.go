// Package apperror defines the single tagged error type used across the
// publishing pipeline. Every failure is classified into one Kind; workers
// decide between retry and acknowledgement by kind alone.
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindExternalAuth
	KindReauthRequired
	KindTransientPlatform
	KindTerminalPlatform
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExternalAuth:
		return "external_auth"
	case KindReauthRequired:
		return "reauth_required"
	case KindTransientPlatform:
		return "transient_platform"
	case KindTerminalPlatform:
		return "terminal_platform"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewField(kind Kind, message, field string) *Error {
	return &Error{Kind: kind, Message: message, Field: field}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindUnknown when err carries no tag.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether err should be surfaced to the queue for
// redelivery. Untagged errors are treated as transient so an unexpected
// failure (network blip, database hiccup) gets another attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransientPlatform, KindUnknown:
		return true
	default:
		return false
	}
}
