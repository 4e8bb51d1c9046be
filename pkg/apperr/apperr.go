// Package apperr defines the typed errors raised by registry services.
// The HTTP layer maps each Kind to a status code; services never speak HTTP.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindUnauthenticated
	KindForbidden
	KindValidation
	KindBadRequest
	KindConflict
	KindPayloadTooLarge
	KindUnsupportedMedia
	KindLocked
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation_failed"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindUnsupportedMedia:
		return "unsupported_media_type"
	case KindLocked:
		return "locked"
	case KindUnavailable:
		return "dependency_unavailable"
	default:
		return "unknown"
	}
}

// Error is a typed application error. Details carries per-field validation
// messages when Kind is KindValidation.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound reports a missing entity. Cross-org access reports the same
// message, so callers cannot probe for existence.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func Unauthenticated(format string, args ...any) *Error {
	return New(KindUnauthenticated, format, args...)
}

// Validation reports a payload validation failure with optional per-field
// details. Renders as 422.
func Validation(msg string, details map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

// BadRequest reports a request the server could not parse at all, or a
// decision-event that fails its wire schema. Renders as 400, unlike domain
// validation which renders as 422.
func BadRequest(msg string, details map[string]string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Details: details}
}

// KindOf extracts the Kind from an error chain. Unwrapped errors report
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
