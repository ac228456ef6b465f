package http1

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies request failures. Each kind maps to exactly one status code.
type ErrorKind int

const (
	// KindIOFailure covers filesystem and socket failures, and any error
	// that carries no kind of its own.
	KindIOFailure ErrorKind = iota
	KindMalformedRequest
	KindForbidden
	KindNotFound
	KindRangeNotSatisfiable
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedRequest:
		return "MalformedRequest"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindRangeNotSatisfiable:
		return "RangeNotSatisfiable"
	default:
		return "IOFailure"
	}
}

// StatusCode returns the HTTP status the kind is answered with.
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindMalformedRequest:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified request failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error

	// Headers are extra response fields the error response must carry,
	// such as Content-Range on a 416.
	Headers []HeaderField
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match on kind, so callers can test against the
// Err* sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrMalformedRequest    = &Error{Kind: KindMalformedRequest}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrRangeNotSatisfiable = &Error{Kind: KindRangeNotSatisfiable}
	ErrIOFailure           = &Error{Kind: KindIOFailure}
)

// NewError returns an Error of the given kind.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies err under kind.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindIOFailure when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIOFailure
}

// StatusOf maps err to its response status.
func StatusOf(err error) int {
	return KindOf(err).StatusCode()
}

// ExtraHeaders returns the response fields attached to err, if any.
func ExtraHeaders(err error) []HeaderField {
	var e *Error
	if errors.As(err, &e) {
		return e.Headers
	}
	return nil
}
