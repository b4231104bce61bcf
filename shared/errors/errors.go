package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures of the read-state engine.
type Kind string

const (
	KindInvalidIdentifier Kind = "invalid_identifier"
	KindNotFound          Kind = "not_found"
	KindLockedResource    Kind = "locked_resource"
	KindTransient         Kind = "transient"
)

// Sentinels for errors.Is checks against any *Error of the same kind.
var (
	ErrInvalidIdentifier = &Error{Kind: KindInvalidIdentifier, Message: "invalid identifier"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrLockedResource    = &Error{Kind: KindLockedResource, Message: "resource is locked"}
	ErrTransient         = &Error{Kind: KindTransient, Message: "transient storage failure"}
)

// Error carries a Kind, a caller-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func InvalidIdentifier(message string) error {
	return &Error{Kind: KindInvalidIdentifier, Message: message}
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func LockedResource(message string) error {
	return &Error{Kind: KindLockedResource, Message: message}
}

// Transient wraps a storage failure. The core never retries these.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindTransient, Message: op, Err: err}
}

// KindOf returns the Kind of err, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusCode maps an error to the HTTP status a transport layer should use.
// default error is internal service error
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindInvalidIdentifier:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindLockedResource:
		return http.StatusForbidden
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Check if err is instance of T for custom error types
func Is[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
