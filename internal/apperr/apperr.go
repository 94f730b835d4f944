// Package apperr defines the error categories returned by the case services
// and their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// Kind is an error category.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindForbidden
	KindNotFound
	KindConflict
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvariant:
		return "invariant"
	default:
		return "internal"
	}
}

// Error is a categorized domain error.
type Error struct {
	Kind    Kind
	Message string
	// Fields carries per-field messages for validation errors.
	Fields map[string][]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind, so errors.Is(err, apperr.ErrConflict) works for any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrInvariant  = &Error{Kind: KindInvariant}
)

func Validation(msg string, fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Field builds a validation error for a single field.
func Field(field, msg string) *Error {
	return Validation("Validation failed", map[string][]string{field: {msg}})
}

func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

// Invariant wraps a failure that should never happen once inputs are valid,
// e.g. the audit insert failing after a state change.
func Invariant(msg string, err error) *Error {
	return &Error{Kind: KindInvariant, Message: msg, Err: err}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the category of err, translating storage errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return KindNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return KindConflict
	}
	return KindInternal
}

// FromDB translates a storage error; what names the entity for not-found messages.
func FromDB(err error, what string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Message: fmt.Sprintf("%s already exists", what), Err: err}
	}
	return Internal("database error", err)
}

// HTTPStatus maps an error to its status code and stable code string.
func HTTPStatus(err error) (int, string) {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case KindForbidden:
		return http.StatusForbidden, "FORBIDDEN"
	case KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case KindConflict:
		return http.StatusConflict, "CONFLICT"
	case KindInvariant:
		return http.StatusInternalServerError, "INVARIANT_VIOLATION"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
	}
}

// PublicMessage is the message safe to show to callers.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Kind != KindInvariant {
		return e.Message
	}
	return "Internal Server Error"
}
