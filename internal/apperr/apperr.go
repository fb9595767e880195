// Package apperr is the error taxonomy shared by the storage layer, the
// authorization gate and the HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Unauthenticated
	NotMember
	InsufficientRole
	NotFound
	Conflict
	Transient
	Invalid
	Protected
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case NotMember:
		return "not_member"
	case InsufficientRole:
		return "insufficient_role"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Transient:
		return "transient"
	case Invalid:
		return "invalid"
	case Protected:
		return "protected"
	}
	return "internal"
}

// Denial reasons reported by the authorization gate.
const (
	ReasonUnauthenticated  = "UNAUTHENTICATED"
	ReasonNotMember        = "NOT_MEMBER"
	ReasonInsufficientRole = "INSUFFICIENT_ROLE"
	ReasonInvalidMember    = "INVALID_MEMBER"
	ReasonReservedChannel  = "RESERVED_CHANNEL"
)

type Error struct {
	Kind   Kind
	Reason string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg = e.Reason
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Deny(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// KindOf returns the kind of the first *Error in err's chain. Errors that
// didn't pass through this package are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsDenial reports whether err is one of the authorization denials, which are
// never retried.
func IsDenial(err error) bool {
	switch KindOf(err) {
	case Unauthenticated, NotMember, InsufficientRole:
		return err != nil
	}
	return false
}

// HTTPStatus maps a kind to the status code the API answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case NotMember, InsufficientRole:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Invalid, Protected:
		return http.StatusBadRequest
	case Transient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text safe to show a client. Internal errors never
// expose their cause.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == Internal {
		return "Internal Error"
	}
	switch e.Kind {
	case Transient:
		return "Service temporarily unavailable"
	case NotFound:
		return "Not found"
	}
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}
