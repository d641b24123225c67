// Package apperr holds the domain error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInvalidTransition  Kind = "invalid_transition"
	KindIncompleteEstimate Kind = "incomplete_estimate"
	KindUnauthorized       Kind = "unauthorized"
	KindStaleState         Kind = "stale_state"
	KindNotConvertible     Kind = "not_convertible"
	KindImmutableState     Kind = "immutable_state"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
)

// Error is a domain error. Message is the detail for logs and API clients;
// the kind decides the HTTP status and the headline shown to users.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrIncompleteEstimate = &Error{Kind: KindIncompleteEstimate}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrStaleState         = &Error{Kind: KindStaleState}
	ErrNotConvertible     = &Error{Kind: KindNotConvertible}
	ErrImmutableState     = &Error{Kind: KindImmutableState}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
)

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return New(KindInvalidTransition, format, args...)
}

func IncompleteEstimate(format string, args ...interface{}) *Error {
	return New(KindIncompleteEstimate, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return New(KindUnauthorized, format, args...)
}

func StaleState(format string, args ...interface{}) *Error {
	return New(KindStaleState, format, args...)
}

func NotConvertible(format string, args ...interface{}) *Error {
	return New(KindNotConvertible, format, args...)
}

func ImmutableState(format string, args ...interface{}) *Error {
	return New(KindImmutableState, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func InvalidInput(format string, args ...interface{}) *Error {
	return New(KindInvalidInput, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput, KindIncompleteEstimate:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindStaleState, KindInvalidTransition, KindNotConvertible, KindImmutableState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var headlines = map[Kind]string{
	KindInvalidTransition:  "This action is not allowed in the record's current status.",
	KindIncompleteEstimate: "Every requested service needs an estimate greater than zero.",
	KindUnauthorized:       "You are not allowed to perform this action.",
	KindStaleState:         "This record was changed by someone else. Refresh and try again.",
	KindNotConvertible:     "Only accepted quotes and completed work orders can be converted.",
	KindImmutableState:     "This record can no longer be edited.",
	KindNotFound:           "The record does not exist or was deleted.",
	KindInvalidInput:       "The request is invalid.",
}

// UserMessage is the text shown to end users for err. Infrastructure errors
// get a generic line so internals never leak.
func UserMessage(err error) string {
	kind := KindOf(err)
	if kind == "" {
		return "Something went wrong. Please try again."
	}
	var e *Error
	errors.As(err, &e)
	if e.Message == "" {
		return headlines[kind]
	}
	return headlines[kind] + " " + e.Message
}
