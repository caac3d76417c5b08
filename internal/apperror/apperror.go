// Package apperror classifies failures that surface at the API boundary.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is the class of an application error.
type Kind int

// Error kinds.
const (
	Internal Kind = iota
	BadRequest
	NotFound
	Conflict
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error carries a kind and a caller-facing message.
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

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of kind k.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Message: msg}
}

// Wrap attaches kind k and a message to err.
func Wrap(k Kind, msg string, err error) error {
	return &Error{Kind: k, Message: msg, Err: err}
}

// BadRequestf formats a bad-request error.
func BadRequestf(format string, args ...any) error {
	return &Error{Kind: BadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf formats a not-found error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Message returns the caller-facing message, hiding details of internal errors.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != Internal {
		return appErr.Message
	}
	return "internal error"
}
