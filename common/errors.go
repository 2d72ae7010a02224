package common

import (
	"errors"
	"fmt"
)

// Kind classifies an error per the taxonomy in spec section 7: transient
// failures are retried, permanent-input failures fail the task outright,
// permission failures are never retried or enqueued, invariant violations
// are logged for manual cleanup, and cancellation is not an error at all.
type Kind string

const (
	KindTransient      Kind = "transient"
	KindPermanentInput Kind = "permanent_input"
	KindPermission     Kind = "permission"
	KindInvariant      Kind = "invariant"
	KindCancelled      Kind = "cancelled"
)

// Error wraps an underlying error with a Kind so the task manager and HTTP
// boundary can decide retry policy and response code without string
// matching.
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

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Transient(msg string, err error) *Error      { return newErr(KindTransient, msg, err) }
func PermanentInput(msg string, err error) *Error  { return newErr(KindPermanentInput, msg, err) }
func PermissionErr(msg string, err error) *Error   { return newErr(KindPermission, msg, err) }
func Invariant(msg string, err error) *Error       { return newErr(KindInvariant, msg, err) }
func Cancelled(msg string) *Error                  { return newErr(KindCancelled, msg, nil) }

// KindOf extracts the Kind of err if it (or something it wraps) is an *Error.
// Unclassified errors default to KindTransient so the task manager's default
// policy is to retry rather than silently drop work.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsRetryable reports whether an error's kind should be retried by the task
// manager's attempt loop.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient:
		return true
	default:
		return false
	}
}

// Sentinel errors used across packages for specific not-found / conflict
// conditions, in the style of auth/errors.go's plain errors.New sentinels.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
)

// Code maps a Kind to the stable error envelope code from spec section 7.
func (k Kind) Code() string {
	switch k {
	case KindPermanentInput:
		return "invalid_request"
	case KindPermission:
		return "forbidden"
	case KindInvariant:
		return "internal"
	case KindCancelled:
		return "cancelled"
	default:
		return "unavailable"
	}
}
