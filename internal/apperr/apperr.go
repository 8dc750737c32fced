// Package apperr defines the error kinds returned by the core services.
//
// Every failure a caller can act on is an *Error carrying a Kind. Compare
// with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apperr.ErrForbidden) { ... }
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalidTransition
	KindInsufficientBalance
	KindRewardInactive
	KindUnavailable
	KindInvalid
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindUnauthenticated:     "unauthenticated",
	KindForbidden:           "forbidden",
	KindNotFound:            "not_found",
	KindInvalidTransition:   "invalid_transition",
	KindInsufficientBalance: "insufficient_balance",
	KindRewardInactive:      "reward_inactive",
	KindUnavailable:         "unavailable",
	KindInvalid:             "invalid",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Sentinels for errors.Is. They carry no message of their own.
var (
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrRewardInactive      = &Error{Kind: KindRewardInactive}
	ErrUnavailable         = &Error{Kind: KindUnavailable}
	ErrInvalid             = &Error{Kind: KindInvalid}
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so wrapped errors compare equal
// to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) error {
	return newf(KindUnauthenticated, format, args...)
}

func Forbidden(format string, args ...any) error { return newf(KindForbidden, format, args...) }

func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

func InvalidTransition(format string, args ...any) error {
	return newf(KindInvalidTransition, format, args...)
}

func InsufficientBalance(format string, args ...any) error {
	return newf(KindInsufficientBalance, format, args...)
}

func RewardInactive(format string, args ...any) error {
	return newf(KindRewardInactive, format, args...)
}

func Invalid(format string, args ...any) error { return newf(KindInvalid, format, args...) }

// Unavailable wraps a persistence failure. Errors that already carry a kind
// pass through untouched so domain failures raised inside a transaction
// keep their meaning.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindUnavailable, Msg: op, Err: err}
}

// KindOf reports the kind of err, KindUnknown for foreign errors.
// Context cancellation and deadlines count as Unavailable.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	return KindUnknown
}
