// Package apperr defines the error taxonomy shared by all loyalty services.
// Expected outcomes (validation failures, missing rows, structural conflicts,
// insufficient balance) are returned to the caller for user-facing messaging
// and are never retried; Service errors roll back the unit of work.
package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Validation Kind = iota + 1
	NotFound
	BusinessLogic
	InsufficientBalance
	Service
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case BusinessLogic:
		return "business_logic"
	case InsufficientBalance:
		return "insufficient_balance"
	case Service:
		return "service"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validationf(format string, args ...any) error {
	return &Error{Kind: Validation, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: NotFound, Msg: fmt.Sprintf(format, args...)}
}

func BusinessLogicf(format string, args ...any) error {
	return &Error{Kind: BusinessLogic, Msg: fmt.Sprintf(format, args...)}
}

func InsufficientBalancef(format string, args ...any) error {
	return &Error{Kind: InsufficientBalance, Msg: fmt.Sprintf(format, args...)}
}

// Wrap marks an unexpected failure (lock timeout, deadlock, connectivity) as a
// Service error while keeping the cause available via errors.Unwrap.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Service, Msg: msg, Err: err}
}

// KindOf returns the taxonomy kind of err, or Service for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Service
}

func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
