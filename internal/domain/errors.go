package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies business-rule failures. None of them are retried by
// the engine; they are surfaced to the caller as structured errors.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindConflict          ErrorKind = "conflict"
	KindNotFound          ErrorKind = "not_found"
	KindConstraint        ErrorKind = "constraint"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
)

// Sentinels for errors.Is checks. Any *Error of the same kind matches.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConstraint        = &Error{Kind: KindConstraint}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
)

type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

func ValidationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func ConflictError(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func ConstraintError(format string, args ...any) error {
	return &Error{Kind: KindConstraint, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError is returned when a payout exceeds the affiliate's
// available balance. Available is reported back to the caller.
type InsufficientFundsError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %s, available %s",
		e.Requested.StringFixed(MoneyScale), e.Available.StringFixed(MoneyScale))
}

func (e *InsufficientFundsError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindInsufficientFunds && t.Message == ""
}

// KindOf reports the kind of a business error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var funds *InsufficientFundsError
	if errors.As(err, &funds) {
		return KindInsufficientFunds
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
