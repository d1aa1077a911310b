// Package apperr holds the error taxonomy shared by the engine, the storage
// layer and the transports. Business outcomes carry a Kind (what class of
// failure) and a Reason (which rule failed), so callers can tell "retry"
// apart from "permanently invalid" without string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidState
	KindInsufficientResource
	KindPolicyViolation
	KindInvalidInput
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindInsufficientResource:
		return "INSUFFICIENT_RESOURCE"
	case KindPolicyViolation:
		return "POLICY_VIOLATION"
	case KindInvalidInput:
		return "INVALID_INPUT"
	case KindTransient:
		return "TRANSIENT_STORAGE_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Error is a typed failure. Two errors match under errors.Is when their
// Reason is equal, so a sentinel specialised with Withf still matches it.
type Error struct {
	Kind   Kind
	Reason string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// Withf returns a copy of e with a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Msg = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func newErr(kind Kind, reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, Msg: msg}
}

var (
	ErrOrderNotFound     = newErr(KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrOrderFinalized    = newErr(KindInvalidState, "ORDER_FINALIZED", "order already finalized")
	ErrUnknownOutcome    = newErr(KindPolicyViolation, "UNKNOWN_OUTCOME", "unrecognized payment outcome")
	ErrInsufficientStock = newErr(KindInsufficientResource, "INSUFFICIENT_STOCK", "insufficient stock")

	ErrClassNotFound   = newErr(KindNotFound, "CLASS_NOT_FOUND", "class not found")
	ErrNoCapacity      = newErr(KindInsufficientResource, "NO_CAPACITY", "class has no available places")
	ErrAlreadyReserved = newErr(KindInvalidState, "ALREADY_RESERVED", "class already reserved")
	ErrNoCredit        = newErr(KindInsufficientResource, "NO_CREDIT", "no class credit available")
	ErrNoReservation   = newErr(KindNotFound, "NO_RESERVATION", "no active reservation")
	ErrTooLateToCancel = newErr(KindPolicyViolation, "TOO_LATE_TO_CANCEL", "reservation can no longer be canceled")

	ErrProductNotFound = newErr(KindNotFound, "PRODUCT_NOT_FOUND", "product not found")
	ErrPackageNotFound = newErr(KindNotFound, "PACKAGE_NOT_FOUND", "package definition not found")
	ErrNestedPackage   = newErr(KindPolicyViolation, "NESTED_PACKAGE", "package cannot contain this category")
	ErrAddressRequired = newErr(KindInvalidInput, "ADDRESS_REQUIRED", "a shipping address is required")
	ErrInvalidInput    = newErr(KindInvalidInput, "INVALID_INPUT", "invalid input")

	ErrTransient = newErr(KindTransient, "TRANSIENT_STORAGE_FAILURE", "temporary storage failure, retry")
)

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf reports the Reason of the first *Error in err's chain, or "".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

func IsRetryable(err error) bool { return KindOf(err) == KindTransient }

// Transient wraps cause as a retryable storage failure.
func Transient(cause error) error {
	if cause == nil {
		return nil
	}
	return ErrTransient.Wrap(cause)
}
