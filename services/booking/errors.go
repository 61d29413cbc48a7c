package booking

import (
	"errors"
	"fmt"

	reservationRepo "staybook/database/repository/reservation"
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindAuthorization ErrorKind = "authorization"
	KindConflict      ErrorKind = "conflict"
	KindPayment       ErrorKind = "payment"
	KindStorage       ErrorKind = "storage"
)

// Error is the single error type surfaced by reservation operations.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NewNotFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func NewAuthorizationError(msg string) error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func NewConflictError(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func NewPaymentError(msg string, err error) error {
	return &Error{Kind: KindPayment, Message: msg, Err: err}
}

func NewStorageError(msg string, err error) error {
	return &Error{Kind: KindStorage, Message: msg, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a booking error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// storageErr translates repository errors. Domain errors raised inside a
// mutator pass through unchanged.
func storageErr(err error, id string) error {
	if err == nil {
		return nil
	}
	var e *Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, reservationRepo.ErrNotFound):
		return NewNotFoundError(fmt.Sprintf("reservation %s not found", id))
	case errors.Is(err, reservationRepo.ErrSlotTaken):
		return NewConflictError("the requested dates are no longer available")
	case errors.Is(err, reservationRepo.ErrVersionConflict):
		return NewConflictError(fmt.Sprintf("reservation %s is being modified, try again", id))
	default:
		return NewStorageError("reservation storage failed", err)
	}
}
