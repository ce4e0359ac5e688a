package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking service.
var (
	ErrClassNotFound        = errors.New("class schedule not found")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrPackageNotFound      = errors.New("credit package not found")
	ErrBalanceNotFound      = errors.New("credit balance not found")
	ErrNotOwner             = errors.New("caller does not own this resource")
	ErrClassLocked          = errors.New("class is currently being booked by another user, retry shortly")
	ErrClassFull            = errors.New("class is full")
	ErrClassNotFull         = errors.New("class is not full yet, book it directly")
	ErrAlreadyBooked        = errors.New("class already booked")
	ErrAlreadyWaitlisted    = errors.New("already on the waitlist for this class")
	ErrOverlappingBooking   = errors.New("another booking overlaps with this class time")
	ErrInsufficientCredits  = errors.New("no active balance with sufficient credits for this country")
	ErrNotBooked            = errors.New("booking is not in booked status")
	ErrOutsideCheckInWindow = errors.New("check-in allowed only from 30 minutes before start until class end")
	ErrWaitlistStateChanged = errors.New("waitlist entry no longer waiting")
	ErrPaymentDeclined      = errors.New("payment declined")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// IsNotFound reports whether err indicates an absent referenced record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrPackageNotFound) ||
		errors.Is(err, ErrBalanceNotFound)
}

// IsConflict reports whether err is a business-rule violation the caller can
// act on, as opposed to a persistence fault.
func IsConflict(err error) bool {
	return errors.Is(err, ErrClassLocked) ||
		errors.Is(err, ErrClassFull) ||
		errors.Is(err, ErrClassNotFull) ||
		errors.Is(err, ErrAlreadyBooked) ||
		errors.Is(err, ErrAlreadyWaitlisted) ||
		errors.Is(err, ErrOverlappingBooking) ||
		errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrNotBooked) ||
		errors.Is(err, ErrOutsideCheckInWindow) ||
		errors.Is(err, ErrWaitlistStateChanged) ||
		errors.Is(err, ErrPaymentDeclined)
}

// IsRetryable reports whether the caller may retry the same request after a
// backoff. Lock contention clears on its own; insufficient credits clears
// once the user buys another package.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrClassLocked) || errors.Is(err, ErrInsufficientCredits)
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
