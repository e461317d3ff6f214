package errors

import (
	stderrors "errors"
	"fmt"
)

// DriverError is a wrapper around system errno codes, with a customizable error message.
type DriverError interface {
	error
	Errno() Errno
	Unwrap() error
}

type driverError struct {
	errno         Errno
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e driverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return StrError(e.errno)
}

func (e driverError) Errno() Errno {
	return e.errno
}

func (e driverError) Unwrap() error {
	return e.originalError
}

// Is makes [errors.Is] match any two DriverErrors carrying the same errno code,
// regardless of their messages.
func (e driverError) Is(target error) bool {
	other, ok := target.(DriverError)
	return ok && other.Errno() == e.errno
}

// New creates a new [DriverError] with a default message derived from the
// system's error code.
func New(errnoCode Errno) DriverError {
	return driverError{
		errno:   errnoCode,
		message: StrError(errnoCode),
	}
}

// NewFromError wraps `originalError` so that both the errno code and the
// original error (e.g. a [syscall.Errno] from the OS) can be found with
// [errors.Is].
func NewFromError(errnoCode Errno, originalError error) DriverError {
	return driverError{
		errno:         errnoCode,
		message:       fmt.Sprintf("%s: %s", StrError(errnoCode), originalError.Error()),
		originalError: originalError,
	}
}

// NewWithMessage creates a new DriverError from a system error code with a
// custom message.
func NewWithMessage(errnoCode Errno, message string) DriverError {
	return driverError{
		errno:   errnoCode,
		message: fmt.Sprintf("%s: %s", StrError(errnoCode), message),
	}
}

// ErrnoOf returns the errno code of the first DriverError in `err`'s chain, or
// EOK if there is none.
func ErrnoOf(err error) Errno {
	var driverErr DriverError
	if stderrors.As(err, &driverErr) {
		return driverErr.Errno()
	}
	return EOK
}
