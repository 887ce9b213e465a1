package driver

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHandle reports that the backing window no longer exists.
	ErrInvalidHandle = errors.New("driver: window no longer exists")

	// ErrTransient marks retryable failures such as timeouts.
	ErrTransient = errors.New("driver: transient failure")

	// ErrReadOnly is returned when writing an attribute the backend cannot set.
	ErrReadOnly = errors.New("driver: attribute is read-only")

	// ErrClosed is returned by operations on a closed driver.
	ErrClosed = errors.New("driver: closed")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is marked as retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// InvalidHandle wraps ErrInvalidHandle with the handle and operation that
// observed it.
func InvalidHandle(op string, h Handle) error {
	return fmt.Errorf("%s %s: %w", op, h, ErrInvalidHandle)
}

// IsInvalidHandle reports whether err means the backing window is gone.
func IsInvalidHandle(err error) bool {
	return errors.Is(err, ErrInvalidHandle)
}
