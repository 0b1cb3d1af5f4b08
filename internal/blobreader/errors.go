package blobreader

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every error returned by Reader matches exactly one.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("blob not found")
	ErrTooLarge        = errors.New("blob too large")
	ErrTransport       = errors.New("blob transport failure")
)

// InvalidArgumentError reports a missing container or object name, or one
// the store refused as malformed (Err set).
type InvalidArgumentError struct {
	Field string
	Err   error
}

func (e *InvalidArgumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s must not be empty", e.Field)
}

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

func (e *InvalidArgumentError) Unwrap() error { return e.Err }

// NotFoundError reports that the object does not exist in the container.
type NotFoundError struct {
	Container string
	Name      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("blob not found: %s/%s", e.Container, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TooLargeError reports that more than Max bytes were received.
// Actual counts the bytes buffered before reading stopped, so it is a lower
// bound on the object's true size.
type TooLargeError struct {
	Actual int64
	Max    int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("blob too large: %d > %d", e.Actual, e.Max)
}

func (e *TooLargeError) Is(target error) bool { return target == ErrTooLarge }

// TransportError wraps an I/O failure talking to the store.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }
