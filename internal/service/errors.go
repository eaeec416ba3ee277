package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input that is well-formed but not acceptable
	ErrValidation = errors.New("validation failed")

	// ErrStorage marks a persistence failure; nothing was written
	ErrStorage = errors.New("storage failure")
)

// ValidationError carries a reason that is safe to show to the caller.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(cause error, format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...), Err: cause}
}
