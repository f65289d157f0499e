package utils

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced to API callers. Handlers map these onto HTTP
// status codes; anything else is an internal processing failure.
var (
	ErrorRecordNotFound = errors.New("record not found")
	ErrValidation       = errors.New("validation error")
	ErrInvalidState     = errors.New("invalid state")
)

func ValidationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func InvalidStateErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
