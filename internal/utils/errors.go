package utils

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the gateway, the simulator and the HTTP layer.
// Callers wrap these with fmt.Errorf("...: %w") and test with errors.Is.
var (
	// ErrInvalidTicker means the market data provider does not recognise the symbol.
	ErrInvalidTicker = errors.New("invalid ticker")
	// ErrDataInsufficient means there is not enough history to estimate a statistic.
	ErrDataInsufficient = errors.New("insufficient data")
	// ErrUnavailable marks a transient upstream failure. It is the only retryable error.
	ErrUnavailable = errors.New("market data unavailable")
	// ErrInvalidArgument marks a caller error such as a non-positive horizon.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ValidationError represents an error occurring during data validation.
// It unwraps to ErrInvalidArgument.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match ErrInvalidArgument.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// NewValidationError creates a new ValidationError with a specific message.
//
// Parameters:
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
//
// Parameters:
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// IsRetryable reports whether err is worth retrying against the provider.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
