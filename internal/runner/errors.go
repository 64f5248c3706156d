package runner

import (
	"errors"
	"fmt"
)

// RunError represents a fatal runner failure.
//
// Transient conditions (network failures, write conflicts) are never
// surfaced as RunError: they are absorbed by the reconciliation loop.
// A RunError means the runner cannot or must not continue:
//   - Configuration: a required option is missing or invalid
//   - Startup: no initial replica could be obtained
//   - Callback: prop logic failed; running against possibly-corrupted
//     local state is worse than stopping the prop
type RunError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes fatal runner errors.
type ErrorCode string

const (
	// ErrCodeConfig indicates a missing or invalid option.
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeStartup indicates the initial replica acquisition failed.
	ErrCodeStartup ErrorCode = "STARTUP"

	// ErrCodeCallback indicates prop logic returned an error.
	ErrCodeCallback ErrorCode = "CALLBACK"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.Code == ErrCodeConfig
}

// IsStartupError reports whether err is a startup acquisition error.
func IsStartupError(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.Code == ErrCodeStartup
}

// IsCallbackError reports whether err originated in prop logic.
func IsCallbackError(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.Code == ErrCodeCallback
}

func newConfigError(message string) *RunError {
	return &RunError{Code: ErrCodeConfig, Message: message}
}

func newStartupError(message string, err error) *RunError {
	return &RunError{Code: ErrCodeStartup, Message: message, Err: err}
}

func newCallbackError(err error) *RunError {
	return &RunError{Code: ErrCodeCallback, Message: "prop callback failed", Err: err}
}
