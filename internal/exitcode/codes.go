// Package exitcode maps run outcomes to process exit codes.
package exitcode

import (
	"errors"
	"fmt"
)

// Exit codes for different error scenarios
const (
	ExitSuccess = 0 // Run completed; individual check failures are not fatal
	ExitFailure = 1 // Missing configuration or an unhandled error escaped the run
)

// Error carries an explicit exit code through cobra's error return
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode wraps err so that FromError returns code
func WithCode(code int, err error) error {
	return &Error{Code: code, Err: err}
}

// FromError returns the exit code for the error returned by a command.
// Any error without an explicit code is a failure.
func FromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *Error
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
