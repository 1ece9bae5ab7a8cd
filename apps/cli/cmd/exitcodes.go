package cmd

import (
	"errors"
	"fmt"
)

// Exit codes for the caserun CLI
const (
	// ExitSuccess indicates every case passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more cases failed or errored
	ExitTestFailure = 1

	// ExitDataError indicates case data that could not be normalized or
	// resolved: malformed records, cycles, unknown prerequisites
	ExitDataError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3
)

// exitError carries an exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitTestFailure
}
