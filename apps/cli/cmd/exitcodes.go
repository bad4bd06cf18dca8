package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/apicontract/packages/report"
)

// Exit codes for the apicontract CLI
const (
	// ExitSuccess indicates all cases passed
	ExitSuccess = report.ExitOK

	// ExitTestFailure indicates a failed case or an incomplete run
	ExitTestFailure = report.ExitFailure

	// ExitMalformed indicates an aborted case or a suite that cannot be loaded
	ExitMalformed = report.ExitAborted

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// ExitError ends a command with a specific exit code. Err may be nil when
// the command already reported the problem.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitWith(code int, err error) error {
	if code == ExitSuccess && err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}
