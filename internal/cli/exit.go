package cli

import (
	"errors"
	"fmt"
)

// Exit codes returned by generate.
const (
	ExitJobsFailed    = 2
	ExitUserCancelled = 130
)

// ExitError asks main to exit with Code after printing Reason.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s (exit code %d)", e.Reason, e.Code)
}

// ExitCode maps err to a process exit code: 0 for nil, the ExitError code
// when one is wrapped, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
