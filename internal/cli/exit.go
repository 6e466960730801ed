package cli

import (
	"errors"
	"fmt"

	"github.com/freeeve/chessgraph/annotator/internal/annotate"
	"github.com/freeeve/chessgraph/annotator/internal/rules"
	"github.com/freeeve/chessgraph/annotator/internal/store"
)

// Exit codes for annotate commands.
const (
	ExitSuccess   = 0
	ExitFailure   = 1 // engine or storage failure
	ExitUsage     = 2 // bad arguments or input
	ExitNotFound  = 3
	ExitForbidden = 4
)

// ExitError carries a process exit code alongside the error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, annotate.ErrForbidden):
		return ExitForbidden
	case errors.Is(err, annotate.ErrInvalidLimit),
		errors.Is(err, rules.ErrInvalidRecord),
		errors.Is(err, rules.ErrIllegalMove),
		errors.Is(err, rules.ErrInvalidPosition):
		return ExitUsage
	}
	return ExitFailure
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: ExitUsage, Err: fmt.Errorf(format, args...)}
}
