package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/txblock/internal/ir"
)

// Execution failures are reported inside ir.ExecutionResult, never as a
// Go error. The helpers below build them with the failing command index.

func failf(kind ir.ErrorKind, cmd int, format string, args ...any) *ir.ExecutionError {
	return &ir.ExecutionError{Kind: kind, Command: cmd, Message: fmt.Sprintf(format, args...)}
}

func abort(cmd int, code uint64, target string) *ir.ExecutionError {
	return &ir.ExecutionError{
		Kind:      ir.ErrKindAbort,
		Command:   cmd,
		Message:   fmt.Sprintf("%s aborted", target),
		AbortCode: code,
	}
}

// RegistryError reports a manifest the simulator refused to register.
type RegistryError struct {
	Package  string
	Problems []ir.ValidationError
}

func (e *RegistryError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("register %s: %s", e.Package, e.Problems[0])
	}
	return fmt.Sprintf("register %s: %d problems, first: %s", e.Package, len(e.Problems), e.Problems[0])
}

// IsRegistryError returns true if the error is a manifest registration error.
// Uses errors.As to handle wrapped errors.
func IsRegistryError(err error) bool {
	var re *RegistryError
	return errors.As(err, &re)
}

// KindOf returns the execution error kind carried by a failed result, or "".
func KindOf(res ir.ExecutionResult) ir.ErrorKind {
	if res.Error == nil {
		return ""
	}
	return res.Error.Kind
}
