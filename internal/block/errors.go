package block

import (
	"errors"
	"fmt"

	"github.com/roach88/txblock/internal/ir"
)

// ErrorCode categorizes construction failures.
type ErrorCode string

const (
	// ErrCodeEmptyBlock indicates a block without commands.
	ErrCodeEmptyBlock ErrorCode = "E_EMPTY_BLOCK"

	// ErrCodeBadInput indicates a malformed input entry.
	ErrCodeBadInput ErrorCode = "E_BAD_INPUT"

	// ErrCodeMissingVersion indicates a MutRef or Shared input without a version.
	ErrCodeMissingVersion ErrorCode = "E_MISSING_VERSION"

	// ErrCodeStaleVersion indicates an input version below the latest known one.
	ErrCodeStaleVersion ErrorCode = "E_STALE_VERSION"

	// ErrCodeBadCommand indicates a structurally invalid command.
	ErrCodeBadCommand ErrorCode = "E_BAD_COMMAND"

	// ErrCodeInputRange indicates Input(i) with i outside the input table.
	ErrCodeInputRange ErrorCode = "E_INPUT_RANGE"

	// ErrCodeSelfRef indicates a command referencing its own result.
	ErrCodeSelfRef ErrorCode = "E_SELF_REF"

	// ErrCodeForwardRef indicates a reference to a later command.
	ErrCodeForwardRef ErrorCode = "E_FORWARD_REF"

	// ErrCodeOutputRange indicates Result(c, o) with o beyond command c's outputs.
	ErrCodeOutputRange ErrorCode = "E_OUTPUT_RANGE"
)

// ValidationError reports the first offending element of a rejected block.
// Command and Input are -1 when not applicable.
type ValidationError struct {
	Code      ErrorCode
	Command   int
	Input     int
	Reference ir.Argument
	Message   string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Command >= 0 && e.Reference.Kind != 0:
		return fmt.Sprintf("%s: command %d %s: %s", e.Code, e.Command, e.Reference, e.Message)
	case e.Command >= 0:
		return fmt.Sprintf("%s: command %d: %s", e.Code, e.Command, e.Message)
	case e.Input >= 0:
		return fmt.Sprintf("%s: input %d: %s", e.Code, e.Input, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsValidationError reports whether err is a construction failure.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CodeOf returns the validation code carried by err, or "".
func CodeOf(err error) ErrorCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

func inputError(code ErrorCode, input int, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Command: -1, Input: input, Message: fmt.Sprintf(format, args...)}
}

func commandError(code ErrorCode, cmd int, ref ir.Argument, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Command: cmd, Input: -1, Reference: ref, Message: fmt.Sprintf(format, args...)}
}
