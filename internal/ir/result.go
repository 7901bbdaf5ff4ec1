package ir

import "fmt"

// ExecutionResult is everything the engine reports about one block.
// Created and Mutated are in engine order, which need not follow command
// order; use the effects classifier to pick out specific objects.
type ExecutionResult struct {
	Success bool
	GasUsed uint64
	Created []ObjectID
	Mutated []ObjectID
	Deleted []ObjectID
	Events  []Event
	Error   *ExecutionError
}

// Event is a typed payload emitted during execution.
type Event struct {
	Type   string
	Sender Address
	Data   Object
}

// ErrorKind categorizes execution failures.
type ErrorKind string

const (
	ErrKindAbort               ErrorKind = "MOVE_ABORT"
	ErrKindInvalidInput        ErrorKind = "INVALID_INPUT"
	ErrKindFunctionNotFound    ErrorKind = "FUNCTION_NOT_FOUND"
	ErrKindInsufficientBalance ErrorKind = "INSUFFICIENT_BALANCE"
	ErrKindTypeMismatch        ErrorKind = "TYPE_MISMATCH"
	ErrKindOutOfGas            ErrorKind = "OUT_OF_GAS"
	ErrKindObjectNotFound      ErrorKind = "OBJECT_NOT_FOUND"
	ErrKindOwnership           ErrorKind = "OWNERSHIP"
	ErrKindValueMoved          ErrorKind = "VALUE_MOVED"
)

// ExecutionError is the structured failure carried by a failed result.
// Command is the index of the failing command, or -1 when the failure is
// not attributable to a single command.
type ExecutionError struct {
	Kind      ErrorKind
	Command   int
	Message   string
	AbortCode uint64 // ErrKindAbort only
}

func (e *ExecutionError) Error() string {
	prefix := string(e.Kind)
	if e.Command >= 0 {
		prefix = fmt.Sprintf("%s in command %d", e.Kind, e.Command)
	}
	if e.Kind == ErrKindAbort {
		return fmt.Sprintf("%s: %s (abort code %d)", prefix, e.Message, e.AbortCode)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// FailedResult builds the result of a block that did not commit.
// Failed blocks report no effects and no gas.
func FailedResult(err *ExecutionError) ExecutionResult {
	return ExecutionResult{
		Success: false,
		Created: []ObjectID{},
		Mutated: []ObjectID{},
		Deleted: []ObjectID{},
		Events:  []Event{},
		Error:   err,
	}
}
