package resolve

import (
	"errors"
	"fmt"

	"github.com/roach88/txblock/internal/ir"
)

// ErrNotFound is returned when an identity has no known snapshot, either
// because it was never created or because a block consumed it.
var ErrNotFound = errors.New("object not found")

// NotFoundError carries the missing identity. It matches ErrNotFound.
type NotFoundError struct {
	ID ir.ObjectID

	// Consumed is set when the object existed and was deleted at Version.
	Consumed bool
	Version  ir.Version
}

func (e *NotFoundError) Error() string {
	if e.Consumed {
		return fmt.Sprintf("object %s not found: consumed at version %d", e.ID, e.Version)
	}
	return fmt.Sprintf("object %s not found", e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StaleError reports a block input whose version no longer matches the
// object store. Callers must re-resolve and rebuild.
type StaleError struct {
	ID    ir.ObjectID
	Input int
	Have  ir.Version
	Known ir.Version
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("input %d: object %s at version %d is stale, latest is %d", e.Input, e.ID, e.Have, e.Known)
}

// IsNotFound reports whether err is a resolution miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStale reports whether err is a stale-version failure.
// Uses errors.As to handle wrapped errors.
func IsStale(err error) bool {
	var se *StaleError
	return errors.As(err, &se)
}

// IsResolutionError reports whether err stops a block before the engine.
func IsResolutionError(err error) bool {
	return IsNotFound(err) || IsStale(err)
}
