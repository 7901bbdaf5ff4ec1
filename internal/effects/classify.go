// Package effects picks the entity a caller asked for out of an execution
// result. The engine reports created objects without saying why each was
// created, so callers state what they want with a Hint and the classifier
// applies it against the object store.
//
// Classification is strict: a hint that matches nothing is ErrNotFound.
// The first-created fallback is opt-in through WithFallback, and every use
// of it is logged, because it can silently pick the wrong object once a
// command creates more than one.
package effects

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/objstore"
)

// ErrNotFound is returned when no created object satisfies a hint.
var ErrNotFound = errors.New("no created object matches")

// NotFoundError describes a classification miss. It matches ErrNotFound.
type NotFoundError struct {
	Hint    Hint
	Created int
	Reason  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("classify %s: %s (%d created)", e.Hint, e.Reason, e.Created)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is a classification miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Classifier resolves hints against results.
type Classifier struct {
	lookup   objstore.Lookup
	fallback bool
	logger   *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithFallback returns the first created object when a hint matches
// nothing instead of failing.
func WithFallback() Option {
	return func(c *Classifier) { c.fallback = true }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New returns a classifier reading object types and owners from lookup.
func New(lookup objstore.Lookup, opts ...Option) *Classifier {
	c := &Classifier{lookup: lookup, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the created object selected by hint. The same result
// and hint always select the same object.
func (c *Classifier) Classify(res ir.ExecutionResult, hint Hint) (ir.ObjectID, error) {
	return c.pick(res, hint, nil)
}

// ClassifyAll resolves several hints against one result, each to a
// different object. Hints are applied in order, so put the most specific
// first.
func (c *Classifier) ClassifyAll(res ir.ExecutionResult, hints ...Hint) ([]ir.ObjectID, error) {
	taken := make(map[ir.ObjectID]bool, len(hints))
	out := make([]ir.ObjectID, 0, len(hints))
	for _, h := range hints {
		id, err := c.pick(res, h, taken)
		if err != nil {
			return nil, err
		}
		taken[id] = true
		out = append(out, id)
	}
	return out, nil
}

func (c *Classifier) pick(res ir.ExecutionResult, hint Hint, taken map[ir.ObjectID]bool) (ir.ObjectID, error) {
	miss := func(reason string) error {
		return &NotFoundError{Hint: hint, Created: len(res.Created), Reason: reason}
	}
	if !res.Success {
		return ir.ObjectID{}, miss("execution failed")
	}
	candidates := slices.DeleteFunc(slices.Clone(res.Created), func(id ir.ObjectID) bool { return taken[id] })
	if len(candidates) == 0 {
		return ir.ObjectID{}, miss("nothing created")
	}

	var match func(objstore.Object) bool
	switch hint.Kind {
	case HintFirstCreated:
		return candidates[0], nil
	case HintByStructuralType:
		match = func(o objstore.Object) bool { return typeNameMatches(o.Type, hint.Name) }
	case HintPreferShared:
		match = func(o objstore.Object) bool { return o.IsShared() }
	case HintPreferOwned:
		match = func(o objstore.Object) bool { return o.Owner.Kind == ir.OwnerAddress }
	default:
		return ir.ObjectID{}, fmt.Errorf("classify: unknown hint kind %d", hint.Kind)
	}

	for _, id := range candidates {
		obj, ok := c.lookup.Lookup(id)
		if ok && match(obj) {
			return id, nil
		}
	}

	if c.fallback {
		c.logger.Warn("classifier hint matched nothing, falling back to first created object",
			"hint", hint.String(),
			"created", len(candidates),
			"chosen", candidates[0].ShortString())
		return candidates[0], nil
	}
	return ir.ObjectID{}, miss("no match")
}

// typeNameMatches compares by unqualified struct name, or by full
// address::module::Name when name is qualified. Type parameters are ignored.
func typeNameMatches(objType, name string) bool {
	want, err := ir.ParseTypeTag(name)
	if err != nil || want.Kind != ir.KindStruct {
		return ir.StructNameOf(objType) == name
	}
	got, err := ir.ParseTypeTag(objType)
	if err != nil || got.Kind != ir.KindStruct {
		return false
	}
	return got.Struct.Address == want.Struct.Address &&
		got.Struct.Module == want.Struct.Module &&
		got.Struct.Name == want.Struct.Name
}
