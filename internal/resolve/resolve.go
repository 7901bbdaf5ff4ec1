// Package resolve turns object identities into versioned snapshots that
// can be embedded in a block, and re-checks those snapshots against the
// store right before submission.
//
// The resolver is mode-agnostic: it reports the latest known version and
// bytes, and the caller picks the access mode when building the input.
// Handles are single use. After any block that may have touched an
// object, resolve it again.
package resolve

import (
	"fmt"

	"github.com/roach88/txblock/internal/block"
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/objstore"
)

// Store is the read side the resolver needs.
type Store interface {
	objstore.Lookup
	Consumed(id ir.ObjectID) (ir.Version, bool)
}

// Resolver reads snapshots from a Store.
type Resolver struct {
	store Store
}

var _ block.VersionSource = (*Resolver)(nil)

// New returns a resolver over store.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the latest snapshot of id.
func (r *Resolver) Resolve(id ir.ObjectID) (ir.ObjectHandle, error) {
	obj, ok := r.store.Lookup(id)
	if !ok {
		return ir.ObjectHandle{}, r.notFound(id)
	}
	return obj.Handle(), nil
}

// ResolveAll resolves every id, stopping at the first miss.
func (r *Resolver) ResolveAll(ids ...ir.ObjectID) ([]ir.ObjectHandle, error) {
	out := make([]ir.ObjectHandle, 0, len(ids))
	for _, id := range ids {
		h, err := r.Resolve(id)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Input resolves id and wraps it as an object input under mode.
func (r *Resolver) Input(id ir.ObjectID, mode ir.AccessMode) (ir.Input, error) {
	h, err := r.Resolve(id)
	if err != nil {
		return ir.Input{}, fmt.Errorf("resolve %s input: %w", mode, err)
	}
	return ir.ObjectInput(h, mode), nil
}

// Pure wraps already-encoded bytes as an input.
func (r *Resolver) Pure(bcs []byte) ir.Input {
	return ir.PureInput(bcs)
}

// KnownVersion implements block.VersionSource.
func (r *Resolver) KnownVersion(id ir.ObjectID) (ir.Version, bool) {
	obj, ok := r.store.Lookup(id)
	if !ok {
		return 0, false
	}
	return obj.Version, true
}

// CheckFresh verifies every object input of b against the store. An input
// whose object is gone fails with a NotFoundError; one that carries a
// version other than the stored one fails with a StaleError. Inputs
// without a version (ImmRef, Owned, Receiving may omit it) only need to
// exist.
func (r *Resolver) CheckFresh(b *block.Block) error {
	for _, i := range b.ObjectInputs() {
		in := b.Input(i)
		obj, ok := r.store.Lookup(in.Object.ID)
		if !ok {
			return fmt.Errorf("input %d: %w", i, r.notFound(in.Object.ID))
		}
		if in.Object.Version != 0 && in.Object.Version != obj.Version {
			return &StaleError{ID: in.Object.ID, Input: i, Have: in.Object.Version, Known: obj.Version}
		}
	}
	return nil
}

func (r *Resolver) notFound(id ir.ObjectID) error {
	if v, ok := r.store.Consumed(id); ok {
		return &NotFoundError{ID: id, Consumed: true, Version: v}
	}
	return &NotFoundError{ID: id}
}
