// Package objstore is the object store boundary: the latest known version
// and byte snapshot of every entity, plus the ability to seed well-known
// entities before execution.
package objstore

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/txblock/internal/ir"
)

// ClockType is the type descriptor of the clock singleton.
const ClockType = "0x2::clock::Clock"

// Object is one stored entity.
type Object struct {
	ID      ir.ObjectID
	Version ir.Version
	Type    string
	Bytes   []byte
	Owner   ir.Owner
}

// Handle snapshots the object for use in a block.
func (o Object) Handle() ir.ObjectHandle {
	return ir.ObjectHandle{
		ID:      o.ID,
		Version: o.Version,
		Bytes:   slices.Clone(o.Bytes),
		Type:    o.Type,
	}
}

// IsShared reports whether the object is shared.
func (o Object) IsShared() bool {
	return o.Owner.IsShared()
}

// Clone returns a deep copy.
func (o Object) Clone() Object {
	o.Bytes = slices.Clone(o.Bytes)
	return o
}

// Lookup is the read side of the store.
type Lookup interface {
	Lookup(id ir.ObjectID) (Object, bool)
}

// ChangeSet is the committed outcome of one successful block.
type ChangeSet struct {
	Written []Object
	Deleted []ir.ObjectID
}

// Memory is a thread-safe in-memory object store.
type Memory struct {
	mu        sync.RWMutex
	objects   map[ir.ObjectID]Object
	tombstone map[ir.ObjectID]ir.Version
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		objects:   make(map[ir.ObjectID]Object),
		tombstone: make(map[ir.ObjectID]ir.Version),
	}
}

// Lookup returns a copy of the latest snapshot of id.
func (m *Memory) Lookup(id ir.ObjectID) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[id]
	if !ok {
		return Object{}, false
	}
	return o.Clone(), true
}

// Consumed reports whether id existed and was deleted, and at which version.
func (m *Memory) Consumed(id ir.ObjectID) (ir.Version, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.tombstone[id]
	return v, ok
}

// LoadOption adjusts seeded objects.
type LoadOption func(*Object)

// WithOwner seeds an address-owned object.
func WithOwner(owner ir.Address) LoadOption {
	return func(o *Object) { o.Owner = ir.AddressOwner(owner) }
}

// Load seeds an entity directly, bypassing execution. Shared objects
// record version as their initial shared version. Loading over an
// existing id replaces it.
func (m *Memory) Load(id ir.ObjectID, bytes []byte, typeHint string, isShared, isImmutable bool, version ir.Version, opts ...LoadOption) error {
	if isShared && isImmutable {
		return fmt.Errorf("load %s: object cannot be both shared and immutable", id)
	}
	if version == 0 {
		return fmt.Errorf("load %s: version must be positive", id)
	}
	obj := Object{
		ID:      id,
		Version: version,
		Type:    typeHint,
		Bytes:   slices.Clone(bytes),
		Owner:   ir.AddressOwner(ir.Address{}),
	}
	switch {
	case isShared:
		obj.Owner = ir.SharedOwner(version)
	case isImmutable:
		obj.Owner = ir.ImmutableOwner()
	}
	for _, opt := range opts {
		opt(&obj)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = obj
	delete(m.tombstone, id)
	return nil
}

// Clock seeds the clock singleton at 0x6: shared, version 1, contents are
// the id followed by the timestamp in milliseconds (u64 little-endian).
func (m *Memory) Clock(timestampMs uint64) error {
	contents := make([]byte, 0, ir.AddressLength+8)
	contents = append(contents, ir.ClockID[:]...)
	contents = binary.LittleEndian.AppendUint64(contents, timestampMs)
	return m.Load(ir.ClockID, contents, ClockType, true, false, 1)
}

// Apply commits a change set atomically. Every written object must carry
// a version above the stored one.
func (m *Memory) Apply(cs ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range cs.Written {
		if prev, ok := m.objects[w.ID]; ok && w.Version <= prev.Version {
			return fmt.Errorf("apply %s: version %d does not advance stored version %d", w.ID, w.Version, prev.Version)
		}
	}
	for _, id := range cs.Deleted {
		if _, ok := m.objects[id]; !ok {
			return fmt.Errorf("apply: delete of unknown object %s", id)
		}
	}

	for _, w := range cs.Written {
		m.objects[w.ID] = w.Clone()
		delete(m.tombstone, w.ID)
	}
	for _, id := range cs.Deleted {
		m.tombstone[id] = m.objects[id].Version
		delete(m.objects, id)
	}
	return nil
}

// Snapshot returns every live object ordered by id.
func (m *Memory) Snapshot() []Object {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Object, 0, len(m.objects))
	for _, o := range m.objects {
		out = append(out, o.Clone())
	}
	slices.SortFunc(out, func(a, b Object) int { return a.ID.Compare(b.ID) })
	return out
}

// Len returns the number of live objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
