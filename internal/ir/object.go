package ir

import (
	"bytes"
	"fmt"
)

// Version is a Lamport version stamped by the engine on every write.
// Zero means "unspecified".
type Version uint64

// ObjectHandle is a resolved, versioned snapshot of a stateful entity.
// Handles are produced by the resolver and used for exactly one block.
type ObjectHandle struct {
	ID      ObjectID
	Version Version
	Bytes   []byte
	Type    string // optional type hint, e.g. "0x2::clock::Clock"
}

// Equal compares identity, version, content and type hint.
func (h ObjectHandle) Equal(o ObjectHandle) bool {
	return h.ID == o.ID && h.Version == o.Version && h.Type == o.Type && bytes.Equal(h.Bytes, o.Bytes)
}

// AccessKind enumerates how a block references an object.
type AccessKind uint8

const (
	AccessImmRef AccessKind = iota + 1
	AccessMutRef
	AccessOwned
	AccessShared
	AccessReceiving
)

// AccessMode is the permission under which an input object is referenced.
// Mutable is meaningful only for AccessShared.
type AccessMode struct {
	Kind    AccessKind
	Mutable bool
}

// ImmRef borrows an object read-only.
func ImmRef() AccessMode { return AccessMode{Kind: AccessImmRef} }

// MutRef borrows an object for writing; it must carry a version.
func MutRef() AccessMode { return AccessMode{Kind: AccessMutRef} }

// Owned passes an object by value, consuming it.
func Owned() AccessMode { return AccessMode{Kind: AccessOwned} }

// Shared references a shared object, writable when mutable is set.
func Shared(mutable bool) AccessMode { return AccessMode{Kind: AccessShared, Mutable: mutable} }

// Receiving references an object sent to another object, to be received.
func Receiving() AccessMode { return AccessMode{Kind: AccessReceiving} }

// RequiresVersion reports whether inputs in this mode must carry an
// explicit version.
func (m AccessMode) RequiresVersion() bool {
	return m.Kind == AccessMutRef || m.Kind == AccessShared
}

// Writes reports whether the block may mutate the object through this mode.
func (m AccessMode) Writes() bool {
	switch m.Kind {
	case AccessMutRef, AccessOwned, AccessReceiving:
		return true
	case AccessShared:
		return m.Mutable
	default:
		return false
	}
}

// String returns the trace rendering of the mode.
func (m AccessMode) String() string {
	switch m.Kind {
	case AccessImmRef:
		return "ImmRef"
	case AccessMutRef:
		return "MutRef"
	case AccessOwned:
		return "Owned"
	case AccessShared:
		if m.Mutable {
			return "SharedMut"
		}
		return "SharedImm"
	case AccessReceiving:
		return "Receiving"
	default:
		return fmt.Sprintf("AccessKind(%d)", m.Kind)
	}
}

// ParseAccessMode is the inverse of AccessMode.String.
func ParseAccessMode(s string) (AccessMode, error) {
	switch s {
	case "ImmRef":
		return ImmRef(), nil
	case "MutRef":
		return MutRef(), nil
	case "Owned":
		return Owned(), nil
	case "SharedMut", "Shared":
		return Shared(true), nil
	case "SharedImm":
		return Shared(false), nil
	case "Receiving":
		return Receiving(), nil
	default:
		return AccessMode{}, fmt.Errorf("unknown access mode %q", s)
	}
}

// OwnerKind classifies object ownership.
type OwnerKind uint8

const (
	OwnerAddress OwnerKind = iota + 1
	OwnerObject
	OwnerShared
	OwnerImmutable
)

// Owner records who may use an object.
type Owner struct {
	Kind           OwnerKind
	Address        Address // OwnerAddress, OwnerObject
	InitialVersion Version // OwnerShared
}

// AddressOwner is ownership by an account.
func AddressOwner(a Address) Owner { return Owner{Kind: OwnerAddress, Address: a} }

// ObjectOwner is ownership by another object.
func ObjectOwner(parent ObjectID) Owner { return Owner{Kind: OwnerObject, Address: parent} }

// SharedOwner marks an object shared since version initial.
func SharedOwner(initial Version) Owner { return Owner{Kind: OwnerShared, InitialVersion: initial} }

// ImmutableOwner marks a frozen object nobody can mutate.
func ImmutableOwner() Owner { return Owner{Kind: OwnerImmutable} }

// IsShared reports whether the object is shared.
func (o Owner) IsShared() bool { return o.Kind == OwnerShared }

func (o Owner) String() string {
	switch o.Kind {
	case OwnerAddress:
		return fmt.Sprintf("AddressOwner(%s)", o.Address)
	case OwnerObject:
		return fmt.Sprintf("ObjectOwner(%s)", o.Address)
	case OwnerShared:
		return fmt.Sprintf("Shared(%d)", o.InitialVersion)
	case OwnerImmutable:
		return "Immutable"
	default:
		return "unknown"
	}
}
