package engine

import (
	"slices"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/objstore"
)

type valueKind uint8

const (
	valPure valueKind = iota + 1
	valObject
	valVector
)

// value is anything a command can produce or consume.
type value struct {
	kind  valueKind
	bytes []byte      // valPure: BCS bytes
	obj   ir.ObjectID // valObject
	elems []value     // valVector of objects
	typ   string
}

func (v value) describe() string {
	switch v.kind {
	case valPure:
		return "pure value"
	case valObject:
		return "object " + v.obj.ShortString()
	case valVector:
		return "vector<" + v.typ + ">"
	default:
		return "unit"
	}
}

// slot holds one input or one command output.
type slot struct {
	val   value
	mode  ir.AccessMode // inputs only
	input bool
	moved bool
}

// byValue reports whether the slot may be moved out.
func (s *slot) byValue() bool {
	if !s.input {
		return true
	}
	return s.val.kind == valPure || s.mode.Kind == ir.AccessOwned || s.mode.Kind == ir.AccessReceiving
}

// writable reports whether the slot may be borrowed mutably.
func (s *slot) writable() bool {
	return !s.input || s.mode.Writes()
}

// live tracks one object touched by the block.
type live struct {
	obj     objstore.Object
	input   bool // loaded from the block's input table
	created bool
	deleted bool
	written bool
	// pending objects were moved out of their owner and not yet placed.
	// They are returned to the sender when the block ends.
	pending bool
}

// state is the scratch space of one execution. Nothing in it reaches the
// store unless every command succeeds.
type state struct {
	sender  ir.Address
	inputs  []slot
	results [][]slot
	objects map[ir.ObjectID]*live
	order   []ir.ObjectID
	clock   lamport
	events  []ir.Event
	newID   func() ir.ObjectID
	store   objstore.Lookup
}

func newState(store objstore.Lookup, sender ir.Address, numInputs int, newID func() ir.ObjectID) *state {
	return &state{
		store:   store,
		sender:  sender,
		inputs:  make([]slot, 0, numInputs),
		objects: make(map[ir.ObjectID]*live),
		newID:   newID,
	}
}

func (s *state) track(l *live) {
	if _, ok := s.objects[l.obj.ID]; !ok {
		s.order = append(s.order, l.obj.ID)
	}
	s.objects[l.obj.ID] = l
}

// create registers a new object owned by the sender until placed.
func (s *state) create(typ string, contents []byte) *live {
	id := s.newID()
	bytes := make([]byte, 0, ir.AddressLength+len(contents))
	bytes = append(bytes, id[:]...)
	bytes = append(bytes, contents...)
	l := &live{
		obj: objstore.Object{
			ID:    id,
			Type:  typ,
			Bytes: bytes,
			Owner: ir.AddressOwner(s.sender),
		},
		created: true,
		written: true,
		pending: true,
	}
	s.track(l)
	return l
}

// destroy removes an object. Objects created in this block vanish without
// trace; pre-existing ones are reported as deleted.
func (s *state) destroy(l *live) {
	l.pending = false
	if l.created {
		delete(s.objects, l.obj.ID)
		s.order = slices.DeleteFunc(s.order, func(id ir.ObjectID) bool { return id == l.obj.ID })
		return
	}
	l.deleted = true
}

func (s *state) slotFor(arg ir.Argument, cmd int) (*slot, *ir.ExecutionError) {
	switch arg.Kind {
	case ir.ArgInput:
		if arg.Index < 0 || arg.Index >= len(s.inputs) {
			return nil, failf(ir.ErrKindInvalidInput, cmd, "%s out of range", arg)
		}
		return &s.inputs[arg.Index], nil
	case ir.ArgResult:
		if arg.Index < 0 || arg.Index >= len(s.results) || arg.Output < 0 || arg.Output >= len(s.results[arg.Index]) {
			return nil, failf(ir.ErrKindInvalidInput, cmd, "%s out of range", arg)
		}
		return &s.results[arg.Index][arg.Output], nil
	default:
		return nil, failf(ir.ErrKindInvalidInput, cmd, "invalid argument")
	}
}

// pureArg reads a pure argument without moving it.
func (s *state) pureArg(arg ir.Argument, cmd int) ([]byte, *ir.ExecutionError) {
	sl, err := s.slotFor(arg, cmd)
	if err != nil {
		return nil, err
	}
	if sl.moved {
		return nil, failf(ir.ErrKindValueMoved, cmd, "%s was already moved", arg)
	}
	if sl.val.kind != valPure {
		return nil, failf(ir.ErrKindTypeMismatch, cmd, "%s is %s, expected pure value", arg, sl.val.describe())
	}
	return sl.val.bytes, nil
}

// borrow resolves an object argument by reference.
func (s *state) borrow(arg ir.Argument, cmd int, mutable bool) (*live, *ir.ExecutionError) {
	sl, err := s.slotFor(arg, cmd)
	if err != nil {
		return nil, err
	}
	if sl.moved {
		return nil, failf(ir.ErrKindValueMoved, cmd, "%s was already moved", arg)
	}
	if sl.val.kind != valObject {
		return nil, failf(ir.ErrKindTypeMismatch, cmd, "%s is %s, expected object", arg, sl.val.describe())
	}
	if mutable && !sl.writable() {
		return nil, failf(ir.ErrKindOwnership, cmd, "%s is borrowed as %s and cannot be mutated", arg, sl.mode)
	}
	l := s.objects[sl.val.obj]
	if mutable {
		l.written = true
	}
	return l, nil
}

// take moves a value out of its slot. Pure values are copied.
func (s *state) take(arg ir.Argument, cmd int) (value, *ir.ExecutionError) {
	sl, err := s.slotFor(arg, cmd)
	if err != nil {
		return value{}, err
	}
	if sl.moved {
		return value{}, failf(ir.ErrKindValueMoved, cmd, "%s was already moved", arg)
	}
	if sl.val.kind == valPure {
		return sl.val, nil
	}
	if !sl.byValue() {
		return value{}, failf(ir.ErrKindInvalidInput, cmd, "%s is borrowed as %s and cannot be moved", arg, sl.mode)
	}
	sl.moved = true
	s.markTaken(sl.val)
	return sl.val, nil
}

func (s *state) markTaken(v value) {
	switch v.kind {
	case valObject:
		l := s.objects[v.obj]
		l.pending = true
		l.written = true
	case valVector:
		for _, e := range v.elems {
			s.markTaken(e)
		}
	}
}

// takeObject moves an object argument.
func (s *state) takeObject(arg ir.Argument, cmd int) (*live, *ir.ExecutionError) {
	v, err := s.take(arg, cmd)
	if err != nil {
		return nil, err
	}
	if v.kind != valObject {
		return nil, failf(ir.ErrKindTypeMismatch, cmd, "%s is %s, expected object", arg, v.describe())
	}
	return s.objects[v.obj], nil
}

// place moves every object of v to owner.
func (s *state) place(v value, owner ir.Owner) {
	switch v.kind {
	case valObject:
		l := s.objects[v.obj]
		l.obj.Owner = owner
		l.pending = false
		l.written = true
	case valVector:
		for _, e := range v.elems {
			s.place(e, owner)
		}
	}
}

func objectValue(l *live) value {
	return value{kind: valObject, obj: l.obj.ID, typ: l.obj.Type}
}

func pureValue(b []byte) value {
	return value{kind: valPure, bytes: b}
}
