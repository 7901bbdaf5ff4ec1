package engine

import (
	"encoding/binary"
	"math"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/pure"
)

// Well-known framework types.
const (
	CoinType       = "0x2::coin::Coin<0x2::sui::SUI>"
	PackageType    = "package"
	UpgradeCapType = "0x2::package::UpgradeCap"
)

const coinLength = ir.AddressLength + 8

func isCoin(l *live) bool {
	return ir.StructNameOf(l.obj.Type) == "Coin" && len(l.obj.Bytes) >= coinLength
}

func coinBalance(l *live) uint64 {
	return binary.LittleEndian.Uint64(l.obj.Bytes[ir.AddressLength:coinLength])
}

func setCoinBalance(l *live, balance uint64) {
	binary.LittleEndian.PutUint64(l.obj.Bytes[ir.AddressLength:coinLength], balance)
}

// sameType compares two type descriptors after normalization, so that
// "0x0000..02::coin::Coin" and "0x2::coin::Coin" are equal.
func sameType(a, b string) bool {
	if a == b {
		return true
	}
	ta, errA := ir.ParseTypeTag(a)
	tb, errB := ir.ParseTypeTag(b)
	if errA != nil || errB != nil {
		return false
	}
	return ta.String() == tb.String()
}

func (s *state) transfer(cmd int, c ir.TransferOwnership) *ir.ExecutionError {
	raw, err := s.pureArg(c.Recipient, cmd)
	if err != nil {
		return err
	}
	recipient, decErr := pure.DecodeAddress(raw)
	if decErr != nil {
		return failf(ir.ErrKindTypeMismatch, cmd, "recipient: %v", decErr)
	}
	owner := ir.AddressOwner(recipient)
	if s.isObject(recipient) {
		owner = ir.ObjectOwner(recipient)
	}
	for _, arg := range c.Objects {
		l, err := s.takeObject(arg, cmd)
		if err != nil {
			return err
		}
		s.place(objectValue(l), owner)
	}
	return nil
}

func (s *state) split(cmd int, c ir.SplitValue) ([]value, *ir.ExecutionError) {
	src, err := s.borrow(c.Source, cmd, true)
	if err != nil {
		return nil, err
	}
	if !isCoin(src) {
		return nil, failf(ir.ErrKindTypeMismatch, cmd, "split source %s is %s, expected a coin", src.obj.ID.ShortString(), src.obj.Type)
	}
	amounts := make([]uint64, len(c.Amounts))
	var total uint64
	for i, arg := range c.Amounts {
		raw, err := s.pureArg(arg, cmd)
		if err != nil {
			return nil, err
		}
		amt, decErr := pure.DecodeU64(raw)
		if decErr != nil {
			return nil, failf(ir.ErrKindTypeMismatch, cmd, "amount %d: %v", i, decErr)
		}
		if amt > math.MaxUint64-total {
			return nil, failf(ir.ErrKindInsufficientBalance, cmd, "split amounts overflow")
		}
		amounts[i] = amt
		total += amt
	}
	balance := coinBalance(src)
	if total > balance {
		return nil, failf(ir.ErrKindInsufficientBalance, cmd, "split of %d exceeds balance %d", total, balance)
	}
	setCoinBalance(src, balance-total)

	out := make([]value, len(amounts))
	for i, amt := range amounts {
		out[i] = objectValue(s.create(src.obj.Type, pure.U64(amt)))
	}
	return out, nil
}

func (s *state) merge(cmd int, c ir.MergeValues) *ir.ExecutionError {
	dst, err := s.borrow(c.Destination, cmd, true)
	if err != nil {
		return err
	}
	if !isCoin(dst) {
		return failf(ir.ErrKindTypeMismatch, cmd, "merge destination %s is %s, expected a coin", dst.obj.ID.ShortString(), dst.obj.Type)
	}
	balance := coinBalance(dst)
	for _, arg := range c.Sources {
		src, err := s.takeObject(arg, cmd)
		if err != nil {
			return err
		}
		if src == dst {
			return failf(ir.ErrKindInvalidInput, cmd, "cannot merge %s into itself", src.obj.ID.ShortString())
		}
		if !isCoin(src) || !sameType(src.obj.Type, dst.obj.Type) {
			return failf(ir.ErrKindTypeMismatch, cmd, "cannot merge %s into %s", src.obj.Type, dst.obj.Type)
		}
		add := coinBalance(src)
		if add > math.MaxUint64-balance {
			return failf(ir.ErrKindInvalidInput, cmd, "merged balance overflows")
		}
		balance += add
		s.destroy(src)
	}
	setCoinBalance(dst, balance)
	return nil
}

func (s *state) collection(cmd int, c ir.BuildCollection) (value, *ir.ExecutionError) {
	if len(c.Elements) == 0 {
		// Only typed empty vectors pass validation.
		if c.ElementType.Kind == ir.KindStruct {
			return value{kind: valVector, elems: []value{}, typ: c.ElementType.String()}, nil
		}
		return pureValue(pure.Vector()), nil
	}

	first, err := s.slotFor(c.Elements[0], cmd)
	if err != nil {
		return value{}, err
	}
	if first.val.kind == valPure {
		if c.ElementType != nil && c.ElementType.Kind == ir.KindStruct {
			return value{}, failf(ir.ErrKindTypeMismatch, cmd, "pure elements for vector<%s>", c.ElementType)
		}
		elems := make([][]byte, len(c.Elements))
		for i, arg := range c.Elements {
			raw, err := s.pureArg(arg, cmd)
			if err != nil {
				return value{}, err
			}
			elems[i] = raw
		}
		return pureValue(pure.Vector(elems...)), nil
	}

	elemType := ""
	if c.ElementType != nil {
		elemType = c.ElementType.String()
	}
	elems := make([]value, len(c.Elements))
	for i, arg := range c.Elements {
		l, err := s.takeObject(arg, cmd)
		if err != nil {
			return value{}, err
		}
		if elemType == "" {
			elemType = l.obj.Type
		}
		if !sameType(l.obj.Type, elemType) {
			return value{}, failf(ir.ErrKindTypeMismatch, cmd, "element %d is %s, expected %s", i, l.obj.Type, elemType)
		}
		elems[i] = objectValue(l)
	}
	return value{kind: valVector, elems: elems, typ: elemType}, nil
}

func (s *state) publish(cmd int, c ir.Publish, known func(ir.ObjectID) bool) (value, *ir.ExecutionError) {
	for _, dep := range c.Dependencies {
		if !known(dep) {
			return value{}, failf(ir.ErrKindObjectNotFound, cmd, "dependency %s is not published", dep.ShortString())
		}
	}
	pkg := s.createPackage(c.Modules)
	return s.createUpgradeCap(pkg, 1), nil
}

func (s *state) createPackage(modules [][]byte) *live {
	encoded := make([][]byte, len(modules))
	for i, m := range modules {
		encoded[i] = pure.Bytes(m)
	}
	l := s.create(PackageType, pure.Vector(encoded...))
	l.obj.Owner = ir.ImmutableOwner()
	l.pending = false
	return l
}

func (s *state) createUpgradeCap(pkg *live, version uint64) value {
	contents := make([]byte, 0, ir.AddressLength+8)
	contents = append(contents, pkg.obj.ID[:]...)
	contents = append(contents, pure.U64(version)...)
	return objectValue(s.create(UpgradeCapType, contents))
}

func (s *state) upgrade(cmd int, c ir.Upgrade) (value, *ir.ExecutionError) {
	capObj, err := s.borrow(c.Ticket, cmd, true)
	if err != nil {
		return value{}, err
	}
	if ir.StructNameOf(capObj.obj.Type) != "UpgradeCap" || len(capObj.obj.Bytes) < 2*ir.AddressLength+8 {
		return value{}, failf(ir.ErrKindTypeMismatch, cmd, "ticket %s is %s, expected an upgrade capability", capObj.obj.ID.ShortString(), capObj.obj.Type)
	}
	authorized, _ := ir.AddressFromBytes(capObj.obj.Bytes[ir.AddressLength : 2*ir.AddressLength])
	if authorized != c.Package {
		return value{}, failf(ir.ErrKindInvalidInput, cmd, "ticket authorizes %s, not %s", authorized.ShortString(), c.Package.ShortString())
	}
	pkg := s.createPackage(c.Modules)
	version := binary.LittleEndian.Uint64(capObj.obj.Bytes[2*ir.AddressLength:])
	copy(capObj.obj.Bytes[ir.AddressLength:], pkg.obj.ID[:])
	binary.LittleEndian.PutUint64(capObj.obj.Bytes[2*ir.AddressLength:], version+1)
	return pureValue(pure.Address(pkg.obj.ID)), nil
}

func (s *state) receive(cmd int, c ir.AcquireReceived, l *live) (value, *ir.ExecutionError) {
	if l == nil {
		return value{}, failf(ir.ErrKindObjectNotFound, cmd, "object %s not found", c.ObjectID.ShortString())
	}
	if l.obj.Owner.Kind != ir.OwnerObject {
		return value{}, failf(ir.ErrKindOwnership, cmd, "object %s is %s, not sent to an object", c.ObjectID.ShortString(), l.obj.Owner)
	}
	if !s.holdsMutably(l.obj.Owner.Address) {
		return value{}, failf(ir.ErrKindOwnership, cmd, "parent %s is not a mutable input of this block", l.obj.Owner.Address.ShortString())
	}
	if c.Type != nil && !sameType(l.obj.Type, c.Type.String()) {
		return value{}, failf(ir.ErrKindTypeMismatch, cmd, "object %s is %s, expected %s", c.ObjectID.ShortString(), l.obj.Type, c.Type)
	}
	s.clock.observe(uint64(l.obj.Version))
	s.track(l)
	l.pending = true
	l.written = true
	return objectValue(l), nil
}

func (s *state) holdsMutably(id ir.ObjectID) bool {
	for i := range s.inputs {
		in := &s.inputs[i]
		if in.val.kind == valObject && in.val.obj == id && in.writable() {
			return true
		}
	}
	return false
}

func (s *state) isObject(id ir.Address) bool {
	if _, ok := s.objects[id]; ok {
		return true
	}
	_, ok := s.store.Lookup(id)
	return ok
}
