// Package engine is the execution boundary for transaction blocks.
//
// Engine is the narrow contract the rest of the system depends on:
// submit a validated block on behalf of a sender and receive an
// ir.ExecutionResult. Simulator is an in-process implementation that runs
// commands left to right against an objstore.Memory. Package functions are
// not bytecode; their observable effects are declared by manifests.
//
// Execution is atomic. A failed block reports its structured error with no
// gas and no effects, and leaves the store untouched.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/roach88/txblock/internal/block"
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/objstore"
	"github.com/roach88/txblock/internal/pure"
)

// Engine executes blocks. The returned error is reserved for
// infrastructure failures such as a cancelled context; execution failures
// are carried by the result.
type Engine interface {
	Submit(ctx context.Context, b *block.Block, sender ir.Address) (ir.ExecutionResult, error)
}

// Simulator executes blocks against an in-memory object store.
//
// Submissions are serialized: one block is in flight at a time.
type Simulator struct {
	mu       sync.Mutex
	store    *objstore.Memory
	registry *registry
	clock    *Clock
	budget   uint64
	logger   *slog.Logger
}

var _ Engine = (*Simulator)(nil)

// Option configures a Simulator.
type Option func(*Simulator)

// WithGasBudget sets the per-block gas budget.
//
// Default: 50_000_000 (DefaultGasBudget).
func WithGasBudget(budget uint64) Option {
	return func(s *Simulator) {
		s.budget = budget
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		s.logger = l
	}
}

// WithClock resumes submission numbering from an existing clock.
func WithClock(c *Clock) Option {
	return func(s *Simulator) {
		s.clock = c
	}
}

// NewSimulator creates a simulator over store.
func NewSimulator(store *objstore.Memory, opts ...Option) *Simulator {
	s := &Simulator{
		store:    store,
		registry: newRegistry(),
		clock:    NewClock(),
		budget:   DefaultGasBudget,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs the functions of a package manifest.
func (s *Simulator) Register(m ir.PackageManifest) error {
	if err := s.registry.register(m); err != nil {
		return err
	}
	s.logger.Debug("package registered", "package", m.Name, "address", m.Address.ShortString(), "functions", len(m.Functions))
	return nil
}

// Mint seeds a coin of the given balance owned by owner and returns its id.
func (s *Simulator) Mint(owner ir.Address, amount uint64) (ir.ObjectID, error) {
	seq := s.clock.Next()
	digest, err := ir.ContentDigest(ir.DomainObject, ir.Object{
		"mint":  ir.Str(strconv.FormatUint(seq, 10)),
		"owner": ir.Str(owner.String()),
	})
	if err != nil {
		return ir.ObjectID{}, fmt.Errorf("mint: %w", err)
	}
	id := ir.DeriveObjectID(digest, 0)
	contents := make([]byte, 0, coinLength)
	contents = append(contents, id[:]...)
	contents = append(contents, pure.U64(amount)...)
	if err := s.store.Load(id, contents, CoinType, false, false, 1, objstore.WithOwner(owner)); err != nil {
		return ir.ObjectID{}, fmt.Errorf("mint: %w", err)
	}
	return id, nil
}

// Submit executes b for sender.
func (s *Simulator) Submit(ctx context.Context, b *block.Block, sender ir.Address) (ir.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return ir.ExecutionResult{}, fmt.Errorf("submit: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.clock.Next()
	txDigest, err := ir.ContentDigest(ir.DomainBlock, ir.Object{
		"block":  ir.Str(b.Digest().Hex()),
		"sender": ir.Str(sender.String()),
		"seq":    ir.Str(strconv.FormatUint(seq, 10)),
	})
	if err != nil {
		return ir.ExecutionResult{}, fmt.Errorf("submit: %w", err)
	}
	var created uint64
	newID := func() ir.ObjectID {
		id := ir.DeriveObjectID(txDigest, created)
		created++
		return id
	}

	s.logger.Debug("executing block",
		"digest", b.Digest().String(),
		"sender", sender.ShortString(),
		"inputs", b.NumInputs(),
		"commands", b.NumCommands())

	st := newState(s.store, sender, b.NumInputs(), newID)
	gas := NewGasMeter(s.budget)

	if fail := s.loadInputs(st, b); fail != nil {
		return s.failed(b, fail), nil
	}
	for i, cmd := range b.Commands() {
		if err := ctx.Err(); err != nil {
			return ir.ExecutionResult{}, fmt.Errorf("submit: command %d: %w", i, err)
		}
		if fail := gas.Charge(i, commandCost(cmd)); fail != nil {
			return s.failed(b, fail), nil
		}
		outs, fail := s.execute(st, i, cmd)
		if fail != nil {
			return s.failed(b, fail), nil
		}
		if len(outs) != cmd.Outputs() {
			return s.failed(b, failf(ir.ErrKindInvalidInput, i, "produced %d outputs, declared %d", len(outs), cmd.Outputs())), nil
		}
		slots := make([]slot, len(outs))
		for j, v := range outs {
			slots[j] = slot{val: v}
		}
		st.results = append(st.results, slots)
	}

	res, changes, fail := st.effects(gas)
	if fail != nil {
		return s.failed(b, fail), nil
	}
	if err := s.store.Apply(changes); err != nil {
		return ir.ExecutionResult{}, fmt.Errorf("submit: commit effects: %w", err)
	}

	s.logger.Info("block executed",
		"digest", b.Digest().String(),
		"gas_used", res.GasUsed,
		"created", len(res.Created),
		"mutated", len(res.Mutated),
		"deleted", len(res.Deleted))
	return res, nil
}

func (s *Simulator) failed(b *block.Block, fail *ir.ExecutionError) ir.ExecutionResult {
	s.logger.Info("block failed", "digest", b.Digest().String(), "error", fail.Error())
	return ir.FailedResult(fail)
}

// loadInputs materializes the input table, checking each object's
// existence, version and ownership against the access mode.
func (s *Simulator) loadInputs(st *state, b *block.Block) *ir.ExecutionError {
	for i, in := range b.Inputs() {
		if !in.IsObject() {
			st.inputs = append(st.inputs, slot{val: pureValue(in.Pure), input: true})
			continue
		}
		id := in.Object.ID
		if _, dup := st.objects[id]; dup {
			return failf(ir.ErrKindInvalidInput, -1, "input %d: object %s appears twice", i, id.ShortString())
		}
		obj, ok := s.store.Lookup(id)
		if !ok {
			return failf(ir.ErrKindObjectNotFound, -1, "input %d: object %s not found", i, id.ShortString())
		}
		if in.Object.Version != 0 && in.Object.Version != obj.Version {
			return failf(ir.ErrKindInvalidInput, -1, "input %d: object %s is at version %d, block has %d", i, id.ShortString(), obj.Version, in.Object.Version)
		}
		if err := checkOwnership(i, in.Mode, obj, st.sender); err != nil {
			return err
		}
		st.clock.observe(uint64(obj.Version))
		st.track(&live{obj: obj, input: true, written: in.Mode.Writes()})
		st.inputs = append(st.inputs, slot{val: objectValue(st.objects[id]), mode: in.Mode, input: true})
	}
	return nil
}

func checkOwnership(i int, mode ir.AccessMode, obj objstore.Object, sender ir.Address) *ir.ExecutionError {
	ownedBySender := obj.Owner.Kind == ir.OwnerAddress && obj.Owner.Address == sender
	var ok bool
	switch mode.Kind {
	case ir.AccessImmRef:
		ok = ownedBySender || obj.Owner.Kind == ir.OwnerShared || obj.Owner.Kind == ir.OwnerImmutable
	case ir.AccessMutRef, ir.AccessOwned:
		ok = ownedBySender
	case ir.AccessShared:
		ok = obj.Owner.Kind == ir.OwnerShared
	case ir.AccessReceiving:
		ok = obj.Owner.Kind == ir.OwnerObject
	}
	if !ok {
		return failf(ir.ErrKindOwnership, -1, "input %d: %s access to %s owned by %s", i, mode, obj.ID.ShortString(), obj.Owner)
	}
	return nil
}

// execute dispatches one command. The switch must stay exhaustive over
// the command set.
func (s *Simulator) execute(st *state, i int, cmd ir.Command) ([]value, *ir.ExecutionError) {
	switch c := cmd.(type) {
	case ir.Invoke:
		fn, ok := s.registry.lookup(c.Package, c.Module, c.Function)
		if !ok {
			return nil, failf(ir.ErrKindFunctionNotFound, i, "%s is not registered", c.Target())
		}
		return st.invoke(i, c, fn)
	case ir.TransferOwnership:
		return nil, st.transfer(i, c)
	case ir.SplitValue:
		return st.split(i, c)
	case ir.MergeValues:
		return nil, st.merge(i, c)
	case ir.BuildCollection:
		v, err := st.collection(i, c)
		return []value{v}, err
	case ir.Publish:
		v, err := st.publish(i, c, s.isPackage)
		return []value{v}, err
	case ir.Upgrade:
		v, err := st.upgrade(i, c)
		return []value{v}, err
	case ir.AcquireReceived:
		var l *live
		if obj, ok := s.store.Lookup(c.ObjectID); ok {
			l = &live{obj: obj}
		}
		v, err := st.receive(i, c, l)
		return []value{v}, err
	default:
		return nil, failf(ir.ErrKindInvalidInput, i, "unsupported command %s", cmd.Kind())
	}
}

func (s *Simulator) isPackage(id ir.ObjectID) bool {
	if id == ir.StdAddress || id == ir.FrameworkAddress || s.registry.hasPackage(id) {
		return true
	}
	obj, ok := s.store.Lookup(id)
	return ok && obj.Type == PackageType
}

func commandCost(cmd ir.Command) uint64 {
	switch c := cmd.(type) {
	case ir.Invoke:
		return InvokeCost
	case ir.Publish:
		return CommandCost + ModuleByteCost*moduleBytes(c.Modules)
	case ir.Upgrade:
		return CommandCost + ModuleByteCost*moduleBytes(c.Modules)
	default:
		return CommandCost
	}
}

func moduleBytes(mods [][]byte) uint64 {
	var n uint64
	for _, m := range mods {
		n += uint64(len(m))
	}
	return n
}

// effects stamps versions, settles pending objects and assembles the
// result and change set. Lists are sorted by id: the engine does not
// report creation order.
func (st *state) effects(gas *GasMeter) (ir.ExecutionResult, objstore.ChangeSet, *ir.ExecutionError) {
	version := ir.Version(st.clock.next())
	res := ir.ExecutionResult{
		Success: true,
		Created: []ir.ObjectID{},
		Mutated: []ir.ObjectID{},
		Deleted: []ir.ObjectID{},
		Events:  st.events,
	}
	if res.Events == nil {
		res.Events = []ir.Event{}
	}
	var changes objstore.ChangeSet

	ids := slices.Clone(st.order)
	slices.SortFunc(ids, func(a, b ir.ObjectID) int { return a.Compare(b) })
	var storage uint64
	for _, id := range ids {
		l := st.objects[id]
		if l.deleted {
			res.Deleted = append(res.Deleted, id)
			changes.Deleted = append(changes.Deleted, id)
			continue
		}
		if !l.written {
			continue
		}
		if l.pending {
			l.obj.Owner = ir.AddressOwner(st.sender)
		}
		if l.created && l.obj.Owner.Kind == ir.OwnerShared {
			l.obj.Owner = ir.SharedOwner(version)
		}
		l.obj.Version = version
		if l.created {
			res.Created = append(res.Created, id)
		} else {
			res.Mutated = append(res.Mutated, id)
		}
		changes.Written = append(changes.Written, l.obj)
		storage += ObjectBaseCost + StorageByteCost*uint64(len(l.obj.Bytes))
	}

	if fail := gas.Charge(-1, storage); fail != nil {
		return ir.ExecutionResult{}, objstore.ChangeSet{}, fail
	}
	res.GasUsed = gas.Used()
	return res, changes, nil
}
