package engine

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txblock/internal/block"
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/objstore"
	"github.com/roach88/txblock/internal/pure"
)

var (
	alice = ir.MustAddress("0xa11ce")
	bob   = ir.MustAddress("0xb0b")
	pkg   = ir.MustAddress("0xcafe")
)

func demoManifest() ir.PackageManifest {
	return ir.PackageManifest{
		Name:    "demo",
		Address: pkg,
		Functions: []ir.FunctionSpec{
			{
				Module:  "registry",
				Name:    "register",
				Params:  []string{"vector<u8>"},
				Creates: []ir.CreateSpec{{Type: "0xcafe::registry::Entry", Owner: ir.PlaceSender}},
				Emits:   []string{"Registered"},
			},
			{
				Module:   "fund",
				Name:     "open",
				Params:   []string{"Coin<SUI>"},
				Consumes: []int{0},
				Creates: []ir.CreateSpec{
					{Type: "0xcafe::fund::Capability", Owner: ir.PlaceSender},
					{Type: "0xcafe::fund::Position", Owner: ir.PlaceSender},
				},
			},
			{
				Module:  "fund",
				Name:    "create_pool",
				Returns: 1,
				Creates: []ir.CreateSpec{
					{Type: "0xcafe::fund::Pool", Owner: ir.PlaceShared},
					{Type: "0xcafe::fund::AdminCap", Owner: ir.PlaceReturned},
				},
			},
			{
				Module: "fund",
				Name:   "deposit",
				Params: []string{"&mut Pool", "u64"},
				Abort:  &ir.AbortRule{Arg: 1, Above: 1000, Code: 7},
				Emits:  []string{"fund::Deposited"},
			},
			{
				Module: "fund",
				Name:   "peek",
				Params: []string{"&Clock"},
			},
		},
	}
}

func newTestSimulator(t *testing.T, opts ...Option) (*Simulator, *objstore.Memory) {
	t.Helper()
	store := objstore.NewMemory()
	require.NoError(t, store.Clock(1_700_000_000_000))
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	sim := NewSimulator(store, opts...)
	require.NoError(t, sim.Register(demoManifest()))
	return sim, store
}

func mustHandle(t *testing.T, store *objstore.Memory, id ir.ObjectID) ir.ObjectHandle {
	t.Helper()
	obj, ok := store.Lookup(id)
	require.True(t, ok, "object %s", id)
	return obj.Handle()
}

func balanceOf(t *testing.T, store *objstore.Memory, id ir.ObjectID) uint64 {
	t.Helper()
	obj, ok := store.Lookup(id)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(obj.Bytes), 40)
	return binary.LittleEndian.Uint64(obj.Bytes[32:40])
}

func submit(t *testing.T, sim *Simulator, b *block.Builder, sender ir.Address) ir.ExecutionResult {
	t.Helper()
	blk, err := b.Build()
	require.NoError(t, err)
	res, err := sim.Submit(context.Background(), blk, sender)
	require.NoError(t, err)
	return res
}

func TestInvokeWithoutObjects(t *testing.T) {
	sim, store := newTestSimulator(t)

	b := block.NewBuilder()
	name := b.Pure(pure.String("alice"))
	b.Invoke(pkg, "registry", "register", nil, []ir.Argument{name}, 0)
	res := submit(t, sim, b, alice)

	require.True(t, res.Success, "error: %v", res.Error)
	require.Len(t, res.Created, 1)
	assert.Empty(t, res.Mutated)
	assert.Positive(t, res.GasUsed)

	entry, ok := store.Lookup(res.Created[0])
	require.True(t, ok)
	assert.Equal(t, "0xcafe::registry::Entry", entry.Type)
	assert.Equal(t, ir.AddressOwner(alice), entry.Owner)
	assert.Equal(t, ir.Version(1), entry.Version)

	require.Len(t, res.Events, 1)
	assert.Equal(t, "0xcafe::registry::Registered", res.Events[0].Type)
	assert.Equal(t, alice, res.Events[0].Sender)
}

func TestSplitAndTransfer(t *testing.T) {
	sim, store := newTestSimulator(t)
	coin, err := sim.Mint(alice, 1_000)
	require.NoError(t, err)

	b := block.NewBuilder()
	src := b.Object(mustHandle(t, store, coin), ir.Owned())
	parts := b.Split(src, b.Pure(pure.U64(100)), b.Pure(pure.U64(200)))
	b.Transfer(b.Pure(pure.Address(bob)), parts...)
	res := submit(t, sim, b, alice)

	require.True(t, res.Success, "error: %v", res.Error)
	assert.Len(t, res.Created, 2)
	assert.Equal(t, []ir.ObjectID{coin}, res.Mutated)
	assert.Equal(t, uint64(700), balanceOf(t, store, coin))

	var total uint64
	for _, id := range res.Created {
		obj, _ := store.Lookup(id)
		assert.Equal(t, ir.AddressOwner(bob), obj.Owner)
		assert.Equal(t, ir.Version(2), obj.Version)
		total += balanceOf(t, store, id)
	}
	assert.Equal(t, uint64(300), total)

	updated, _ := store.Lookup(coin)
	assert.Equal(t, ir.Version(2), updated.Version)
}

func TestFailedBlockIsNoOp(t *testing.T) {
	sim, store := newTestSimulator(t)
	coin, err := sim.Mint(alice, 50)
	require.NoError(t, err)
	before := store.Snapshot()

	b := block.NewBuilder()
	src := b.Object(mustHandle(t, store, coin), ir.Owned())
	b.Split(src, b.Pure(pure.U64(10)), b.Pure(pure.U64(41)))
	res := submit(t, sim, b, alice)

	assert.False(t, res.Success)
	assert.Equal(t, ir.ErrKindInsufficientBalance, KindOf(res))
	assert.Equal(t, 0, res.Error.Command)
	assert.Zero(t, res.GasUsed)
	assert.Empty(t, res.Created)
	assert.Empty(t, res.Mutated)
	assert.Equal(t, before, store.Snapshot())
}

func TestMergeDeletesSources(t *testing.T) {
	sim, store := newTestSimulator(t)
	a, err := sim.Mint(alice, 10)
	require.NoError(t, err)
	c, err := sim.Mint(alice, 32)
	require.NoError(t, err)

	b := block.NewBuilder()
	dst := b.Object(mustHandle(t, store, a), ir.MutRef())
	src := b.Object(mustHandle(t, store, c), ir.Owned())
	b.Merge(dst, src)
	res := submit(t, sim, b, alice)

	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, []ir.ObjectID{c}, res.Deleted)
	assert.Equal(t, []ir.ObjectID{a}, res.Mutated)
	assert.Equal(t, uint64(42), balanceOf(t, store, a))
	_, ok := store.Lookup(c)
	assert.False(t, ok)
}

func TestSharedCreationAndAbort(t *testing.T) {
	sim, store := newTestSimulator(t)

	b := block.NewBuilder()
	admin := b.Invoke(pkg, "fund", "create_pool", nil, nil, 1)
	b.Transfer(b.Pure(pure.Address(alice)), admin.Arg())
	res := submit(t, sim, b, alice)
	require.True(t, res.Success, "error: %v", res.Error)
	require.Len(t, res.Created, 2)

	var pool objstore.Object
	for _, id := range res.Created {
		obj, _ := store.Lookup(id)
		if ir.StructNameOf(obj.Type) == "Pool" {
			pool = obj
		}
	}
	require.Equal(t, ir.OwnerShared, pool.Owner.Kind)
	assert.Equal(t, pool.Version, pool.Owner.InitialVersion)

	t.Run("within limit", func(t *testing.T) {
		b := block.NewBuilder()
		p := b.Object(mustHandle(t, store, pool.ID), ir.Shared(true))
		b.Invoke(pkg, "fund", "deposit", nil, []ir.Argument{p, b.Pure(pure.U64(1000))}, 0)
		res := submit(t, sim, b, bob)
		require.True(t, res.Success, "error: %v", res.Error)
		assert.Equal(t, []ir.ObjectID{pool.ID}, res.Mutated)
		require.Len(t, res.Events, 1)
		assert.Equal(t, "0xcafe::fund::Deposited", res.Events[0].Type)
	})

	t.Run("policy violation aborts", func(t *testing.T) {
		b := block.NewBuilder()
		p := b.Object(mustHandle(t, store, pool.ID), ir.Shared(true))
		b.Invoke(pkg, "fund", "deposit", nil, []ir.Argument{p, b.Pure(pure.U64(5000))}, 0)
		res := submit(t, sim, b, bob)
		require.False(t, res.Success)
		assert.Equal(t, ir.ErrKindAbort, res.Error.Kind)
		assert.Equal(t, uint64(7), res.Error.AbortCode)
		assert.Equal(t, 0, res.Error.Command)
	})

	t.Run("immutable shared access cannot mutate", func(t *testing.T) {
		b := block.NewBuilder()
		p := b.Object(mustHandle(t, store, pool.ID), ir.Shared(false))
		b.Invoke(pkg, "fund", "deposit", nil, []ir.Argument{p, b.Pure(pure.U64(1))}, 0)
		res := submit(t, sim, b, bob)
		assert.Equal(t, ir.ErrKindOwnership, KindOf(res))
	})
}

func TestConsumedArgumentIsDeleted(t *testing.T) {
	sim, store := newTestSimulator(t)
	coin, err := sim.Mint(alice, 5)
	require.NoError(t, err)

	b := block.NewBuilder()
	c := b.Object(mustHandle(t, store, coin), ir.Owned())
	b.Invoke(pkg, "fund", "open", nil, []ir.Argument{c}, 0)
	res := submit(t, sim, b, alice)

	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, []ir.ObjectID{coin}, res.Deleted)
	assert.Len(t, res.Created, 2)
	v, consumed := store.Consumed(coin)
	assert.True(t, consumed)
	assert.Equal(t, ir.Version(1), v)
}

func TestExecutionErrors(t *testing.T) {
	sim, store := newTestSimulator(t)
	mine, err := sim.Mint(alice, 100)
	require.NoError(t, err)
	theirs, err := sim.Mint(bob, 100)
	require.NoError(t, err)

	tests := []struct {
		name  string
		build func(b *block.Builder)
		kind  ir.ErrorKind
	}{
		{
			name: "unknown function",
			build: func(b *block.Builder) {
				b.Invoke(pkg, "fund", "missing", nil, nil, 0)
			},
			kind: ir.ErrKindFunctionNotFound,
		},
		{
			name: "someone else's coin",
			build: func(b *block.Builder) {
				c := b.Object(mustHandle(t, store, theirs), ir.Owned())
				b.Transfer(b.Pure(pure.Address(alice)), c)
			},
			kind: ir.ErrKindOwnership,
		},
		{
			name: "split through immutable reference",
			build: func(b *block.Builder) {
				c := b.Object(mustHandle(t, store, mine), ir.ImmRef())
				b.Split(c, b.Pure(pure.U64(1)))
			},
			kind: ir.ErrKindOwnership,
		},
		{
			name: "transfer twice",
			build: func(b *block.Builder) {
				c := b.Object(mustHandle(t, store, mine), ir.Owned())
				to := b.Pure(pure.Address(bob))
				b.Transfer(to, c)
				b.Transfer(to, c)
			},
			kind: ir.ErrKindValueMoved,
		},
		{
			name: "moving a borrowed input",
			build: func(b *block.Builder) {
				c := b.Object(mustHandle(t, store, mine), ir.MutRef())
				b.Transfer(b.Pure(pure.Address(bob)), c)
			},
			kind: ir.ErrKindInvalidInput,
		},
		{
			name: "wrong argument type",
			build: func(b *block.Builder) {
				c := b.Object(mustHandle(t, store, mine), ir.ImmRef())
				b.Invoke(pkg, "fund", "peek", nil, []ir.Argument{c}, 0)
			},
			kind: ir.ErrKindTypeMismatch,
		},
		{
			name: "recipient is not an address",
			build: func(b *block.Builder) {
				c := b.Object(mustHandle(t, store, mine), ir.Owned())
				b.Transfer(b.Pure(pure.U64(1)), c)
			},
			kind: ir.ErrKindTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := block.NewBuilder()
			tt.build(b)
			res := submit(t, sim, b, alice)
			require.False(t, res.Success)
			assert.Equal(t, tt.kind, res.Error.Kind, "error: %v", res.Error)
		})
	}
}

func TestClockReadOnly(t *testing.T) {
	sim, store := newTestSimulator(t)

	b := block.NewBuilder()
	clk := b.Object(mustHandle(t, store, ir.ClockID), ir.Shared(false))
	b.Invoke(pkg, "fund", "peek", nil, []ir.Argument{clk}, 0)
	res := submit(t, sim, b, alice)

	require.True(t, res.Success, "error: %v", res.Error)
	assert.Empty(t, res.Mutated)
	obj, _ := store.Lookup(ir.ClockID)
	assert.Equal(t, ir.Version(1), obj.Version)
}

func TestUnusedValuesReturnToSender(t *testing.T) {
	sim, store := newTestSimulator(t)
	coin, err := sim.Mint(alice, 100)
	require.NoError(t, err)

	b := block.NewBuilder()
	src := b.Object(mustHandle(t, store, coin), ir.MutRef())
	b.Split(src, b.Pure(pure.U64(25)))
	res := submit(t, sim, b, alice)

	require.True(t, res.Success, "error: %v", res.Error)
	require.Len(t, res.Created, 1)
	obj, _ := store.Lookup(res.Created[0])
	assert.Equal(t, ir.AddressOwner(alice), obj.Owner)
}

func TestPublishAndUpgrade(t *testing.T) {
	sim, store := newTestSimulator(t)

	b := block.NewBuilder()
	b.Publish([][]byte{{0xa1, 0x1c}}, ir.StdAddress, ir.FrameworkAddress)
	res := submit(t, sim, b, alice)
	require.True(t, res.Success, "error: %v", res.Error)
	require.Len(t, res.Created, 2)

	var pkgID, capID ir.ObjectID
	for _, id := range res.Created {
		obj, _ := store.Lookup(id)
		switch obj.Type {
		case PackageType:
			pkgID = id
			assert.Equal(t, ir.OwnerImmutable, obj.Owner.Kind)
		case UpgradeCapType:
			capID = id
			assert.Equal(t, ir.AddressOwner(alice), obj.Owner)
		}
	}
	require.False(t, pkgID.IsZero())
	require.False(t, capID.IsZero())

	up := block.NewBuilder()
	ticket := up.Object(mustHandle(t, store, capID), ir.MutRef())
	up.Upgrade(pkgID, ticket, [][]byte{{0xb2}}, ir.FrameworkAddress)
	res = submit(t, sim, up, alice)
	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, []ir.ObjectID{capID}, res.Mutated)
	require.Len(t, res.Created, 1)

	t.Run("stale ticket", func(t *testing.T) {
		bad := block.NewBuilder()
		ticket := bad.Object(mustHandle(t, store, capID), ir.MutRef())
		bad.Upgrade(pkgID, ticket, [][]byte{{0xb3}})
		res := submit(t, sim, bad, alice)
		assert.Equal(t, ir.ErrKindInvalidInput, KindOf(res))
	})

	t.Run("unknown dependency", func(t *testing.T) {
		bad := block.NewBuilder()
		bad.Publish([][]byte{{1}}, ir.MustAddress("0xdead"))
		res := submit(t, sim, bad, alice)
		assert.Equal(t, ir.ErrKindObjectNotFound, KindOf(res))
	})
}

func TestReceiveFromObject(t *testing.T) {
	sim, store := newTestSimulator(t)
	parent, err := sim.Mint(alice, 1)
	require.NoError(t, err)
	child, err := sim.Mint(alice, 9)
	require.NoError(t, err)

	send := block.NewBuilder()
	c := send.Object(mustHandle(t, store, child), ir.Owned())
	send.Transfer(send.Pure(pure.Address(parent)), c)
	res := submit(t, sim, send, alice)
	require.True(t, res.Success, "error: %v", res.Error)
	obj, _ := store.Lookup(child)
	require.Equal(t, ir.ObjectOwner(parent), obj.Owner)

	recv := block.NewBuilder()
	recv.Object(mustHandle(t, store, parent), ir.MutRef())
	coinType := ir.MustTypeTag(CoinType)
	got := recv.Receive(child, &coinType)
	recv.Transfer(recv.Pure(pure.Address(bob)), got)
	res = submit(t, sim, recv, alice)
	require.True(t, res.Success, "error: %v", res.Error)
	assert.ElementsMatch(t, []ir.ObjectID{parent, child}, res.Mutated)

	obj, _ = store.Lookup(child)
	assert.Equal(t, ir.AddressOwner(bob), obj.Owner)
}

func TestOutOfGas(t *testing.T) {
	sim, _ := newTestSimulator(t, WithGasBudget(InvokeCost-1))

	b := block.NewBuilder()
	b.Invoke(pkg, "registry", "register", nil, []ir.Argument{b.Pure(pure.String("x"))}, 0)
	res := submit(t, sim, b, alice)
	assert.Equal(t, ir.ErrKindOutOfGas, KindOf(res))
	assert.Zero(t, res.GasUsed)
}

func TestIdenticalBlocksCreateDistinctObjects(t *testing.T) {
	sim, _ := newTestSimulator(t)
	b := block.NewBuilder()
	b.Invoke(pkg, "registry", "register", nil, []ir.Argument{b.Pure(pure.String("same"))}, 0)
	blk, err := b.Build()
	require.NoError(t, err)

	first, err := sim.Submit(context.Background(), blk, alice)
	require.NoError(t, err)
	second, err := sim.Submit(context.Background(), blk, alice)
	require.NoError(t, err)
	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.NotEqual(t, first.Created, second.Created)
}

func TestSubmitCancelled(t *testing.T) {
	sim, _ := newTestSimulator(t)
	b := block.NewBuilder()
	b.Invoke(pkg, "registry", "register", nil, []ir.Argument{b.Pure(pure.String("x"))}, 0)
	blk, err := b.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Submit(ctx, blk, alice)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegisterRejectsInvalidManifest(t *testing.T) {
	sim, _ := newTestSimulator(t)
	err := sim.Register(ir.PackageManifest{
		Name:    "broken",
		Address: ir.MustAddress("0xbad"),
		Functions: []ir.FunctionSpec{
			{Module: "m", Name: "f", Creates: []ir.CreateSpec{{Type: "0xbad::m::T", Owner: "nobody"}}},
		},
	})
	require.Error(t, err)
	assert.True(t, IsRegistryError(err))
	assert.Contains(t, err.Error(), "invalid owner")

	err = sim.Register(ir.PackageManifest{Name: "imposter", Address: pkg})
	assert.True(t, IsRegistryError(err))
}
