package session

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txblock/internal/block"
	"github.com/roach88/txblock/internal/effects"
	"github.com/roach88/txblock/internal/engine"
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/manifest"
	"github.com/roach88/txblock/internal/objstore"
	"github.com/roach88/txblock/internal/pure"
	"github.com/roach88/txblock/internal/resolve"
	"github.com/roach88/txblock/internal/trace"
)

var (
	alice = ir.MustAddress("0xa11ce")
	bob   = ir.MustAddress("0xb0b")
	pkg   = ir.MustAddress("0xcafe")
)

const fundManifest = `
manifest: fund: {
	address: "0xcafe"
	module: fund: {
		open: {
			params: ["Coin<SUI>"]
			consumes: [0]
			creates: [
				{type: "0xcafe::fund::Capability", owner: "sender"},
				{type: "0xcafe::fund::Position", owner: "sender"},
			]
		}
		create_pool: {
			returns: 1
			creates: [
				{type: "0xcafe::fund::Pool", owner: "shared"},
				{type: "0xcafe::fund::AdminCap", owner: "returned"},
			]
		}
		deposit: {
			params: ["&mut Pool", "u64"]
			abort: {arg: 1, above: 1000, code: 7}
		}
	}
}
`

type fixture struct {
	session *Session
	sim     *engine.Simulator
	store   *objstore.Memory
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := objstore.NewMemory()
	require.NoError(t, store.Clock(1_700_000_000_000))
	sim := engine.NewSimulator(store, engine.WithLogger(logger))

	manifests, err := manifest.CompileSource("fund.cue", []byte(fundManifest))
	require.NoError(t, err)
	for _, m := range manifests {
		require.NoError(t, sim.Register(m))
	}

	s := New(store, sim, trace.NewRecorder(), WithSender(alice), WithLogger(logger))
	return fixture{session: s, sim: sim, store: store}
}

func (f fixture) openFund(t *testing.T) (*block.Block, ir.ExecutionResult) {
	t.Helper()
	coin, err := f.sim.Mint(alice, 500)
	require.NoError(t, err)
	h, err := f.session.Resolve(coin)
	require.NoError(t, err)

	b := f.session.Builder()
	b.Invoke(pkg, "fund", "open", nil, []ir.Argument{b.Object(h, ir.Owned())}, 0)
	blk, err := b.Build()
	require.NoError(t, err)

	res, err := f.session.Execute(context.Background(), "fund", "open", blk)
	require.NoError(t, err)
	require.True(t, res.Success, "error: %v", res.Error)
	return blk, res
}

func TestExecute_RecordsEntry(t *testing.T) {
	f := newFixture(t)
	_, res := f.openFund(t)

	require.Len(t, res.Created, 2)
	entries := f.session.Recorder().Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "fund", e.Flow)
	assert.Equal(t, "open", e.Label)
	assert.Equal(t, alice.String(), e.Sender)
	assert.Equal(t, "Owned", e.Inputs[0].InputType)
	require.Len(t, e.Outputs.CreatedObjects, 2)
	for _, co := range e.Outputs.CreatedObjects {
		assert.Equal(t, ir.AddressOwner(alice).String(), co.Owner)
		assert.NotEqual(t, "unknown", co.ObjectType)
	}
}

func TestExecute_ClassifyPosition(t *testing.T) {
	f := newFixture(t)
	_, res := f.openFund(t)

	pos, err := f.session.Classify(res, effects.ByStructuralType("Position"))
	require.NoError(t, err)
	obj, ok := f.store.Lookup(pos)
	require.True(t, ok)
	assert.Equal(t, "0xcafe::fund::Position", obj.Type)

	ids, err := f.session.ClassifyAll(res, effects.ByStructuralType("Capability"), effects.ByStructuralType("Position"))
	require.NoError(t, err)
	assert.Equal(t, pos, ids[1])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestExecute_ConsumedInputFailsResolution(t *testing.T) {
	f := newFixture(t)
	blk, _ := f.openFund(t)

	res, err := f.session.Execute(context.Background(), "fund", "open again", blk)
	require.Error(t, err)
	assert.True(t, resolve.IsNotFound(err))
	assert.True(t, resolve.IsResolutionError(err))
	assert.False(t, res.Success)
	assert.Equal(t, 1, f.session.Recorder().Len(), "rejected blocks are not recorded")
}

func TestExecute_MutatedInputIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.session.Builder()
	b.Invoke(pkg, "fund", "create_pool", nil, nil, 1)
	blk, err := b.Build()
	require.NoError(t, err)
	res, err := f.session.Execute(ctx, "pool", "create", blk)
	require.NoError(t, err)
	require.True(t, res.Success, "error: %v", res.Error)

	poolID, err := f.session.Classify(res, effects.PreferShared())
	require.NoError(t, err)
	pool, err := f.session.Resolve(poolID)
	require.NoError(t, err)

	b = f.session.Builder()
	b.Invoke(pkg, "fund", "deposit", nil, []ir.Argument{b.Object(pool, ir.Shared(true)), b.Pure(pure.U64(10))}, 0)
	deposit, err := b.Build()
	require.NoError(t, err)

	res, err = f.session.Execute(ctx, "pool", "deposit", deposit)
	require.NoError(t, err)
	require.True(t, res.Success, "error: %v", res.Error)

	_, err = f.session.Execute(ctx, "pool", "deposit again", deposit)
	require.Error(t, err)
	assert.True(t, resolve.IsStale(err))

	// Rebuilding from the stale handle is caught by the builder too.
	b = f.session.Builder()
	b.Invoke(pkg, "fund", "deposit", nil, []ir.Argument{b.Object(pool, ir.Shared(true)), b.Pure(pure.U64(10))}, 0)
	_, err = b.Build()
	require.Error(t, err)
	assert.Equal(t, block.ErrCodeStaleVersion, block.CodeOf(err))

	// Re-resolving succeeds.
	fresh, err := f.session.Resolve(poolID)
	require.NoError(t, err)
	assert.Greater(t, fresh.Version, pool.Version)
}

func TestExecute_FailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.session.Builder()
	b.Invoke(pkg, "fund", "create_pool", nil, nil, 1)
	blk, err := b.Build()
	require.NoError(t, err)
	res, err := f.session.Execute(ctx, "pool", "create", blk)
	require.NoError(t, err)
	poolID, err := f.session.Classify(res, effects.PreferShared())
	require.NoError(t, err)
	pool, err := f.session.Resolve(poolID)
	require.NoError(t, err)

	b = f.session.Builder()
	b.Invoke(pkg, "fund", "deposit", nil, []ir.Argument{b.Object(pool, ir.Shared(true)), b.Pure(pure.U64(5000))}, 0)
	over, err := b.Build()
	require.NoError(t, err)

	res, err = f.session.Execute(ctx, "pool", "over-deposit", over)
	require.NoError(t, err, "execution failures are results, not errors")
	require.False(t, res.Success)
	assert.Equal(t, ir.ErrKindAbort, res.Error.Kind)
	assert.Equal(t, uint64(7), res.Error.AbortCode)

	_, err = f.session.Classify(res, effects.FirstCreated())
	assert.True(t, effects.IsNotFound(err))

	entries := f.session.Recorder().Entries()
	require.Len(t, entries, 2)
	assert.False(t, entries[1].Outputs.Success)
	assert.Contains(t, entries[1].Outputs.Error, "MOVE_ABORT")
}

func TestSetSender(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, alice, f.session.Sender())

	coin, err := f.sim.Mint(bob, 10)
	require.NoError(t, err)
	h, err := f.session.Resolve(coin)
	require.NoError(t, err)

	b := f.session.Builder()
	b.Transfer(b.Pure(pure.Address(alice)), b.Object(h, ir.Owned()))
	blk, err := b.Build()
	require.NoError(t, err)

	res, err := f.session.Execute(context.Background(), "", "as alice", blk)
	require.NoError(t, err)
	assert.False(t, res.Success, "alice cannot spend bob's coin")
	assert.Equal(t, ir.ErrKindOwnership, res.Error.Kind)

	f.session.SetSender(bob)
	res, err = f.session.Execute(context.Background(), "", "as bob", blk)
	require.NoError(t, err)
	require.True(t, res.Success, "error: %v", res.Error)

	obj, ok := f.store.Lookup(coin)
	require.True(t, ok)
	assert.Equal(t, ir.AddressOwner(alice), obj.Owner)
}

func TestExecute_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := f.session.Builder()
	b.Invoke(pkg, "fund", "create_pool", nil, nil, 1)
	blk, err := b.Build()
	require.NoError(t, err)

	_, err = f.session.Execute(ctx, "", "cancelled", blk)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.session.Recorder().Len())
}
