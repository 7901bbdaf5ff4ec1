package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/pure"
)

func TestBuilderSplitAndTransfer(t *testing.T) {
	bld := NewBuilder()
	coin := bld.Object(ir.ObjectHandle{ID: coinID, Version: 1}, ir.Owned())
	a := bld.Pure(pure.U64(10))
	b := bld.Pure(pure.U64(20))
	parts := bld.Split(coin, a, b)
	require.Len(t, parts, 2)
	assert.Equal(t, ir.ResultArg(0, 1), parts[1])

	to := bld.Pure(pure.Address(ir.MustAddress("0xbeef")))
	bld.Transfer(to, parts...)

	blk, err := bld.Build()
	require.NoError(t, err)
	assert.Equal(t, 4, blk.NumInputs())
	require.Equal(t, 2, blk.NumCommands())
	transfer := blk.Commands()[1].(ir.TransferOwnership)
	assert.Equal(t, ir.InputArg(3), transfer.Recipient)
}

func TestBuilderDeduplicatesObjects(t *testing.T) {
	bld := NewBuilder()
	h := ir.ObjectHandle{ID: sharedID, Version: 2}
	first := bld.Object(h, ir.Shared(true))
	second := bld.Object(h, ir.Shared(true))
	assert.Equal(t, first, second)

	bld.Invoke(testPkg, "m", "touch", nil, []ir.Argument{first}, 0)
	blk, err := bld.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, blk.NumInputs())
}

func TestBuilderConflictingObject(t *testing.T) {
	bld := NewBuilder()
	bld.Object(ir.ObjectHandle{ID: sharedID, Version: 2}, ir.Shared(true))
	bld.Object(ir.ObjectHandle{ID: sharedID, Version: 2}, ir.ImmRef())
	bld.Invoke(testPkg, "m", "touch", nil, nil, 0)

	_, err := bld.Build()
	assert.Equal(t, ErrCodeBadInput, CodeOf(err))
}

func TestBuilderInvokeResults(t *testing.T) {
	bld := NewBuilder()
	res := bld.Invoke(testPkg, "pool", "open", []ir.TypeTag{ir.MustTypeTag("0x2::sui::SUI")}, nil, 2)
	assert.Equal(t, []ir.Argument{ir.ResultArg(0, 0), ir.ResultArg(0, 1)}, res.All())
	assert.Equal(t, 0, res.Index())

	vec := bld.Collection(nil, res.Nth(0), res.Nth(1))
	bld.Invoke(testPkg, "pool", "close", nil, []ir.Argument{vec}, 0)

	blk, err := bld.Build()
	require.NoError(t, err)
	assert.Equal(t, 3, blk.NumCommands())
}

func TestBuilderReportsValidationThroughWrap(t *testing.T) {
	bld := NewBuilder()
	bld.Invoke(testPkg, "m", "f", nil, []ir.Argument{ir.ResultArg(3, 0)}, 0)
	_, err := bld.Build()
	require.Error(t, err)
	assert.Equal(t, ErrCodeForwardRef, CodeOf(err))
	assert.Contains(t, err.Error(), "build block")
}
