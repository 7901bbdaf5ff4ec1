package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandOutputs(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want int
	}{
		{"invoke declared returns", Invoke{Returns: 2}, 2},
		{"transfer", TransferOwnership{Objects: []Argument{InputArg(0)}, Recipient: InputArg(1)}, 0},
		{"split per amount", SplitValue{Source: InputArg(0), Amounts: []Argument{InputArg(1), InputArg(2), InputArg(3)}}, 3},
		{"merge", MergeValues{Destination: InputArg(0), Sources: []Argument{InputArg(1)}}, 0},
		{"collection", BuildCollection{Elements: []Argument{InputArg(0)}}, 1},
		{"publish", Publish{}, 1},
		{"upgrade", Upgrade{Ticket: ResultArg(0, 0)}, 1},
		{"receive", AcquireReceived{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.Outputs())
		})
	}
}

func TestCommandReferencesOrder(t *testing.T) {
	transfer := TransferOwnership{
		Objects:   []Argument{ResultArg(0, 0), ResultArg(0, 1)},
		Recipient: InputArg(2),
	}
	assert.Equal(t, []Argument{ResultArg(0, 0), ResultArg(0, 1), InputArg(2)}, transfer.References())

	split := SplitValue{Source: InputArg(0), Amounts: []Argument{InputArg(1)}}
	assert.Equal(t, []Argument{InputArg(0), InputArg(1)}, split.References())

	assert.Empty(t, Publish{}.References())
}

func TestCommandKindNames(t *testing.T) {
	assert.Equal(t, "MoveCall", Invoke{}.Kind().String())
	assert.Equal(t, "TransferObjects", TransferOwnership{}.Kind().String())
	assert.Equal(t, "SplitCoins", SplitValue{}.Kind().String())
	assert.Equal(t, "MergeCoins", MergeValues{}.Kind().String())
	assert.Equal(t, "MakeMoveVec", BuildCollection{}.Kind().String())
	assert.Equal(t, "Receive", AcquireReceived{}.Kind().String())
}

func TestInvokeTarget(t *testing.T) {
	c := Invoke{Package: MustAddress("0xabc"), Module: "registry", Function: "register"}
	assert.Equal(t, "0xabc::registry::register", c.Target())
}

func TestParseArgument(t *testing.T) {
	tests := []struct {
		in   string
		want Argument
	}{
		{"Input(0)", InputArg(0)},
		{"Input( 12 )", InputArg(12)},
		{"Result(1, 0)", ResultArg(1, 0)},
		{"Result(3,2)", ResultArg(3, 2)},
		{"Result(4)", ResultArg(4, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseArgument(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{
		"", "Gas", "Input(x)", "Result()",
		"Result(1,2", "Result(1,2,3)", "Input(0)junk", "Result(3)x",
		"Input(1,2)", "Input(-1)", "xInput(0)", "Result(99999999999999999999)",
	} {
		_, err := ParseArgument(bad)
		assert.Error(t, err, bad)
	}
}

func TestArgumentStringRoundTrip(t *testing.T) {
	for _, a := range []Argument{InputArg(3), ResultArg(2, 1)} {
		parsed, err := ParseArgument(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
	assert.Equal(t, "[Input(0), Result(1, 0)]", FormatArguments([]Argument{InputArg(0), ResultArg(1, 0)}))
}

func TestAccessModeStrings(t *testing.T) {
	for _, m := range []AccessMode{ImmRef(), MutRef(), Owned(), Shared(true), Shared(false), Receiving()} {
		parsed, err := ParseAccessMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseAccessMode("Borrowed")
	assert.Error(t, err)
}

func TestAccessModeRequiresVersion(t *testing.T) {
	assert.True(t, MutRef().RequiresVersion())
	assert.True(t, Shared(false).RequiresVersion())
	assert.False(t, Owned().RequiresVersion())
	assert.False(t, ImmRef().RequiresVersion())
	assert.False(t, Receiving().RequiresVersion())

	assert.True(t, Shared(true).Writes())
	assert.False(t, Shared(false).Writes())
	assert.False(t, ImmRef().Writes())
}

func TestExecutionErrorMessage(t *testing.T) {
	abort := &ExecutionError{Kind: ErrKindAbort, Command: 1, Message: "registry::register", AbortCode: 3}
	assert.Equal(t, "MOVE_ABORT in command 1: registry::register (abort code 3)", abort.Error())

	gas := &ExecutionError{Kind: ErrKindOutOfGas, Command: -1, Message: "budget 10 exhausted"}
	assert.Equal(t, "OUT_OF_GAS: budget 10 exhausted", gas.Error())

	failed := FailedResult(gas)
	assert.False(t, failed.Success)
	assert.Empty(t, failed.Created)
	assert.Zero(t, failed.GasUsed)
}
