package harness

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/trace"
)

const manifestDir = "testdata/manifests"

func loadFundFlow(t *testing.T) *Scenario {
	t.Helper()
	s, err := LoadScenario("testdata/scenarios/fund_flow.yaml")
	require.NoError(t, err)
	return s
}

// parseInline parses scenario YAML and points it at the fund manifests.
func parseInline(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	dir, err := filepath.Abs(manifestDir)
	require.NoError(t, err)
	s.Manifests = []string{dir}
	return s
}

func TestRunWithGolden_FundFlow(t *testing.T) {
	require.NoError(t, RunWithGolden(t, loadFundFlow(t)))
}

func TestRun_FundFlow(t *testing.T) {
	result, err := Run(context.Background(), loadFundFlow(t))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 8)

	rejected := map[string]string{}
	for _, sr := range result.Steps {
		if sr.Rejected != "" {
			rejected[sr.Label] = sr.Rejected
			assert.False(t, sr.Executed, sr.Label)
		}
	}
	assert.Equal(t, map[string]string{
		"spend gas again":   RejectNotFound,
		"deposit again":     RejectStale,
		"forward reference": "E_FORWARD_REF",
	}, rejected)

	over := result.Steps[2]
	assert.True(t, over.Executed)
	assert.False(t, over.Success)
	assert.Equal(t, string(ir.ErrKindAbort), over.ErrorKind)
	assert.Equal(t, uint64(7), over.AbortCode)

	assert.Equal(t, trace.DefaultProtocol, result.Trace.Protocol)
	assert.Equal(t, "1700000000s", result.Trace.Timestamp)
	require.Len(t, result.Trace.Traces, 5)
	assert.Equal(t, "fund", result.Trace.Traces[0].Flow)
	assert.Equal(t, "positions", result.Trace.Traces[3].Flow)

	for _, name := range []string{"pool", "cap", "position", "admin"} {
		c, ok := result.Captures[name]
		require.True(t, ok, name)
		assert.NotEqual(t, ir.ObjectID{}, c.ID)
	}
	assert.Equal(t, "create pool", result.Captures["pool"].Step)
	assert.Equal(t, "0xcafe::fund::Pool", result.Captures["pool"].Type)
}

func TestRun_Coins(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/coins.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 9)

	byLabel := map[string]StepResult{}
	for _, sr := range result.Steps {
		byLabel[sr.Label] = sr
	}
	assert.Equal(t, 2, byLabel["split and pay"].Created)
	assert.Equal(t, 1, byLabel["merge extra"].Deleted)
	assert.Equal(t, string(ir.ErrKindInsufficientBalance), byLabel["overdraw"].ErrorKind)
	assert.Equal(t, 0, byLabel["collect amounts"].Created)
	assert.Equal(t, 1, byLabel["upgrade"].Created)
	assert.Equal(t, 2, byLabel["receive tip"].Mutated)
	assert.Equal(t, string(ir.ErrKindOwnership), byLabel["bob takes gas"].ErrorKind)

	assert.Equal(t, "package", result.Captures["package"].Type)
	assert.Equal(t, "0x2::package::UpgradeCap", result.Captures["upgrade_cap"].Type)
}

func TestRun_ExpectationMismatch(t *testing.T) {
	s := parseInline(t, `
name: mismatch
description: an abort the scenario did not expect
accounts:
  alice: "0xa11ce"
sender: alice
steps:
  - label: create pool
    commands:
      - invoke:
          target: "0xcafe::fund::create_pool"
    capture:
      pool: shared
  - label: over-deposit
    inputs:
      - object: $pool
        mode: SharedMut
      - type: u64
        value: 5000
    commands:
      - invoke:
          target: "0xcafe::fund::deposit"
          args: ["Input(0)", "Input(1)"]
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `step "over-deposit": expected success, got failure`)
}

func TestRun_RejectionNotExpected(t *testing.T) {
	s := parseInline(t, `
name: forward
description: a construction error with no rejection expected
accounts:
  alice: "0xa11ce"
sender: alice
steps:
  - label: forward reference
    inputs:
      - type: address
        value: alice
    commands:
      - transfer:
          objects: ["Result(1, 0)"]
          to: "Input(0)"
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "rejected before submission (E_FORWARD_REF)")
	assert.Empty(t, result.Trace.Traces)
}

func TestRun_CaptureMiss(t *testing.T) {
	s := parseInline(t, `
name: capture-miss
description: a capture hint that matches nothing
accounts:
  alice: "0xa11ce"
sender: alice
steps:
  - label: create pool
    commands:
      - invoke:
          target: "0xcafe::fund::create_pool"
    capture:
      nope: "type:Nope"
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "capture nope")
	assert.Empty(t, result.Captures)
}

func TestRun_AssertionFailure(t *testing.T) {
	s := parseInline(t, `
name: wrong-owner
description: final state that does not hold
accounts:
  alice: "0xa11ce"
  bob: "0xb0b"
sender: alice
coins:
  - name: gas
    amount: 10
steps:
  - label: create pool
    commands:
      - invoke:
          target: "0xcafe::fund::create_pool"
assertions:
  - type: final_state
    object: $gas
    owner: bob
  - type: trace_count
    label: create pool
    count: 2
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "assertions[0]: Assertion failed: final_state")
	assert.Contains(t, result.Errors[1], "assertions[1]: Assertion failed: trace_count")
}

func TestRun_UnknownObjectIsAnError(t *testing.T) {
	s := parseInline(t, `
name: unknown
description: references an object that was never named
sender: "0xa11ce"
steps:
  - label: use missing
    inputs:
      - object: $missing
    commands:
      - transfer:
          objects: ["Input(0)"]
          to: "Input(0)"
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "use missing"`)
	assert.Contains(t, err.Error(), "unknown object $missing")
}

func TestRun_WithoutFlowToken(t *testing.T) {
	s := parseInline(t, `
name: no-flow
description: entries carry no flow
sender: "0xa11ce"
steps:
  - label: create pool
    commands:
      - invoke:
          target: "0xcafe::fund::create_pool"
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace.Traces, 1)
	assert.Empty(t, result.Trace.Traces[0].Flow)
}

func TestRun_WithSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")

	result, err := Run(context.Background(), loadFundFlow(t),
		WithSink(trace.FileSink{Path: path}),
		WithProtocol("fund-test"),
	)
	require.NoError(t, err)

	doc, err := trace.ReadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "fund-test", doc.Protocol)
	assert.Equal(t, result.Trace.Timestamp, doc.Timestamp)
	require.Len(t, doc.Traces, len(result.Trace.Traces))
	for i := range doc.Traces {
		assert.Equal(t, result.Trace.Traces[i].Label, doc.Traces[i].Label)
	}
}

func TestRun_SinkFailureIsAWarning(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	path := filepath.Join(t.TempDir(), "missing-dir", "trace.json")

	result, err := Run(context.Background(), loadFundFlow(t),
		WithSink(trace.FileSink{Path: path}),
		WithLogger(logger),
	)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Steps, 8)
	assert.Len(t, result.Trace.Traces, 5)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "trace not persisted")
	assert.Contains(t, logs.String(), "trace flush failed")
}

func TestRun_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := Run(context.Background(), loadFundFlow(t), WithLogger(logger))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "captured object")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, loadFundFlow(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestCheckExpect(t *testing.T) {
	yes, no := true, false
	seven := uint64(7)

	tests := []struct {
		name   string
		expect *Expect
		sr     StepResult
		want   []string
	}{
		{"default success", nil, StepResult{Executed: true, Success: true}, nil},
		{"unexpected failure", nil, StepResult{Executed: true, ErrorKind: "OWNERSHIP"},
			[]string{"expected success, got failure"}},
		{"explicit failure", &Expect{Success: &no}, StepResult{Executed: true}, nil},
		{"error kind implies failure", &Expect{ErrorKind: "OWNERSHIP"}, StepResult{Executed: true, ErrorKind: "OWNERSHIP"}, nil},
		{"wrong error kind", &Expect{ErrorKind: "OWNERSHIP"}, StepResult{Executed: true, ErrorKind: "TYPE_MISMATCH"},
			[]string{`expected error kind OWNERSHIP, got "TYPE_MISMATCH"`}},
		{"abort code", &Expect{AbortCode: &seven}, StepResult{Executed: true, ErrorKind: string(ir.ErrKindAbort), AbortCode: 7}, nil},
		{"wrong abort code", &Expect{Success: &no, AbortCode: &seven},
			StepResult{Executed: true, ErrorKind: string(ir.ErrKindAbort), AbortCode: 8},
			[]string{"expected abort code 7, got failure"}},
		{"created min", &Expect{Success: &yes, CreatedMin: 2}, StepResult{Executed: true, Success: true, Created: 1},
			[]string{"expected at least 2 created objects, got 1"}},
		{"rejection matches", &Expect{Rejected: RejectStale}, StepResult{Rejected: RejectStale}, nil},
		{"rejection expected", &Expect{Rejected: RejectStale}, StepResult{Executed: true, Success: true},
			[]string{"expected rejection stale, got success"}},
		{"rejection unexpected", nil, StepResult{Rejected: RejectNotFound, Error: "gone"},
			[]string{"rejected before submission (not_found): gone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkExpect(tt.expect, tt.sr))
		})
	}
}

func TestRun_GasBudget(t *testing.T) {
	src := `
name: budget
description: a budget too small for one call
sender: "0xa11ce"
steps:
  - label: create pool
    commands:
      - invoke:
          target: "0xcafe::fund::create_pool"
    expect:
      error_kind: OUT_OF_GAS
`
	result, err := Run(context.Background(), parseInline(t, src), WithGasBudget(1000))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	// A budget in the scenario wins over the option.
	s := parseInline(t, src)
	s.GasBudget = 1_000_000
	result, err = Run(context.Background(), s, WithGasBudget(1000))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.True(t, result.Steps[0].Success)
}
