package harness

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/txblock/internal/block"
	"github.com/roach88/txblock/internal/effects"
	"github.com/roach88/txblock/internal/engine"
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/manifest"
	"github.com/roach88/txblock/internal/objstore"
	"github.com/roach88/txblock/internal/session"
	"github.com/roach88/txblock/internal/testutil"
	"github.com/roach88/txblock/internal/trace"
)

// Harness is the scenario execution engine. Each run gets a fresh object
// store and simulator, a deterministic clock for trace timestamps and,
// when the scenario sets flow_token, a fixed flow generator.
type Harness struct {
	scenario *Scenario
	store    *objstore.Memory
	engine   *engine.Simulator
	session  *session.Session
	recorder *trace.Recorder
	env      *env
	flows    trace.IDGenerator
	sender   ir.Address
	logger   *slog.Logger
	built    map[string]*block.Block
}

type config struct {
	logger   *slog.Logger
	sink     trace.Sink
	now       func() time.Time
	protocol  string
	version   string
	gasBudget uint64
}

// Option configures a run.
type Option func(*config)

// WithLogger sets the logger. Defaults to discarding everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithSink also drains the run's trace to s.
func WithSink(s trace.Sink) Option {
	return func(c *config) { c.sink = s }
}

// WithNow sets the trace document clock. Defaults to a
// testutil.DeterministicClock.
func WithNow(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithProtocol sets the protocol name of the trace document.
func WithProtocol(name string) Option {
	return func(c *config) { c.protocol = name }
}

// WithVersion sets the version of the trace document.
func WithVersion(v string) Option {
	return func(c *config) { c.version = v }
}

// WithGasBudget sets the per-block gas budget for scenarios that do not
// set gas_budget.
func WithGasBudget(n uint64) Option {
	return func(c *config) { c.gasBudget = n }
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Seed a fresh object store (clock, objects, coins)
// 2. Load and register package manifests
// 3. Execute steps, checking expectations and applying captures
// 4. Drain the recorded trace
// 5. Evaluate assertions against the trace and the final store
//
// Expectation and assertion failures land in Result.Errors. The returned
// error is reserved for scenarios that cannot run at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &config{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		now:      testutil.NewDeterministicClock().Now,
		protocol: trace.DefaultProtocol,
		version:  ir.ToolVersion,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	h, err := newHarness(scenario, cfg)
	if err != nil {
		return nil, err
	}

	result := NewResult(scenario.Name)
	if err := h.seed(result); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	for i := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := &scenario.Steps[i]
		sr, err := h.runStep(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", step.Label, err)
		}
		result.Steps = append(result.Steps, sr)
	}

	mem := &trace.MemorySink{}
	var sink trace.Sink = mem
	if cfg.sink != nil {
		sink = trace.Tee(mem, cfg.sink)
	}
	if err := h.recorder.Flush(ctx, sink); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("trace not persisted: %v", err))
	}
	if doc, ok := mem.Last(); ok {
		result.Trace = doc
	} else {
		result.Trace = h.recorder.Document()
	}

	actx := &AssertionContext{Lookup: h.store, Resolve: h.env.address}
	for _, msg := range EvaluateAssertions(result.Trace, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, cfg *config) (*Harness, error) {
	e, err := newEnv(scenario.Accounts)
	if err != nil {
		return nil, err
	}
	sender, err := e.address(scenario.Sender)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	store := objstore.NewMemory()
	simOpts := []engine.Option{engine.WithLogger(cfg.logger)}
	budget := cfg.gasBudget
	if scenario.GasBudget > 0 {
		budget = scenario.GasBudget
	}
	if budget > 0 {
		simOpts = append(simOpts, engine.WithGasBudget(budget))
	}
	sim := engine.NewSimulator(store, simOpts...)

	for _, dir := range scenario.Manifests {
		loaded, errs := manifest.LoadDir(dir, manifest.CollectAll)
		if len(errs) > 0 {
			return nil, fmt.Errorf("failed to load manifests from %s: %w", dir, errors.Join(errs...))
		}
		for _, m := range loaded.Manifests {
			if err := sim.Register(m); err != nil {
				return nil, err
			}
			e.register(m)
		}
	}

	rec := trace.NewRecorder(
		trace.WithNow(cfg.now),
		trace.WithLogger(cfg.logger),
		trace.WithProtocol(cfg.protocol),
		trace.WithVersion(cfg.version),
	)
	h := &Harness{
		scenario: scenario,
		store:    store,
		engine:   sim,
		recorder: rec,
		session:  session.New(store, sim, rec, session.WithSender(sender), session.WithLogger(cfg.logger)),
		env:      e,
		sender:   sender,
		logger:   cfg.logger,
		built:    make(map[string]*block.Block),
	}
	if scenario.FlowToken != "" {
		h.flows = testutil.NewFixedFlowGenerator(scenario.FlowToken)
	}
	return h, nil
}

// seed loads the clock, seeded objects and minted coins.
func (h *Harness) seed(result *Result) error {
	for name, a := range h.env.accounts {
		result.aliases[a] = name
	}
	if h.scenario.ClockMs > 0 {
		if err := h.store.Clock(h.scenario.ClockMs); err != nil {
			return err
		}
	}

	for i, o := range h.scenario.Objects {
		id, err := ir.ParseAddress(o.ID)
		if err != nil {
			return fmt.Errorf("objects[%d]: %w", i, err)
		}
		contents, err := hex.DecodeString(strings.TrimPrefix(o.Contents, "0x"))
		if err != nil {
			return fmt.Errorf("objects[%d]: contents: %w", i, err)
		}
		var loadOpts []objstore.LoadOption
		if !o.Shared && !o.Immutable {
			owner := h.sender
			if o.Owner != "" {
				if owner, err = h.env.address(o.Owner); err != nil {
					return fmt.Errorf("objects[%d]: owner: %w", i, err)
				}
			}
			loadOpts = append(loadOpts, objstore.WithOwner(owner))
		}
		version := ir.Version(o.Version)
		if version == 0 {
			version = 1
		}
		if err := h.store.Load(id, append(id[:], contents...), o.Type, o.Shared, o.Immutable, version, loadOpts...); err != nil {
			return fmt.Errorf("objects[%d]: %w", i, err)
		}
		h.env.objects[o.Name] = id
		result.aliases[id] = o.Name
	}

	for i, c := range h.scenario.Coins {
		owner := h.sender
		if c.Owner != "" {
			var err error
			if owner, err = h.env.address(c.Owner); err != nil {
				return fmt.Errorf("coins[%d]: owner: %w", i, err)
			}
		}
		id, err := h.engine.Mint(owner, c.Amount)
		if err != nil {
			return fmt.Errorf("coins[%d]: %w", i, err)
		}
		h.env.objects[c.Name] = id
		result.aliases[id] = c.Name
	}
	return nil
}

func (h *Harness) runStep(ctx context.Context, step *Step, result *Result) (StepResult, error) {
	sr := StepResult{Label: step.Label, Flow: step.Flow, Sender: h.sender, Events: []string{}}
	if sr.Flow == "" && h.flows != nil {
		sr.Flow = h.flows.Generate()
	}
	if step.Sender != "" {
		a, err := h.env.address(step.Sender)
		if err != nil {
			return sr, fmt.Errorf("sender: %w", err)
		}
		sr.Sender = a
	}

	var blk *block.Block
	if step.Resubmit != "" {
		blk = h.built[step.Resubmit]
		if blk == nil {
			h.fail(result, step, fmt.Sprintf("cannot resubmit %q: it did not build a block", step.Resubmit))
			return sr, nil
		}
	} else {
		var err error
		blk, err = h.env.build(h.session, step)
		if err != nil {
			kind := rejection(err)
			if kind == "" {
				return sr, err
			}
			sr.Rejected, sr.Error = kind, err.Error()
			h.check(result, step, sr)
			return sr, nil
		}
		h.built[step.Label] = blk
	}

	res, err := h.session.ExecuteAs(ctx, sr.Sender, sr.Flow, step.Label, blk)
	if err != nil {
		kind := rejection(err)
		if kind == "" {
			return sr, err
		}
		sr.Rejected, sr.Error = kind, err.Error()
		h.check(result, step, sr)
		return sr, nil
	}

	sr.Executed = true
	sr.Success = res.Success
	sr.GasUsed = res.GasUsed
	sr.Created = len(res.Created)
	sr.Mutated = len(res.Mutated)
	sr.Deleted = len(res.Deleted)
	for _, ev := range res.Events {
		sr.Events = append(sr.Events, ev.Type)
	}
	if res.Error != nil {
		sr.Error = res.Error.Error()
		sr.ErrorKind = string(res.Error.Kind)
		sr.AbortCode = res.Error.AbortCode
	}
	h.check(result, step, sr)

	if res.Success {
		h.capture(result, step, res)
	}
	return sr, nil
}

// capture classifies the result once per capture, in name order.
func (h *Harness) capture(result *Result, step *Step, res ir.ExecutionResult) {
	names := make([]string, 0, len(step.Capture))
	for name := range step.Capture {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		hint, err := effects.ParseHint(step.Capture[name])
		if err != nil {
			h.fail(result, step, fmt.Sprintf("capture %s: %v", name, err))
			continue
		}
		id, err := h.session.Classify(res, hint)
		if err != nil {
			h.fail(result, step, fmt.Sprintf("capture %s: %v", name, err))
			continue
		}
		c := Capture{ID: id, Step: step.Label}
		if obj, ok := h.store.Lookup(id); ok {
			c.Type = obj.Type
		}
		h.env.objects[name] = id
		result.Captures[name] = c
		result.aliases[id] = name
		h.logger.Debug("captured object", "step", step.Label, "name", name, "hint", hint.String(), "id", id.ShortString())
	}
}

func (h *Harness) check(result *Result, step *Step, sr StepResult) {
	for _, msg := range checkExpect(step.Expect, sr) {
		h.fail(result, step, msg)
	}
}

func (h *Harness) fail(result *Result, step *Step, msg string) {
	result.AddError(fmt.Sprintf("step %q: %s", step.Label, msg))
}

// checkExpect compares a step's outcome with its expectation. A missing
// expectation means plain success.
func checkExpect(e *Expect, sr StepResult) []string {
	if e == nil {
		e = &Expect{}
	}
	var problems []string

	if e.Rejected != "" {
		if sr.Rejected != e.Rejected {
			problems = append(problems, fmt.Sprintf("expected rejection %s, got %s", e.Rejected, outcome(sr)))
		}
		return problems
	}
	if sr.Rejected != "" {
		return append(problems, fmt.Sprintf("rejected before submission (%s): %s", sr.Rejected, sr.Error))
	}

	wantSuccess := e.ErrorKind == "" && e.AbortCode == nil
	if e.Success != nil {
		wantSuccess = *e.Success
	}
	if sr.Success != wantSuccess {
		problems = append(problems, fmt.Sprintf("expected %s, got %s", successWord(wantSuccess), outcome(sr)))
	}
	if e.ErrorKind != "" && sr.ErrorKind != e.ErrorKind {
		problems = append(problems, fmt.Sprintf("expected error kind %s, got %q", e.ErrorKind, sr.ErrorKind))
	}
	if e.AbortCode != nil && (sr.ErrorKind != string(ir.ErrKindAbort) || sr.AbortCode != *e.AbortCode) {
		problems = append(problems, fmt.Sprintf("expected abort code %d, got %s", *e.AbortCode, outcome(sr)))
	}
	if sr.Created < e.CreatedMin {
		problems = append(problems, fmt.Sprintf("expected at least %d created objects, got %d", e.CreatedMin, sr.Created))
	}
	return problems
}

func successWord(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func outcome(sr StepResult) string {
	switch {
	case sr.Rejected != "":
		return "rejection " + sr.Rejected
	case sr.Success:
		return "success"
	case sr.Error != "":
		return "failure: " + sr.Error
	default:
		return "failure"
	}
}
