package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/txblock/internal/harness"
	"github.com/roach88/txblock/internal/store"
	"github.com/roach88/txblock/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	TracePath string
	Database  string

	// Now overrides the trace document clock (for testing).
	Now func() time.Time
	// RunIDs overrides audit log run ids (for testing). Defaults to UUIDv7.
	RunIDs trace.IDGenerator
}

// RunResult is what the run command reports.
type RunResult struct {
	Scenario  string               `json:"scenario"`
	Pass      bool                 `json:"pass"`
	Steps     []harness.StepResult `json:"steps"`
	Captures  map[string]string    `json:"captures"`
	TracePath string               `json:"trace_path"`
	RunID     string               `json:"run_id,omitempty"`
	Errors    []string             `json:"errors,omitempty"`
	Warnings  []string             `json:"warnings,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommandWith(&RunOptions{RootOptions: rootOpts})
}

func newRunCommandWith(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario and write its trace",
		Long: `Execute every step of a scenario against a fresh object store.

The trace document is written to --trace (default TXBLOCK_TRACE_PATH).
With --db (default TXBLOCK_DB) the document is also stored as a new run
in the SQLite audit log.

Exit codes:
  0 - Every expectation and assertion held
  1 - The scenario ran but failed
  2 - Command error (invalid scenario, unwritable trace, etc.)

Examples:
  txblock run ./scenarios/fund_flow.yaml
  txblock run ./scenarios/fund_flow.yaml --trace out.json --db audit.db
  txblock run ./scenarios/fund_flow.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.TracePath, "trace", "", "trace file path (default TXBLOCK_TRACE_PATH)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite audit log path (default TXBLOCK_DB)")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr())
	tracePath := firstNonEmpty(opts.TracePath, opts.Config.TracePath)
	dbPath := firstNonEmpty(opts.Database, opts.Config.Database)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	sinks := []trace.Sink{trace.FileSink{Path: tracePath}}
	var auditSink *store.Sink
	if dbPath != "" {
		logger.Info("opening database", "path", dbPath)
		st, err := store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer closeStore(st, logger)
		auditSink = store.NewSink(st, opts.RunIDs, logger)
		sinks = append(sinks, auditSink)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx := commandContext(cmd)
	logger.Info("running scenario", "scenario", scenario.Name, "steps", len(scenario.Steps))
	result, err := harness.Run(ctx, scenario,
		harness.WithLogger(logger),
		harness.WithSink(trace.Tee(sinks...)),
		harness.WithNow(now),
		harness.WithProtocol(opts.Config.Protocol),
		harness.WithVersion(opts.Config.ProtocolVersion),
		harness.WithGasBudget(opts.Config.GasBudget),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario did not run", err)
	}

	out := RunResult{
		Scenario:  result.Name,
		Pass:      result.Pass,
		Steps:     result.Steps,
		Captures:  make(map[string]string, len(result.Captures)),
		TracePath: tracePath,
		Errors:    result.Errors,
		Warnings:  result.Warnings,
	}
	for name, c := range result.Captures {
		out.Captures[name] = c.ID.String()
	}
	if auditSink != nil {
		out.RunID = auditSink.LastRun()
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: out, RunID: out.RunID}
		if !out.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_SCENARIO_FAILED", Message: fmt.Sprintf("%d problem(s)", len(out.Errors))}
		}
		return opts.formatter(cmd).JSON(resp, fmt.Sprintf("scenario %s failed", out.Scenario))
	}
	return outputRunText(cmd.OutOrStdout(), out)
}

func outputRunText(w io.Writer, r RunResult) error {
	fmt.Fprintf(w, "Scenario: %s\n", r.Scenario)
	for _, sr := range r.Steps {
		fmt.Fprintln(w, "  "+stepLine(sr))
	}
	fmt.Fprintln(w)
	if len(r.Warnings) == 0 {
		fmt.Fprintf(w, "Trace written to %s\n", r.TracePath)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "⚠ %s\n", warn)
	}
	if r.RunID != "" {
		fmt.Fprintf(w, "Stored as run %s\n", r.RunID)
	}

	if !r.Pass {
		fmt.Fprintln(w, "✗ Scenario failed")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", r.Scenario))
	}
	fmt.Fprintln(w, "✓ Scenario passed")
	return nil
}

// stepLine renders one step: "✓ deposit (gas 15300)".
func stepLine(sr harness.StepResult) string {
	switch {
	case sr.Rejected != "":
		return fmt.Sprintf("- %s rejected (%s)", sr.Label, sr.Rejected)
	case sr.Success:
		return fmt.Sprintf("✓ %s (gas %d, created %d, mutated %d, deleted %d)", sr.Label, sr.GasUsed, sr.Created, sr.Mutated, sr.Deleted)
	default:
		return fmt.Sprintf("✗ %s: %s", sr.Label, sr.Error)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func closeStore(st *store.Store, logger *slog.Logger) {
	if err := st.Close(); err != nil {
		logger.Error("error closing database", "error", err)
	}
}
