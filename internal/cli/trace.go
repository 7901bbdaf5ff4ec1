package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Flow     string
	RunID    string // optional - filter to one run
	Label    string
	Sender   string
	Failed   bool
	MinGas   uint64
}

// TraceResult holds the entries of a flow across stored runs.
type TraceResult struct {
	Flow     string       `json:"flow"`
	Timeline []StoredLine `json:"timeline"`
	GasUsed  uint64       `json:"gas_used"`
}

// StoredLine is a timeline entry with its storage identity.
type StoredLine struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`
	Seq   int64  `json:"seq"`
	EntryLine
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the audit log for a flow",
		Long: `List every stored entry recorded under a flow, in run order and
then in recorded order. Further flags narrow the entries by label, sender,
outcome or gas.

Examples:
  txblock trace --db ./audit.db --flow fund
  txblock trace --db ./audit.db --flow fund --run 0190c3c2-...
  txblock trace --db ./audit.db --flow fund --failed --min-gas 10000
  txblock trace --db ./audit.db --flow fund --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite audit log path (default TXBLOCK_DB)")
	cmd.Flags().StringVar(&opts.Flow, "flow", "", "flow to trace (required)")
	_ = cmd.MarkFlagRequired("flow")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "filter to a specific run")
	cmd.Flags().StringVar(&opts.Label, "label", "", "filter to entries with this label")
	cmd.Flags().StringVar(&opts.Sender, "sender", "", "filter to entries sent by this address")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only failed entries")
	cmd.Flags().Uint64Var(&opts.MinGas, "min-gas", 0, "only entries that used at least this much gas")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	st, err := openAuditLog(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	filter := store.EntryFilter{
		RunID:  opts.RunID,
		Flow:   opts.Flow,
		Label:  opts.Label,
		MinGas: opts.MinGas,
	}
	if opts.Sender != "" {
		addr, err := ir.ParseAddress(opts.Sender)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --sender", err)
		}
		filter.Sender = addr.String()
	}
	if opts.Failed {
		filter.Success = new(bool)
	}

	entries, err := st.FindEntries(commandContext(cmd), filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read entries", err)
	}

	result := TraceResult{Flow: opts.Flow, Timeline: make([]StoredLine, 0, len(entries))}
	for _, e := range entries {
		result.Timeline = append(result.Timeline, StoredLine{ID: e.ID, RunID: e.RunID, Seq: e.Seq, EntryLine: entryLine(e.Entry)})
		result.GasUsed += e.Outputs.GasUsed
	}

	formatter := opts.formatter(cmd)
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(result.Timeline) == 0 {
		fmt.Fprintf(w, "No entries found for flow: %s\n", opts.Flow)
		return nil
	}
	fmt.Fprintf(w, "Trace for Flow: %s\n", result.Flow)
	fmt.Fprintln(w)
	lines := make([]EntryLine, len(result.Timeline))
	for i, l := range result.Timeline {
		lines[i] = l.EntryLine
		formatter.VerboseLog("  [%d] %s run=%s seq=%d", i+1, truncateID(l.ID), l.RunID, l.Seq)
	}
	writeTimeline(w, lines, opts.Verbose)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Gas used: %d\n", result.GasUsed)
	return nil
}

// truncateID shortens an entry id for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "..."
}
