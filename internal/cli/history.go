package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/txblock/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
}

// RunLine is one stored run with its tallies.
type RunLine struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	Protocol  string `json:"protocol"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Entries   int    `json:"entries"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	GasUsed   uint64 `json:"gas_used"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List runs stored in the audit log",
		Long: `List every run stored in the SQLite audit log, oldest first,
with how many of its blocks succeeded and the gas they used.

Examples:
  txblock history --db ./audit.db
  txblock history --db ./audit.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite audit log path (default TXBLOCK_DB)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := openAuditLog(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	lines := make([]RunLine, 0, len(runs))
	for _, r := range runs {
		report, err := st.VerifyRun(ctx, r.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		lines = append(lines, RunLine{
			ID:        r.ID,
			Seq:       r.Seq,
			Protocol:  r.Protocol,
			Version:   r.Version,
			Timestamp: r.Timestamp,
			Entries:   r.EntryCount,
			Succeeded: report.Succeeded,
			Failed:    report.Failed,
			GasUsed:   report.GasUsed,
		})
	}

	formatter := opts.formatter(cmd)
	if formatter.Format == "json" {
		return formatter.Success(lines)
	}

	w := formatter.Writer
	if len(lines) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return nil
	}
	for _, l := range lines {
		fmt.Fprintf(w, "%d  %s  %s %s  %s  entries=%d ok=%d failed=%d gas=%d\n",
			l.Seq, l.ID, l.Protocol, l.Version, l.Timestamp, l.Entries, l.Succeeded, l.Failed, l.GasUsed)
	}
	return nil
}

// openAuditLog opens an existing database named by flag or TXBLOCK_DB.
func openAuditLog(opts *RootOptions, flag string) (*store.Store, error) {
	path := firstNonEmpty(flag, opts.Config.Database)
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no database: pass --db or set TXBLOCK_DB")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
