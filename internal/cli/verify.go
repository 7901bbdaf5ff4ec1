package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/txblock/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Runs      []RunCheck `json:"runs"`
	TotalRuns int        `json:"total_runs"`
	Intact    bool       `json:"intact"`
}

// RunCheck is the integrity report of one run.
type RunCheck struct {
	ID         string           `json:"id"`
	Entries    int              `json:"entries"`
	Missing    int              `json:"missing"`
	Mismatches []store.Mismatch `json:"mismatches,omitempty"`
	Intact     bool             `json:"intact"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check stored runs against their content ids",
		Long: `Re-read every stored entry, recompute its content-derived id and
compare it with the stored one. Also reports entries a run header declares
but the log no longer holds.

Exit codes:
  0 - Every run is intact
  1 - At least one entry is missing or altered
  2 - Command error (database not found, etc.)

Examples:
  txblock verify --db ./audit.db
  txblock verify --db ./audit.db --run 0190c3c2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite audit log path (default TXBLOCK_DB)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "verify a specific run only")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := openAuditLog(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var ids []string
	if opts.RunID != "" {
		ids = []string{opts.RunID}
	} else {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
	}

	formatter := opts.formatter(cmd)
	result := VerifyResult{Runs: make([]RunCheck, 0, len(ids)), TotalRuns: len(ids), Intact: true}
	for _, id := range ids {
		formatter.VerboseLog("Verifying run %s", id)
		report, err := st.VerifyRun(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to verify run", err)
		}
		check := RunCheck{
			ID:         id,
			Entries:    report.Run.EntryCount,
			Missing:    report.Missing,
			Mismatches: report.Mismatches,
			Intact:     report.Intact(),
		}
		result.Runs = append(result.Runs, check)
		result.Intact = result.Intact && check.Intact
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Intact {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_INTEGRITY", Message: "stored entries do not match their ids"}
		}
		return formatter.JSON(resp, "integrity check failed")
	}

	w := formatter.Writer
	for _, c := range result.Runs {
		if c.Intact {
			fmt.Fprintf(w, "✓ %s (%d entries)\n", c.ID, c.Entries)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%d entries, %d missing)\n", c.ID, c.Entries, c.Missing)
		for _, m := range c.Mismatches {
			fmt.Fprintf(w, "  entry %d: stored %s, content %s\n", m.Seq, m.Stored, m.Actual)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Runs verified: %d\n", result.TotalRuns)
	if !result.Intact {
		return NewExitError(ExitFailure, "integrity check failed")
	}
	fmt.Fprintln(w, "✓ All runs intact")
	return nil
}
