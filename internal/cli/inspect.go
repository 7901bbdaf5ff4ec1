package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/txblock/internal/trace"
)

// InspectResult is the summary of a trace file.
type InspectResult struct {
	Path      string        `json:"path"`
	Protocol  string        `json:"protocol"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Summary   trace.Summary `json:"summary"`
	Entries   []EntryLine   `json:"entries"`
}

// EntryLine is one entry of a timeline.
type EntryLine struct {
	Label    string   `json:"label"`
	Flow     string   `json:"flow,omitempty"`
	Sender   string   `json:"sender"`
	Success  bool     `json:"success"`
	GasUsed  uint64   `json:"gas_used"`
	Commands []string `json:"commands"`
	Created  int      `json:"created"`
	Mutated  int      `json:"mutated"`
	Events   int      `json:"events"`
	Error    string   `json:"error,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [trace.json]",
		Short: "Summarize a trace file",
		Long: `Parse a trace document and list its entries with their outcomes.
Without an argument the file at TXBLOCK_TRACE_PATH is read.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config.TracePath
			if len(args) == 1 {
				path = args[0]
			}
			return runInspect(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, path string, cmd *cobra.Command) error {
	doc, err := trace.ReadDocument(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	result := InspectResult{
		Path:      path,
		Protocol:  doc.Protocol,
		Version:   doc.Version,
		Timestamp: doc.Timestamp,
		Summary:   doc.Summarize(),
		Entries:   make([]EntryLine, 0, len(doc.Traces)),
	}
	for _, e := range doc.Traces {
		result.Entries = append(result.Entries, entryLine(e))
	}

	formatter := opts.formatter(cmd)
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Trace: %s\n", result.Path)
	fmt.Fprintf(w, "Protocol: %s %s (%s)\n", result.Protocol, result.Version, result.Timestamp)
	fmt.Fprintln(w)
	writeTimeline(w, result.Entries, opts.Verbose)
	fmt.Fprintln(w)
	writeSummary(w, result.Summary)
	return nil
}

func entryLine(e trace.Entry) EntryLine {
	line := EntryLine{
		Label:    e.Label,
		Flow:     e.Flow,
		Sender:   e.Sender,
		Success:  e.Outputs.Success,
		GasUsed:  e.Outputs.GasUsed,
		Commands: make([]string, len(e.Commands)),
		Created:  len(e.Outputs.CreatedObjects),
		Mutated:  len(e.Outputs.MutatedObjects),
		Events:   len(e.Outputs.Events),
		Error:    e.Outputs.Error,
	}
	for i, c := range e.Commands {
		line.Commands[i] = c.CommandType
		if c.Function != "" {
			line.Commands[i] += " " + c.Module + "::" + c.Function
		}
	}
	return line
}

func writeTimeline(w io.Writer, entries []EntryLine, verbose bool) {
	fmt.Fprintln(w, "=== Timeline ===")
	if len(entries) == 0 {
		fmt.Fprintln(w, "  (no entries)")
		return
	}
	for i, e := range entries {
		status := "ok"
		if !e.Success {
			status = "FAILED"
		}
		flow := ""
		if e.Flow != "" {
			flow = " [" + e.Flow + "]"
		}
		fmt.Fprintf(w, "  [%d] %s%s %s gas=%d\n", i+1, e.Label, flow, status, e.GasUsed)
		if verbose {
			for _, c := range e.Commands {
				fmt.Fprintf(w, "       %s\n", c)
			}
			fmt.Fprintf(w, "       created=%d mutated=%d events=%d\n", e.Created, e.Mutated, e.Events)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "       %s\n", e.Error)
		}
	}
}

func writeSummary(w io.Writer, s trace.Summary) {
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Entries:   %d\n", s.Entries)
	fmt.Fprintf(w, "  Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(w, "  Failed:    %d\n", s.Failed)
	fmt.Fprintf(w, "  Gas used:  %d\n", s.GasUsed)
	if len(s.Flows) > 0 {
		fmt.Fprintf(w, "  Flows:     %v\n", s.Flows)
	}
}
