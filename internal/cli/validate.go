package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/txblock/internal/manifest"
)

// ValidationIssue is one manifest problem.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ManifestSummary names a manifest that compiled.
type ManifestSummary struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Functions []string `json:"functions"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Files     int               `json:"files"`
	Manifests []ManifestSummary `json:"manifests"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifests-dir>",
		Short: "Check package manifests",
		Long: `Compile every CUE package manifest in a directory and report all
problems at once: malformed addresses, unknown fields, inconsistent
function declarations and addresses claimed twice.

Exit codes:
  0 - All manifests valid
  1 - One or more manifests invalid
  2 - Command error (directory missing, CUE does not load)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, errs := manifest.LoadDir(dir, manifest.CollectAll)
	if loaded == nil {
		err := errors.Join(errs...)
		code := manifest.Code(errs[0])
		_ = formatter.Error(code, err.Error(), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, err))
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	result := ValidationResult{
		Valid:     len(errs) == 0,
		Files:     loaded.FileCount,
		Manifests: summarizeManifests(loaded),
	}
	for _, err := range errs {
		result.Errors = append(result.Errors, toIssue(err))
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message}
		}
		return formatter.JSON(resp, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	w := formatter.Writer
	if !result.Valid {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, issue := range result.Errors {
			if issue.Line > 0 {
				fmt.Fprintf(w, "%s line %d\n", issue.File, issue.Line)
			}
			fmt.Fprintf(w, "  %s: %s\n\n", issue.Code, issue.Message)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	for _, m := range result.Manifests {
		formatter.VerboseLog("%s at %s: %d function(s)", m.Name, m.Address, len(m.Functions))
	}
	fmt.Fprintf(w, "✓ %d manifest(s) valid\n", len(result.Manifests))
	return nil
}

func summarizeManifests(loaded *manifest.LoadResult) []ManifestSummary {
	out := make([]ManifestSummary, 0, len(loaded.Manifests))
	for _, m := range loaded.Manifests {
		s := ManifestSummary{Name: m.Name, Address: m.Address.String()}
		for _, fn := range m.Functions {
			s.Functions = append(s.Functions, fn.Key())
		}
		sort.Strings(s.Functions)
		out = append(out, s)
	}
	return out
}

func toIssue(err error) ValidationIssue {
	var ce *manifest.CompileError
	if errors.As(err, &ce) {
		issue := ValidationIssue{Code: ce.Code, Field: ce.Field, Message: ce.Message}
		if ce.Pos.IsValid() {
			issue.File = ce.Pos.Filename()
			issue.Line = ce.Pos.Line()
		}
		return issue
	}
	return ValidationIssue{Code: manifest.ErrCodeGeneric, Message: err.Error()}
}
