package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/manifest"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled manifests.
type CompilationResult struct {
	Manifests []ir.PackageManifest `json:"manifests"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <manifests-dir>",
		Short: "Compile CUE manifests to JSON",
		Long: `Compile CUE package manifests to the JSON form the simulator
registers. Stops at the first error; use validate to see every problem.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, errs := manifest.LoadDir(dir, manifest.FailFast)
	if len(errs) > 0 {
		code := manifest.Code(errs[0])
		_ = formatter.Error(code, errs[0].Error(), nil)
		exit := ExitFailure
		if loaded == nil {
			exit = ExitCommandError
		}
		return NewExitError(exit, fmt.Sprintf("%s: %v", code, errs[0]))
	}

	result := CompilationResult{Manifests: loaded.Manifests}
	functions := 0
	for _, m := range loaded.Manifests {
		functions += len(m.Functions)
	}
	formatter.VerboseLog("Compiled %d manifest(s), %d function(s)", len(loaded.Manifests), functions)

	if opts.Output != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to marshal manifests", err)
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
	}

	if formatter.Format == "json" {
		if opts.Output != "" {
			return formatter.Success(map[string]any{"output": opts.Output, "manifests": len(loaded.Manifests), "functions": functions})
		}
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d manifest(s), %d function(s)\n", len(loaded.Manifests), functions)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "  Output: %s\n", opts.Output)
	}
	return nil
}
