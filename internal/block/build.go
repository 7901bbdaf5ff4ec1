package block

import (
	"fmt"
	"slices"

	"github.com/roach88/txblock/internal/ir"
)

// VersionSource reports the latest version known for an object.
type VersionSource interface {
	KnownVersion(id ir.ObjectID) (ir.Version, bool)
}

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	versions VersionSource
}

// WithVersionSource rejects MutRef and Shared inputs whose version is
// lower than the latest one the source knows about.
func WithVersionSource(vs VersionSource) Option {
	return func(c *buildConfig) { c.versions = vs }
}

// Build validates inputs and commands and assembles an immutable Block.
// The first violation is returned as a *ValidationError.
func Build(inputs []ir.Input, commands []ir.Command, opts ...Option) (*Block, error) {
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(commands) == 0 {
		return nil, &ValidationError{Code: ErrCodeEmptyBlock, Command: -1, Input: -1, Message: "block has no commands"}
	}
	for i, in := range inputs {
		if err := validateInput(cfg, i, in); err != nil {
			return nil, err
		}
	}
	for i, cmd := range commands {
		if err := validateCommand(i, cmd, len(inputs), commands[:i]); err != nil {
			return nil, err
		}
	}

	b := &Block{
		inputs:   make([]ir.Input, len(inputs)),
		commands: make([]ir.Command, len(commands)),
	}
	for i, in := range inputs {
		b.inputs[i] = cloneInput(in)
	}
	for i, cmd := range commands {
		b.commands[i] = cloneCommand(cmd)
	}

	digest, err := ir.ContentDigest(ir.DomainBlock, describe(b.inputs, b.commands))
	if err != nil {
		return nil, fmt.Errorf("block digest: %w", err)
	}
	b.digest = digest
	return b, nil
}

func validateInput(cfg *buildConfig, i int, in ir.Input) error {
	switch in.Kind {
	case ir.InputPure:
		return nil
	case ir.InputObject:
	default:
		return inputError(ErrCodeBadInput, i, "unknown input kind %d", in.Kind)
	}

	if in.Mode.Kind == 0 {
		return inputError(ErrCodeBadInput, i, "object %s has no access mode", in.Object.ID)
	}
	if in.Mode.RequiresVersion() && in.Object.Version == 0 {
		return inputError(ErrCodeMissingVersion, i, "%s access to %s requires an explicit version", in.Mode, in.Object.ID)
	}
	if cfg.versions != nil && in.Mode.RequiresVersion() {
		if known, ok := cfg.versions.KnownVersion(in.Object.ID); ok && in.Object.Version < known {
			return inputError(ErrCodeStaleVersion, i, "%s at version %d is older than known version %d", in.Object.ID, in.Object.Version, known)
		}
	}
	return nil
}

func validateCommand(idx int, cmd ir.Command, numInputs int, earlier []ir.Command) error {
	if cmd == nil {
		return commandError(ErrCodeBadCommand, idx, ir.Argument{}, "nil command")
	}
	if err := validateShape(idx, cmd); err != nil {
		return err
	}
	for _, ref := range cmd.References() {
		if err := validateRef(idx, ref, numInputs, earlier); err != nil {
			return err
		}
	}
	return nil
}

func validateShape(idx int, cmd ir.Command) error {
	bad := func(format string, args ...any) error {
		return commandError(ErrCodeBadCommand, idx, ir.Argument{}, format, args...)
	}
	switch c := cmd.(type) {
	case ir.Invoke:
		if c.Module == "" || c.Function == "" {
			return bad("invoke needs module and function")
		}
		if c.Returns < 0 {
			return bad("negative return count %d", c.Returns)
		}
	case ir.TransferOwnership:
		if len(c.Objects) == 0 {
			return bad("transfer needs at least one object")
		}
	case ir.SplitValue:
		if len(c.Amounts) == 0 {
			return bad("split needs at least one amount")
		}
	case ir.MergeValues:
		if len(c.Sources) == 0 {
			return bad("merge needs at least one source")
		}
	case ir.BuildCollection:
		if len(c.Elements) == 0 && c.ElementType == nil {
			return bad("empty collection needs an element type")
		}
	case ir.Publish:
		if len(c.Modules) == 0 {
			return bad("publish needs at least one module")
		}
	case ir.Upgrade:
		if len(c.Modules) == 0 {
			return bad("upgrade needs at least one module")
		}
		if c.Package.IsZero() {
			return bad("upgrade needs a package id")
		}
	case ir.AcquireReceived:
		if c.ObjectID.IsZero() {
			return bad("receive needs an object id")
		}
	default:
		return bad("unsupported command %T", cmd)
	}
	return nil
}

func validateRef(idx int, ref ir.Argument, numInputs int, earlier []ir.Command) error {
	switch ref.Kind {
	case ir.ArgInput:
		if ref.Index < 0 || ref.Index >= numInputs {
			return commandError(ErrCodeInputRange, idx, ref, "input index out of range [0, %d)", numInputs)
		}
	case ir.ArgResult:
		switch {
		case ref.Index == idx:
			return commandError(ErrCodeSelfRef, idx, ref, "command references its own result")
		case ref.Index < 0 || ref.Index > idx:
			return commandError(ErrCodeForwardRef, idx, ref, "references command %d which has not appeared before command %d", ref.Index, idx)
		}
		produced := earlier[ref.Index].Outputs()
		if ref.Output < 0 || ref.Output >= produced {
			return commandError(ErrCodeOutputRange, idx, ref, "command %d declares %d output(s)", ref.Index, produced)
		}
	default:
		return commandError(ErrCodeBadCommand, idx, ref, "invalid argument kind %d", ref.Kind)
	}
	return nil
}

func cloneInput(in ir.Input) ir.Input {
	in.Pure = slices.Clone(in.Pure)
	in.Object.Bytes = slices.Clone(in.Object.Bytes)
	return in
}

func cloneCommand(cmd ir.Command) ir.Command {
	switch c := cmd.(type) {
	case ir.Invoke:
		c.TypeArgs = slices.Clone(c.TypeArgs)
		c.Arguments = slices.Clone(c.Arguments)
		return c
	case ir.TransferOwnership:
		c.Objects = slices.Clone(c.Objects)
		return c
	case ir.SplitValue:
		c.Amounts = slices.Clone(c.Amounts)
		return c
	case ir.MergeValues:
		c.Sources = slices.Clone(c.Sources)
		return c
	case ir.BuildCollection:
		c.Elements = slices.Clone(c.Elements)
		if c.ElementType != nil {
			t := *c.ElementType
			c.ElementType = &t
		}
		return c
	case ir.Publish:
		c.Modules = cloneModules(c.Modules)
		c.Dependencies = slices.Clone(c.Dependencies)
		return c
	case ir.Upgrade:
		c.Modules = cloneModules(c.Modules)
		c.Dependencies = slices.Clone(c.Dependencies)
		return c
	case ir.AcquireReceived:
		if c.Type != nil {
			t := *c.Type
			c.Type = &t
		}
		return c
	default:
		return cmd
	}
}

func cloneModules(mods [][]byte) [][]byte {
	out := make([][]byte, len(mods))
	for i, m := range mods {
		out[i] = slices.Clone(m)
	}
	return out
}
