// Package block assembles transaction blocks: an ordered input table and
// an ordered command list whose argument references form a DAG.
//
// Build is pure data assembly. Every Result(c, o) reference must point at
// an earlier command and an output that command declares, so the engine
// can execute commands in a single left-to-right pass. A rejected block is
// reported with the first offending reference and nothing is constructed.
package block

import (
	"encoding/hex"
	"strconv"

	"github.com/roach88/txblock/internal/ir"
)

// Block is an immutable, validated transaction block.
type Block struct {
	inputs   []ir.Input
	commands []ir.Command
	digest   ir.Digest
}

// Inputs returns a deep copy of the input table.
func (b *Block) Inputs() []ir.Input {
	out := make([]ir.Input, len(b.inputs))
	for i, in := range b.inputs {
		out[i] = cloneInput(in)
	}
	return out
}

// Input returns a deep copy of the i-th input.
func (b *Block) Input(i int) ir.Input {
	return cloneInput(b.inputs[i])
}

// Commands returns a deep copy of the command list.
func (b *Block) Commands() []ir.Command {
	out := make([]ir.Command, len(b.commands))
	for i, c := range b.commands {
		out[i] = cloneCommand(c)
	}
	return out
}

// NumInputs returns the size of the input table.
func (b *Block) NumInputs() int { return len(b.inputs) }

// NumCommands returns the number of commands.
func (b *Block) NumCommands() int { return len(b.commands) }

// Digest is the content hash of the block, stable across processes.
func (b *Block) Digest() ir.Digest { return b.digest }

// ObjectInputs returns the indexes of every object input.
func (b *Block) ObjectInputs() []int {
	var idx []int
	for i, in := range b.inputs {
		if in.IsObject() {
			idx = append(idx, i)
		}
	}
	return idx
}

// describe renders the block as a canonical value for hashing.
func describe(inputs []ir.Input, commands []ir.Command) ir.Object {
	ins := make(ir.List, len(inputs))
	for i, in := range inputs {
		if in.IsObject() {
			ins[i] = ir.Object{
				"kind":    ir.Str("object"),
				"id":      ir.Str(in.Object.ID.String()),
				"version": ir.Str(strconv.FormatUint(uint64(in.Object.Version), 10)),
				"mode":    ir.Str(in.Mode.String()),
			}
			continue
		}
		ins[i] = ir.Object{
			"kind":  ir.Str("pure"),
			"bytes": ir.Str(hex.EncodeToString(in.Pure)),
		}
	}

	cmds := make(ir.List, len(commands))
	for i, c := range commands {
		refs := make(ir.List, 0, len(c.References()))
		for _, r := range c.References() {
			refs = append(refs, ir.Str(r.String()))
		}
		desc := ir.Object{
			"kind": ir.Str(c.Kind().String()),
			"refs": refs,
		}
		switch cmd := c.(type) {
		case ir.Invoke:
			desc["target"] = ir.Str(cmd.Target())
			desc["returns"] = ir.Int(cmd.Returns)
			desc["type_args"] = typeList(cmd.TypeArgs)
		case ir.BuildCollection:
			if cmd.ElementType != nil {
				desc["element_type"] = ir.Str(cmd.ElementType.String())
			}
		case ir.Publish:
			desc["modules"] = moduleList(cmd.Modules)
			desc["deps"] = idList(cmd.Dependencies)
		case ir.Upgrade:
			desc["package"] = ir.Str(cmd.Package.String())
			desc["modules"] = moduleList(cmd.Modules)
			desc["deps"] = idList(cmd.Dependencies)
		case ir.AcquireReceived:
			desc["object"] = ir.Str(cmd.ObjectID.String())
			if cmd.Type != nil {
				desc["type"] = ir.Str(cmd.Type.String())
			}
		}
		cmds[i] = desc
	}
	return ir.Object{"inputs": ins, "commands": cmds}
}

func typeList(tags []ir.TypeTag) ir.List {
	out := make(ir.List, len(tags))
	for i, t := range tags {
		out[i] = ir.Str(t.String())
	}
	return out
}

func moduleList(mods [][]byte) ir.List {
	out := make(ir.List, len(mods))
	for i, m := range mods {
		out[i] = ir.Str(hex.EncodeToString(m))
	}
	return out
}

func idList(ids []ir.ObjectID) ir.List {
	out := make(ir.List, len(ids))
	for i, id := range ids {
		out[i] = ir.Str(id.String())
	}
	return out
}
