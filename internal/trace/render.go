package trace

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roach88/txblock/internal/block"
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/objstore"
)

// NewEntry renders one executed block. lookup enriches created objects with
// their type and owner; pass nil to skip enrichment.
func NewEntry(label string, sender ir.Address, b *block.Block, res ir.ExecutionResult, lookup objstore.Lookup) Entry {
	return Entry{
		Label:    label,
		Sender:   sender.String(),
		Inputs:   RenderInputs(b),
		Commands: RenderCommands(b),
		Outputs:  RenderOutputs(res, lookup),
	}
}

func RenderInputs(b *block.Block) []Input {
	out := make([]Input, b.NumInputs())
	for i := range out {
		out[i] = renderInput(i, b.Input(i))
	}
	return out
}

func renderInput(i int, in ir.Input) Input {
	if !in.IsObject() {
		return Input{
			Index:     i,
			InputType: "Pure",
			Value:     "0x" + hex.EncodeToString(in.Pure),
		}
	}
	return Input{
		Index:     i,
		InputType: in.Mode.String(),
		ObjectID:  in.Object.ID.String(),
		TypeTag:   in.Object.Type,
	}
}

func RenderCommands(b *block.Block) []Command {
	cmds := b.Commands()
	out := make([]Command, len(cmds))
	for i, c := range cmds {
		out[i] = renderCommand(i, c)
	}
	return out
}

func renderCommand(i int, c ir.Command) Command {
	rc := Command{
		Index:       i,
		CommandType: c.Kind().String(),
		TypeArgs:    []string{},
		Args:        []string{},
	}
	switch cmd := c.(type) {
	case ir.Invoke:
		rc.Package = cmd.Package.String()
		rc.Module = cmd.Module
		rc.Function = cmd.Function
		for _, t := range cmd.TypeArgs {
			rc.TypeArgs = append(rc.TypeArgs, t.String())
		}
		for _, a := range cmd.Arguments {
			rc.Args = append(rc.Args, a.String())
		}
	case ir.TransferOwnership:
		rc.Args = append(rc.Args,
			"objects: "+ir.FormatArguments(cmd.Objects),
			"to: "+cmd.Recipient.String())
	case ir.SplitValue:
		rc.Args = append(rc.Args,
			"coin: "+cmd.Source.String(),
			"amounts: "+ir.FormatArguments(cmd.Amounts))
	case ir.MergeValues:
		rc.Args = append(rc.Args,
			"destination: "+cmd.Destination.String(),
			"sources: "+ir.FormatArguments(cmd.Sources))
	case ir.BuildCollection:
		if cmd.ElementType != nil {
			rc.TypeArgs = append(rc.TypeArgs, cmd.ElementType.String())
		}
		rc.Args = append(rc.Args, "elements: "+ir.FormatArguments(cmd.Elements))
	case ir.Publish:
		rc.Args = append(rc.Args,
			fmt.Sprintf("modules: %d modules", len(cmd.Modules)),
			"deps: "+formatIDs(cmd.Dependencies))
	case ir.Upgrade:
		rc.Package = cmd.Package.String()
		rc.Args = append(rc.Args,
			fmt.Sprintf("modules: %d modules", len(cmd.Modules)),
			"ticket: "+cmd.Ticket.String())
	case ir.AcquireReceived:
		if cmd.Type != nil {
			rc.TypeArgs = append(rc.TypeArgs, cmd.Type.String())
		}
		rc.Args = append(rc.Args, "object_id: "+cmd.ObjectID.String())
	default:
		panic(fmt.Sprintf("trace: unhandled command %T", c))
	}
	return rc
}

func formatIDs(ids []ir.ObjectID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.ShortString()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// RenderOutputs renders a result. Failed results report no effects and no
// gas, whatever the result carries.
func RenderOutputs(res ir.ExecutionResult, lookup objstore.Lookup) Outputs {
	out := Outputs{
		Success:        res.Success,
		CreatedObjects: []CreatedObject{},
		MutatedObjects: []string{},
		Events:         []Event{},
	}
	if !res.Success {
		if res.Error != nil {
			out.Error = res.Error.Error()
		} else {
			out.Error = "execution failed"
		}
		return out
	}

	out.GasUsed = res.GasUsed
	for _, id := range res.Created {
		co := CreatedObject{ObjectID: id.String(), ObjectType: "unknown", Owner: "unknown"}
		if lookup != nil {
			if obj, ok := lookup.Lookup(id); ok {
				co.ObjectType = obj.Type
				co.Owner = obj.Owner.String()
			}
		}
		out.CreatedObjects = append(out.CreatedObjects, co)
	}
	for _, id := range res.Mutated {
		out.MutatedObjects = append(out.MutatedObjects, id.String())
	}
	for _, ev := range res.Events {
		data := ev.Data
		if data == nil {
			data = ir.Object{}
		}
		out.Events = append(out.Events, Event{EventType: ev.Type, Data: data})
	}
	return out
}
