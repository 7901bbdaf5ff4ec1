package block

import (
	"fmt"

	"github.com/roach88/txblock/internal/ir"
)

// Builder accumulates inputs and commands fluently and hands out argument
// handles for each value it records. Object inputs are deduplicated by id.
// Validation is deferred to Build.
type Builder struct {
	inputs   []ir.Input
	commands []ir.Command
	objects  map[ir.ObjectID]int
	err      error
	opts     []Option
}

// NewBuilder returns an empty builder. Options are passed through to Build.
func NewBuilder(opts ...Option) *Builder {
	return &Builder{
		objects: make(map[ir.ObjectID]int),
		opts:    opts,
	}
}

// Result is the handle to a command's outputs.
type Result struct {
	cmd     int
	outputs int
}

// Arg references the first output.
func (r Result) Arg() ir.Argument { return ir.ResultArg(r.cmd, 0) }

// Nth references output i.
func (r Result) Nth(i int) ir.Argument { return ir.ResultArg(r.cmd, i) }

// All references every declared output in order.
func (r Result) All() []ir.Argument {
	out := make([]ir.Argument, r.outputs)
	for i := range out {
		out[i] = ir.ResultArg(r.cmd, i)
	}
	return out
}

// Index is the command index that produced the result.
func (r Result) Index() int { return r.cmd }

// Pure appends a pure input.
func (b *Builder) Pure(bcs []byte) ir.Argument {
	b.inputs = append(b.inputs, ir.PureInput(bcs))
	return ir.InputArg(len(b.inputs) - 1)
}

// Object appends an object input, or returns the existing slot when the
// same id was added before. Re-adding an id under a different mode or
// version is an error reported by Build.
func (b *Builder) Object(h ir.ObjectHandle, mode ir.AccessMode) ir.Argument {
	if i, ok := b.objects[h.ID]; ok {
		prev := b.inputs[i]
		if prev.Mode != mode || prev.Object.Version != h.Version {
			b.fail(inputError(ErrCodeBadInput, i, "object %s added twice with conflicting mode or version", h.ID))
		}
		return ir.InputArg(i)
	}
	b.inputs = append(b.inputs, ir.ObjectInput(h, mode))
	b.objects[h.ID] = len(b.inputs) - 1
	return ir.InputArg(len(b.inputs) - 1)
}

// Invoke records a function call declared to return `returns` values.
func (b *Builder) Invoke(pkg ir.Address, module, function string, typeArgs []ir.TypeTag, args []ir.Argument, returns int) Result {
	return b.add(ir.Invoke{
		Package:   pkg,
		Module:    module,
		Function:  function,
		TypeArgs:  typeArgs,
		Arguments: args,
		Returns:   returns,
	})
}

// Transfer hands objects to recipient.
func (b *Builder) Transfer(recipient ir.Argument, objects ...ir.Argument) {
	b.add(ir.TransferOwnership{Objects: objects, Recipient: recipient})
}

// Split carves one value per amount off source and returns their handles.
func (b *Builder) Split(source ir.Argument, amounts ...ir.Argument) []ir.Argument {
	return b.add(ir.SplitValue{Source: source, Amounts: amounts}).All()
}

// Merge folds sources into destination.
func (b *Builder) Merge(destination ir.Argument, sources ...ir.Argument) {
	b.add(ir.MergeValues{Destination: destination, Sources: sources})
}

// Collection builds a vector value.
func (b *Builder) Collection(elemType *ir.TypeTag, elements ...ir.Argument) ir.Argument {
	return b.add(ir.BuildCollection{ElementType: elemType, Elements: elements}).Arg()
}

// Publish records a package publication; the result is the upgrade capability.
func (b *Builder) Publish(modules [][]byte, deps ...ir.ObjectID) ir.Argument {
	return b.add(ir.Publish{Modules: modules, Dependencies: deps}).Arg()
}

// Upgrade records a package upgrade authorized by ticket.
func (b *Builder) Upgrade(pkg ir.ObjectID, ticket ir.Argument, modules [][]byte, deps ...ir.ObjectID) ir.Argument {
	return b.add(ir.Upgrade{Modules: modules, Dependencies: deps, Package: pkg, Ticket: ticket}).Arg()
}

// Receive claims an object sent to an object address.
func (b *Builder) Receive(id ir.ObjectID, typ *ir.TypeTag) ir.Argument {
	return b.add(ir.AcquireReceived{ObjectID: id, Type: typ}).Arg()
}

// Build validates and returns the block.
func (b *Builder) Build() (*Block, error) {
	if b.err != nil {
		return nil, b.err
	}
	blk, err := Build(b.inputs, b.commands, b.opts...)
	if err != nil {
		return nil, fmt.Errorf("build block: %w", err)
	}
	return blk, nil
}

func (b *Builder) add(cmd ir.Command) Result {
	b.commands = append(b.commands, cmd)
	return Result{cmd: len(b.commands) - 1, outputs: cmd.Outputs()}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
