package harness

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roach88/txblock/internal/block"
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/pure"
	"github.com/roach88/txblock/internal/resolve"
	"github.com/roach88/txblock/internal/session"
)

// env resolves the names a scenario uses.
type env struct {
	accounts  map[string]ir.Address
	objects   map[string]ir.ObjectID
	functions map[string]ir.FunctionSpec
}

func newEnv(accounts map[string]string) (*env, error) {
	e := &env{
		accounts:  make(map[string]ir.Address, len(accounts)),
		objects:   make(map[string]ir.ObjectID),
		functions: make(map[string]ir.FunctionSpec),
	}
	for name, hexAddr := range accounts {
		a, err := ir.ParseAddress(hexAddr)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}
		e.accounts[name] = a
	}
	return e, nil
}

func (e *env) register(m ir.PackageManifest) {
	for _, fn := range m.Functions {
		e.functions[m.Address.String()+"::"+fn.Key()] = fn
	}
}

// address resolves "$object", an account name, or hex.
func (e *env) address(s string) (ir.Address, error) {
	if name, ok := strings.CutPrefix(s, "$"); ok {
		id, ok := e.objects[name]
		if !ok {
			return ir.Address{}, fmt.Errorf("unknown object %s", s)
		}
		return id, nil
	}
	if a, ok := e.accounts[s]; ok {
		return a, nil
	}
	return ir.ParseAddress(s)
}

func (e *env) addresses(ss []string) ([]ir.Address, error) {
	out := make([]ir.Address, len(ss))
	for i, s := range ss {
		a, err := e.address(s)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// build assembles a step's block. Resolution and construction errors are
// returned unwrapped enough for the rejection helpers to classify them.
func (e *env) build(sess *session.Session, step *Step) (*block.Block, error) {
	b := sess.Builder()
	for i, in := range step.Inputs {
		arg, err := e.input(sess, b, in)
		if err != nil {
			return nil, fmt.Errorf("inputs[%d]: %w", i, err)
		}
		if arg.Index != i {
			return nil, fmt.Errorf("inputs[%d]: %s is already input %d", i, in.Object, arg.Index)
		}
	}
	for i, cmd := range step.Commands {
		if err := e.command(b, cmd); err != nil {
			return nil, fmt.Errorf("commands[%d]: %w", i, err)
		}
	}
	return b.Build()
}

func (e *env) input(sess *session.Session, b *block.Builder, in InputSpec) (ir.Argument, error) {
	if in.Object == "" {
		raw, err := e.pure(in.Type, in.Value)
		if err != nil {
			return ir.Argument{}, err
		}
		return b.Pure(raw), nil
	}

	id, err := e.address(in.Object)
	if err != nil {
		return ir.Argument{}, err
	}
	h, err := sess.Resolve(id)
	if err != nil {
		return ir.Argument{}, err
	}
	if in.Version != 0 {
		h.Version = ir.Version(in.Version)
	}
	mode := ir.Owned()
	if in.Mode != "" {
		if mode, err = ir.ParseAccessMode(in.Mode); err != nil {
			return ir.Argument{}, err
		}
	}
	return b.Object(h, mode), nil
}

// pure encodes a literal. Address values may use scenario names.
func (e *env) pure(typ string, v any) ([]byte, error) {
	switch typ {
	case "address":
		if s, ok := v.(string); ok {
			a, err := e.address(s)
			if err != nil {
				return nil, err
			}
			return pure.Address(a), nil
		}
	case "vector<address>":
		if list, ok := v.([]any); ok {
			resolved := make([]any, len(list))
			for i, elem := range list {
				s, ok := elem.(string)
				if !ok {
					return nil, fmt.Errorf("encode vector<address>: element %d is %T", i, elem)
				}
				a, err := e.address(s)
				if err != nil {
					return nil, err
				}
				resolved[i] = a.String()
			}
			v = resolved
		}
	}
	return pure.Encode(typ, v)
}

func (e *env) command(b *block.Builder, c CommandSpec) error {
	switch {
	case c.Invoke != nil:
		return e.invoke(b, c.Invoke)

	case c.Transfer != nil:
		objects, err := parseArgs(c.Transfer.Objects)
		if err != nil {
			return err
		}
		to, err := ir.ParseArgument(c.Transfer.To)
		if err != nil {
			return err
		}
		b.Transfer(to, objects...)

	case c.Split != nil:
		coin, err := ir.ParseArgument(c.Split.Coin)
		if err != nil {
			return err
		}
		amounts, err := parseArgs(c.Split.Amounts)
		if err != nil {
			return err
		}
		b.Split(coin, amounts...)

	case c.Merge != nil:
		into, err := ir.ParseArgument(c.Merge.Into)
		if err != nil {
			return err
		}
		sources, err := parseArgs(c.Merge.Sources)
		if err != nil {
			return err
		}
		b.Merge(into, sources...)

	case c.Collection != nil:
		typ, err := optionalType(c.Collection.Type)
		if err != nil {
			return err
		}
		elems, err := parseArgs(c.Collection.Elements)
		if err != nil {
			return err
		}
		b.Collection(typ, elems...)

	case c.Publish != nil:
		mods, err := decodeModules(c.Publish.Modules)
		if err != nil {
			return err
		}
		deps, err := e.addresses(c.Publish.Deps)
		if err != nil {
			return err
		}
		b.Publish(mods, deps...)

	case c.Upgrade != nil:
		pkg, err := e.address(c.Upgrade.Package)
		if err != nil {
			return err
		}
		ticket, err := ir.ParseArgument(c.Upgrade.Ticket)
		if err != nil {
			return err
		}
		mods, err := decodeModules(c.Upgrade.Modules)
		if err != nil {
			return err
		}
		deps, err := e.addresses(c.Upgrade.Deps)
		if err != nil {
			return err
		}
		b.Upgrade(pkg, ticket, mods, deps...)

	case c.Receive != nil:
		id, err := e.address(c.Receive.Object)
		if err != nil {
			return err
		}
		typ, err := optionalType(c.Receive.Type)
		if err != nil {
			return err
		}
		b.Receive(id, typ)

	default:
		return fmt.Errorf("empty command")
	}
	return nil
}

func (e *env) invoke(b *block.Builder, spec *InvokeSpec) error {
	parts := strings.Split(spec.Target, "::")
	if len(parts) != 3 {
		return fmt.Errorf("invoke target %q: expected address::module::function", spec.Target)
	}
	pkg, err := e.address(parts[0])
	if err != nil {
		return fmt.Errorf("invoke target %q: %w", spec.Target, err)
	}
	typeArgs := make([]ir.TypeTag, len(spec.TypeArgs))
	for i, s := range spec.TypeArgs {
		if typeArgs[i], err = ir.ParseTypeTag(s); err != nil {
			return err
		}
	}
	args, err := parseArgs(spec.Args)
	if err != nil {
		return err
	}

	// Unknown functions still build; the engine reports them.
	returns := e.functions[pkg.String()+"::"+parts[1]+"::"+parts[2]].Returns
	if spec.Returns != nil {
		returns = *spec.Returns
	}
	b.Invoke(pkg, parts[1], parts[2], typeArgs, args, returns)
	return nil
}

func parseArgs(ss []string) ([]ir.Argument, error) {
	out := make([]ir.Argument, len(ss))
	for i, s := range ss {
		a, err := ir.ParseArgument(s)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func optionalType(s string) (*ir.TypeTag, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ir.ParseTypeTag(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeModules(mods []string) ([][]byte, error) {
	out := make([][]byte, len(mods))
	for i, m := range mods {
		b, err := hex.DecodeString(strings.TrimPrefix(m, "0x"))
		if err != nil {
			return nil, fmt.Errorf("module %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// rejection names the category of an error raised before submission, or
// returns "" when err is not a resolution or construction error.
func rejection(err error) string {
	switch {
	case resolve.IsNotFound(err):
		return RejectNotFound
	case resolve.IsStale(err):
		return RejectStale
	case block.IsValidationError(err):
		return string(block.CodeOf(err))
	}
	return ""
}
