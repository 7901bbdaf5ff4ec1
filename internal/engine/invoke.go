package engine

import (
	"strings"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/pure"
)

type paramKind uint8

const (
	paramAny paramKind = iota
	paramPure
	paramRef
	paramMutRef
	paramValue
)

// classifyParam reads a manifest parameter such as "u64", "&Clock",
// "&mut Pool" or "Coin<SUI>".
func classifyParam(p string) (paramKind, string) {
	p = strings.TrimSpace(p)
	switch {
	case p == "" || p == "_":
		return paramAny, ""
	case strings.HasPrefix(p, "&mut "):
		return paramMutRef, strings.TrimSpace(p[len("&mut "):])
	case strings.HasPrefix(p, "&"):
		return paramRef, strings.TrimSpace(p[1:])
	}
	if t, err := ir.ParseTypeTag(p); err == nil && t.Kind != ir.KindStruct {
		return paramPure, p
	}
	if p == "String" || strings.HasSuffix(p, "::string::String") || strings.HasSuffix(p, "::ascii::String") {
		return paramPure, p
	}
	return paramValue, p
}

// typeMatches compares an object's type with a parameter type by
// unqualified struct name, which is all a manifest can reliably state.
func typeMatches(objType, param string) bool {
	if param == "" || param == "T" {
		return true
	}
	return ir.StructNameOf(objType) == ir.StructNameOf(param)
}

func (s *state) invoke(cmd int, c ir.Invoke, fn ir.FunctionSpec) ([]value, *ir.ExecutionError) {
	if len(fn.Params) > 0 && len(fn.Params) != len(c.Arguments) {
		return nil, failf(ir.ErrKindTypeMismatch, cmd, "%s expects %d arguments, got %d", c.Target(), len(fn.Params), len(c.Arguments))
	}

	consumed := make(map[int]bool, len(fn.Consumes))
	for _, pos := range fn.Consumes {
		consumed[pos] = true
	}

	var pures [][]byte
	taken := make(map[int]*live)
	for i, arg := range c.Arguments {
		kind, typ := paramAny, ""
		if len(fn.Params) > 0 {
			kind, typ = classifyParam(fn.Params[i])
		}
		sl, err := s.slotFor(arg, cmd)
		if err != nil {
			return nil, err
		}
		if kind == paramAny {
			kind = inferParam(sl, consumed[i])
		}

		switch kind {
		case paramPure:
			raw, err := s.pureArg(arg, cmd)
			if err != nil {
				return nil, err
			}
			pures = append(pures, raw)
		case paramRef, paramMutRef:
			l, err := s.borrow(arg, cmd, kind == paramMutRef)
			if err != nil {
				return nil, err
			}
			if !typeMatches(l.obj.Type, typ) {
				return nil, failf(ir.ErrKindTypeMismatch, cmd, "argument %d is %s, expected %s", i, l.obj.Type, typ)
			}
			if consumed[i] {
				return nil, failf(ir.ErrKindInvalidInput, cmd, "argument %d is borrowed and cannot be consumed", i)
			}
		case paramValue:
			l, err := s.takeObject(arg, cmd)
			if err != nil {
				return nil, err
			}
			if !typeMatches(l.obj.Type, typ) {
				return nil, failf(ir.ErrKindTypeMismatch, cmd, "argument %d is %s, expected %s", i, l.obj.Type, typ)
			}
			taken[i] = l
		}
	}

	if fn.Abort != nil {
		if err := s.checkAbort(cmd, c, fn.Abort); err != nil {
			return nil, err
		}
	}

	for i, l := range taken {
		if consumed[i] {
			s.destroy(l)
			continue
		}
		// Kept by-value objects stay with their previous owner.
		l.pending = false
	}

	contents := pure.Vector(pures...)
	var returned []value
	created := ir.List{}
	for _, cs := range fn.Creates {
		l := s.create(cs.Type, contents)
		switch cs.Owner {
		case ir.PlaceShared:
			l.obj.Owner = ir.SharedOwner(0) // stamped when effects are assembled
			l.pending = false
		case ir.PlaceImmutable:
			l.obj.Owner = ir.ImmutableOwner()
			l.pending = false
		case ir.PlaceSender:
			l.pending = false
		case ir.PlaceReturned:
			returned = append(returned, objectValue(l))
		}
		created = append(created, ir.Str(l.obj.ID.String()))
	}

	for _, ev := range fn.Emits {
		s.events = append(s.events, ir.Event{
			Type:   qualifyEvent(ev, c),
			Sender: s.sender,
			Data: ir.Object{
				"function": ir.Str(c.Target()),
				"created":  created,
			},
		})
	}

	out := make([]value, fn.Returns)
	copy(out, returned)
	for i := len(returned); i < fn.Returns; i++ {
		out[i] = pureValue(nil)
	}
	return out, nil
}

// inferParam picks an access for arguments of functions declared without
// parameter types.
func inferParam(sl *slot, consumed bool) paramKind {
	switch {
	case sl.val.kind == valPure:
		return paramPure
	case consumed:
		return paramValue
	case sl.writable():
		return paramMutRef
	default:
		return paramRef
	}
}

func (s *state) checkAbort(cmd int, c ir.Invoke, rule *ir.AbortRule) *ir.ExecutionError {
	if rule.Arg >= len(c.Arguments) {
		return failf(ir.ErrKindInvalidInput, cmd, "abort rule reads argument %d of %d", rule.Arg, len(c.Arguments))
	}
	raw, err := s.pureArg(c.Arguments[rule.Arg], cmd)
	if err != nil {
		return err
	}
	n, decErr := pure.DecodeU64(raw)
	if decErr != nil {
		return failf(ir.ErrKindTypeMismatch, cmd, "abort argument %d: %v", rule.Arg, decErr)
	}
	if n > rule.Above {
		return abort(cmd, rule.Code, c.Target())
	}
	return nil
}

func qualifyEvent(ev string, c ir.Invoke) string {
	switch strings.Count(ev, "::") {
	case 0:
		return c.Package.ShortString() + "::" + c.Module + "::" + ev
	case 1:
		return c.Package.ShortString() + "::" + ev
	default:
		return ev
	}
}
