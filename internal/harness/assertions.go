package harness

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/objstore"
	"github.com/roach88/txblock/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []trace.Entry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, entry := range e.Trace {
			status := "ok"
			if !entry.Outputs.Success {
				status = "failed"
			}
			fmt.Fprintf(&buf, "  [%d] %s (%s)\n", i+1, entry.Label, status)
		}
	}
	return buf.String()
}

// AssertionContext gives final_state assertions access to the object store
// and to the scenario's names.
type AssertionContext struct {
	Lookup  objstore.Lookup
	Resolve func(name string) (ir.Address, error)
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(doc trace.Document, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(doc.Traces, a)
		case AssertTraceOrder:
			err = assertTraceOrder(doc.Traces, a)
		case AssertTraceCount:
			err = assertTraceCount(doc.Traces, a)
		case AssertFinalState:
			err = assertFinalState(a, actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertTraceContains checks for an entry with the label and, when set,
// the expected success.
func assertTraceContains(entries []trace.Entry, a Assertion) error {
	for _, e := range entries {
		if e.Label == a.Label && (a.Success == nil || e.Outputs.Success == *a.Success) {
			return nil
		}
	}
	expected := "entry " + a.Label
	if a.Success != nil {
		expected += fmt.Sprintf(" with success=%t", *a.Success)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    entries,
	}
}

// assertTraceOrder checks labels appear in order. They need not be
// consecutive.
func assertTraceOrder(entries []trace.Entry, a Assertion) error {
	positions := make(map[string]int)
	for i, e := range entries {
		if _, seen := positions[e.Label]; !seen {
			positions[e.Label] = i + 1 // 1-indexed for readability
		}
	}

	for _, label := range a.Labels {
		if positions[label] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all entries present: %v", a.Labels),
				Actual:   "missing entry: " + label,
				Trace:    entries,
			}
		}
	}
	for i := 1; i < len(a.Labels); i++ {
		prev, curr := a.Labels[i-1], a.Labels[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", a.Labels),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: entries,
			}
		}
	}
	return nil
}

// assertTraceCount checks the label appears exactly Count times.
func assertTraceCount(entries []trace.Entry, a Assertion) error {
	count := 0
	for _, e := range entries {
		if e.Label == a.Label {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d entries labelled %s", a.Count, a.Label),
			Actual:   fmt.Sprintf("%d entries", count),
			Trace:    entries,
		}
	}
	return nil
}

// assertFinalState checks an object's presence, owner and type.
func assertFinalState(a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Lookup == nil || actx.Resolve == nil {
		return fmt.Errorf("final_state requires an object store")
	}
	id, err := actx.Resolve(a.Object)
	if err != nil {
		return err
	}
	obj, exists := actx.Lookup.Lookup(id)

	wantExists := a.Exists == nil || *a.Exists
	if exists != wantExists {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s exists=%t", a.Object, wantExists),
			Actual:   fmt.Sprintf("exists=%t", exists),
		}
	}
	if !exists {
		return nil
	}

	if a.Owner != "" {
		ok, err := ownerMatches(obj.Owner, a.Owner, actx.Resolve)
		if err != nil {
			return err
		}
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s owned by %s", a.Object, a.Owner),
				Actual:   obj.Owner.String(),
			}
		}
	}
	if a.ObjectType != "" && obj.Type != a.ObjectType && ir.StructNameOf(obj.Type) != a.ObjectType {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s of type %s", a.Object, a.ObjectType),
			Actual:   obj.Type,
		}
	}
	if a.Balance != nil {
		if len(obj.Bytes) < ir.AddressLength+8 {
			return fmt.Errorf("%s has no balance", a.Object)
		}
		balance := binary.LittleEndian.Uint64(obj.Bytes[ir.AddressLength : ir.AddressLength+8])
		if balance != *a.Balance {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s balance %d", a.Object, *a.Balance),
				Actual:   fmt.Sprintf("balance %d", balance),
			}
		}
	}
	return nil
}

func ownerMatches(owner ir.Owner, want string, resolve func(string) (ir.Address, error)) (bool, error) {
	switch strings.ToLower(want) {
	case "shared":
		return owner.Kind == ir.OwnerShared, nil
	case "immutable":
		return owner.Kind == ir.OwnerImmutable, nil
	}
	addr, err := resolve(want)
	if err != nil {
		return false, err
	}
	return (owner.Kind == ir.OwnerAddress || owner.Kind == ir.OwnerObject) && owner.Address == addr, nil
}
