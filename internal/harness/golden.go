package harness

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/trace"
)

// Snapshot renders a result for golden comparison. Object ids are derived
// from hashes and are replaced by the names the scenario gave them; created
// objects are listed by type and owner in sorted order, because the engine
// does not report them in creation order.
func Snapshot(result *Result) ir.Object {
	steps := make(ir.List, 0, len(result.Steps))
	entries := result.Trace.Traces
	next := 0
	for _, sr := range result.Steps {
		var entry *trace.Entry
		if sr.Executed && next < len(entries) {
			entry = &entries[next]
			next++
		}
		steps = append(steps, stepSnapshot(result, sr, entry))
	}

	captures := make(ir.Object, len(result.Captures))
	for name, c := range result.Captures {
		captures[name] = ir.Str(c.Type)
	}

	return ir.Object{
		"scenario": ir.Str(result.Name),
		"pass":     ir.Bool(result.Pass),
		"steps":    steps,
		"captures": captures,
	}
}

func stepSnapshot(result *Result, sr StepResult, entry *trace.Entry) ir.Object {
	s := ir.Object{
		"label":   ir.Str(sr.Label),
		"sender":  ir.Str(result.Alias(sr.Sender)),
		"outcome": ir.Str(outcome(sr)),
	}
	if sr.Flow != "" {
		s["flow"] = ir.Str(sr.Flow)
	}
	if entry == nil {
		return s
	}

	commands := make(ir.List, len(entry.Commands))
	for i, c := range entry.Commands {
		commands[i] = ir.Str(commandLine(c))
	}
	var created []string
	for _, co := range entry.Outputs.CreatedObjects {
		created = append(created, co.ObjectType+" "+aliasAddresses(result, co.Owner))
	}
	slices.Sort(created)
	createdList := make(ir.List, len(created))
	for i, c := range created {
		createdList[i] = ir.Str(c)
	}
	events := make(ir.List, len(entry.Outputs.Events))
	for i, ev := range entry.Outputs.Events {
		events[i] = ir.Str(ev.EventType)
	}

	s["commands"] = commands
	s["created"] = createdList
	s["mutated"] = ir.Int(len(entry.Outputs.MutatedObjects))
	s["events"] = events
	s["gasUsed"] = ir.Int(int64(entry.Outputs.GasUsed))
	return s
}

// commandLine renders "MoveCall fund::deposit(Input(0), Input(1))" or
// "SplitCoins(coin: Input(0), amounts: [Input(1)])".
func commandLine(c trace.Command) string {
	name := c.CommandType
	if c.Function != "" {
		name += " " + c.Module + "::" + c.Function
	}
	if len(c.TypeArgs) > 0 {
		name += "<" + strings.Join(c.TypeArgs, ", ") + ">"
	}
	return name + "(" + strings.Join(c.Args, ", ") + ")"
}

// aliasAddresses replaces every full address the scenario named.
func aliasAddresses(result *Result, s string) string {
	for a, name := range result.aliases {
		s = strings.ReplaceAll(s, a.String(), name)
	}
	return s
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the result's canonical snapshot against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := ir.MarshalCanonical(Snapshot(result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
