package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/txblock/internal/effects"
)

// Scenario is one YAML scenario file.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Manifests lists directories of CUE package manifests.
	// Paths are relative to the scenario file location.
	Manifests []string `yaml:"manifests"`

	// Accounts names addresses so steps can write "alice" instead of hex.
	Accounts map[string]string `yaml:"accounts,omitempty"`

	// Sender is the default sender of every step.
	Sender string `yaml:"sender"`

	// ClockMs seeds the clock object. Zero leaves it out.
	ClockMs uint64 `yaml:"clock_ms,omitempty"`

	// GasBudget overrides the per-block gas budget.
	GasBudget uint64 `yaml:"gas_budget,omitempty"`

	// FlowToken is the flow recorded for steps that do not set one.
	FlowToken string `yaml:"flow_token,omitempty"`

	Objects []SeedObject `yaml:"objects,omitempty"`
	Coins   []SeedCoin   `yaml:"coins,omitempty"`
	Steps   []Step       `yaml:"steps"`

	// Assertions validate the recorded trace and the final object store.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SeedObject is loaded into the object store before the first step.
type SeedObject struct {
	Name      string `yaml:"name"`
	ID        string `yaml:"id"`
	Type      string `yaml:"type"`
	Owner     string `yaml:"owner,omitempty"`
	Shared    bool   `yaml:"shared,omitempty"`
	Immutable bool   `yaml:"immutable,omitempty"`
	Version   uint64 `yaml:"version,omitempty"` // default 1

	// Contents is hex appended after the object id.
	Contents string `yaml:"contents,omitempty"`
}

// SeedCoin mints a coin before the first step.
type SeedCoin struct {
	Name   string `yaml:"name"`
	Owner  string `yaml:"owner,omitempty"` // default: scenario sender
	Amount uint64 `yaml:"amount"`
}

// Step builds and submits one block.
type Step struct {
	Label  string `yaml:"label"`
	Flow   string `yaml:"flow,omitempty"`
	Sender string `yaml:"sender,omitempty"`

	// Resubmit names an earlier step whose block is submitted again
	// unchanged. Inputs and Commands must be empty.
	Resubmit string `yaml:"resubmit,omitempty"`

	Inputs   []InputSpec   `yaml:"inputs,omitempty"`
	Commands []CommandSpec `yaml:"commands,omitempty"`

	// Expect defaults to success when omitted.
	Expect *Expect `yaml:"expect,omitempty"`

	// Capture maps names to classifier hints applied to a successful result.
	Capture map[string]string `yaml:"capture,omitempty"`
}

// InputSpec is an object input (Object set) or a pure input (Type and Value).
type InputSpec struct {
	Object  string `yaml:"object,omitempty"`
	Mode    string `yaml:"mode,omitempty"`    // default Owned
	Version uint64 `yaml:"version,omitempty"` // pins a snapshot

	Type  string `yaml:"type,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

// CommandSpec holds exactly one command.
type CommandSpec struct {
	Invoke     *InvokeSpec     `yaml:"invoke,omitempty"`
	Transfer   *TransferSpec   `yaml:"transfer,omitempty"`
	Split      *SplitSpec      `yaml:"split,omitempty"`
	Merge      *MergeSpec      `yaml:"merge,omitempty"`
	Collection *CollectionSpec `yaml:"collection,omitempty"`
	Publish    *PublishSpec    `yaml:"publish,omitempty"`
	Upgrade    *UpgradeSpec    `yaml:"upgrade,omitempty"`
	Receive    *ReceiveSpec    `yaml:"receive,omitempty"`
}

// InvokeSpec calls "address::module::function".
type InvokeSpec struct {
	Target   string   `yaml:"target"`
	TypeArgs []string `yaml:"type_args,omitempty"`
	Args     []string `yaml:"args,omitempty"`

	// Returns defaults to the count the manifest declares.
	Returns *int `yaml:"returns,omitempty"`
}

type TransferSpec struct {
	Objects []string `yaml:"objects"`
	To      string   `yaml:"to"`
}

type SplitSpec struct {
	Coin    string   `yaml:"coin"`
	Amounts []string `yaml:"amounts"`
}

type MergeSpec struct {
	Into    string   `yaml:"into"`
	Sources []string `yaml:"sources"`
}

type CollectionSpec struct {
	Type     string   `yaml:"type,omitempty"`
	Elements []string `yaml:"elements"`
}

// PublishSpec modules are hex strings.
type PublishSpec struct {
	Modules []string `yaml:"modules"`
	Deps    []string `yaml:"deps,omitempty"`
}

type UpgradeSpec struct {
	Package string   `yaml:"package"`
	Ticket  string   `yaml:"ticket"`
	Modules []string `yaml:"modules"`
	Deps    []string `yaml:"deps,omitempty"`
}

type ReceiveSpec struct {
	Object string `yaml:"object"`
	Type   string `yaml:"type,omitempty"`
}

// Expect is what a step must produce.
type Expect struct {
	Success    *bool   `yaml:"success,omitempty"`
	ErrorKind  string  `yaml:"error_kind,omitempty"`
	AbortCode  *uint64 `yaml:"abort_code,omitempty"`
	CreatedMin int     `yaml:"created_min,omitempty"`

	// Rejected expects the step to fail before submission: "not_found",
	// "stale", or a construction error code.
	Rejected string `yaml:"rejected,omitempty"`
}

// Rejection categories for resolution errors.
const (
	RejectNotFound = "not_found"
	RejectStale    = "stale"
)

// Assertion validates the recorded trace or the final object store.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an entry with Label exists (and Success matches if set)
	// - "trace_order": entries with Labels appear in order
	// - "trace_count": exactly Count entries carry Label
	// - "final_state": Object exists (or not) with Owner, ObjectType and,
	//   for coins, Balance
	Type string `yaml:"type"`

	Label   string   `yaml:"label,omitempty"`
	Labels  []string `yaml:"labels,omitempty"`
	Count   int      `yaml:"count,omitempty"`
	Success *bool    `yaml:"success,omitempty"`

	Object     string  `yaml:"object,omitempty"`
	Exists     *bool   `yaml:"exists,omitempty"` // default true
	Owner      string  `yaml:"owner,omitempty"`  // account, hex, "shared" or "immutable"
	ObjectType string  `yaml:"object_type,omitempty"`
	Balance    *uint64 `yaml:"balance,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Manifest paths are
// resolved relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving manifest paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, dir := range scenario.Manifests {
		if !filepath.IsAbs(dir) && basePath != "" {
			scenario.Manifests[i] = filepath.Join(basePath, dir)
		}
	}
	for _, dir := range scenario.Manifests {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: manifest directory not found: %s", dir)
		}
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML without touching the
// filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Sender == "" {
		return fmt.Errorf("sender is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	names := make(map[string]bool)
	claim := func(kind string, i int, name string) error {
		if name == "" {
			return fmt.Errorf("%s[%d]: name is required", kind, i)
		}
		if names[name] {
			return fmt.Errorf("%s[%d]: name %q is already used", kind, i, name)
		}
		names[name] = true
		return nil
	}
	for i, o := range s.Objects {
		if err := claim("objects", i, o.Name); err != nil {
			return err
		}
		if o.ID == "" || o.Type == "" {
			return fmt.Errorf("objects[%d]: id and type are required", i)
		}
		if o.Shared && o.Immutable {
			return fmt.Errorf("objects[%d]: cannot be both shared and immutable", i)
		}
	}
	for i, c := range s.Coins {
		if err := claim("coins", i, c.Name); err != nil {
			return err
		}
	}

	labels := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, &step, labels); err != nil {
			return err
		}
		labels[step.Label] = true
		for name := range step.Capture {
			if names[name] {
				return fmt.Errorf("steps[%d].capture: name %q is already used", i, name)
			}
			names[name] = true
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step *Step, earlier map[string]bool) error {
	if step.Label == "" {
		return fmt.Errorf("steps[%d]: label is required", i)
	}
	if earlier[step.Label] {
		return fmt.Errorf("steps[%d]: label %q is already used", i, step.Label)
	}

	if step.Resubmit != "" {
		if len(step.Inputs) > 0 || len(step.Commands) > 0 {
			return fmt.Errorf("steps[%d]: resubmit excludes inputs and commands", i)
		}
		if !earlier[step.Resubmit] {
			return fmt.Errorf("steps[%d]: resubmit refers to unknown earlier step %q", i, step.Resubmit)
		}
	} else if len(step.Commands) == 0 {
		return fmt.Errorf("steps[%d]: commands list is required and must be non-empty", i)
	}

	for j, in := range step.Inputs {
		switch {
		case in.Object != "" && in.Type != "":
			return fmt.Errorf("steps[%d].inputs[%d]: object and type are exclusive", i, j)
		case in.Object == "" && in.Type == "":
			return fmt.Errorf("steps[%d].inputs[%d]: object or type is required", i, j)
		case in.Type != "" && in.Value == nil:
			return fmt.Errorf("steps[%d].inputs[%d]: value is required for pure inputs", i, j)
		}
	}
	for j, cmd := range step.Commands {
		if n := cmd.count(); n != 1 {
			return fmt.Errorf("steps[%d].commands[%d]: exactly one command is required, found %d", i, j, n)
		}
	}
	for name, hint := range step.Capture {
		if _, err := effects.ParseHint(hint); err != nil {
			return fmt.Errorf("steps[%d].capture[%s]: %w", i, name, err)
		}
	}
	if e := step.Expect; e != nil && e.Rejected != "" && (e.Success != nil || e.ErrorKind != "" || e.AbortCode != nil) {
		return fmt.Errorf("steps[%d].expect: rejected excludes execution expectations", i)
	}
	return nil
}

func (c CommandSpec) count() int {
	n := 0
	for _, set := range []bool{
		c.Invoke != nil, c.Transfer != nil, c.Split != nil, c.Merge != nil,
		c.Collection != nil, c.Publish != nil, c.Upgrade != nil, c.Receive != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Labels) == 0 {
			return fmt.Errorf("assertions[%d]: labels list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Object == "" {
			return fmt.Errorf("assertions[%d]: object is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
