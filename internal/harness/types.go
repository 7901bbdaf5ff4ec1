package harness

import (
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/trace"
)

// StepResult is what one step did.
type StepResult struct {
	Label  string     `json:"label"`
	Flow   string     `json:"flow,omitempty"`
	Sender ir.Address `json:"sender"`

	// Executed is false when the step was rejected before submission.
	Executed bool   `json:"executed"`
	Rejected string `json:"rejected,omitempty"`

	Success   bool     `json:"success"`
	GasUsed   uint64   `json:"gasUsed"`
	Created   int      `json:"created"`
	Mutated   int      `json:"mutated"`
	Deleted   int      `json:"deleted"`
	Events    []string `json:"events"`
	ErrorKind string   `json:"errorKind,omitempty"`
	AbortCode uint64   `json:"abortCode,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Capture is an object a step classified and named.
type Capture struct {
	ID   ir.ObjectID `json:"id"`
	Type string      `json:"type"`
	Step string      `json:"step"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	Name string `json:"name"`

	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	Steps    []StepResult       `json:"steps"`
	Captures map[string]Capture `json:"captures"`

	// Trace is the document drained from the run's recorder.
	Trace trace.Document `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Warnings are problems that did not affect the outcome, such as a
	// trace sink that could not be written.
	Warnings []string `json:"warnings,omitempty"`

	// aliases maps addresses back to the account and object names the
	// scenario used, for snapshots.
	aliases map[ir.Address]string
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:     name,
		Pass:     true,
		Steps:    []StepResult{},
		Captures: make(map[string]Capture),
		Errors:   []string{},
		aliases:  make(map[ir.Address]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Alias returns the scenario's name for a, or its short hex form.
func (r *Result) Alias(a ir.Address) string {
	if name, ok := r.aliases[a]; ok {
		return name
	}
	return a.ShortString()
}
