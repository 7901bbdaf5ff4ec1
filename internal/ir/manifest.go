package ir

import "fmt"

// PackageManifest declares the observable effects of a package's entry
// functions. The simulator executes manifests in place of bytecode.
type PackageManifest struct {
	Name      string         `json:"name"`
	Address   Address        `json:"address"`
	Functions []FunctionSpec `json:"functions"`
}

// FunctionSpec describes one callable function.
type FunctionSpec struct {
	Module   string       `json:"module"`
	Name     string       `json:"name"`
	Params   []string     `json:"params"`
	Returns  int          `json:"returns"`
	Creates  []CreateSpec `json:"creates"`
	Consumes []int        `json:"consumes"`
	Emits    []string     `json:"emits"`
	Abort    *AbortRule   `json:"abort,omitempty"`
}

// Ownership placements for created objects.
const (
	PlaceSender    = "sender"
	PlaceShared    = "shared"
	PlaceImmutable = "immutable"
	PlaceReturned  = "returned"
)

// ValidPlacements lists the accepted CreateSpec.Owner values.
var ValidPlacements = map[string]bool{
	PlaceSender:    true,
	PlaceShared:    true,
	PlaceImmutable: true,
	PlaceReturned:  true,
}

// CreateSpec declares one object the function creates.
type CreateSpec struct {
	Type  string `json:"type"`
	Owner string `json:"owner"`
}

// AbortRule makes a function abort with Code when the u64 pure argument at
// position Arg is greater than Above.
type AbortRule struct {
	Arg   int    `json:"arg"`
	Above uint64 `json:"above"`
	Code  uint64 `json:"code"`
}

// Key returns "module::name".
func (f FunctionSpec) Key() string {
	return f.Module + "::" + f.Name
}

// ReturnedCreates counts the creates placed into return slots.
func (f FunctionSpec) ReturnedCreates() int {
	n := 0
	for _, c := range f.Creates {
		if c.Owner == PlaceReturned {
			n++
		}
	}
	return n
}

// Validate checks internal consistency. All problems are reported.
func (f FunctionSpec) Validate() []ValidationError {
	var errs []ValidationError
	field := func(s string) string { return fmt.Sprintf("%s.%s", f.Key(), s) }

	if f.Returns < 0 {
		errs = append(errs, ValidationError{Field: field("returns"), Message: "must not be negative"})
	}
	if f.ReturnedCreates() > f.Returns {
		errs = append(errs, ValidationError{
			Field:   field("returns"),
			Message: fmt.Sprintf("%d returned creates exceed %d declared returns", f.ReturnedCreates(), f.Returns),
		})
	}
	for i, c := range f.Creates {
		if !ValidPlacements[c.Owner] {
			errs = append(errs, ValidationError{
				Field:   field(fmt.Sprintf("creates[%d].owner", i)),
				Message: fmt.Sprintf("invalid owner %q, must be one of: sender, shared, immutable, returned", c.Owner),
			})
		}
		if _, err := ParseTypeTag(c.Type); err != nil {
			errs = append(errs, ValidationError{Field: field(fmt.Sprintf("creates[%d].type", i)), Message: err.Error()})
		}
	}
	for i, pos := range f.Consumes {
		if pos < 0 || (len(f.Params) > 0 && pos >= len(f.Params)) {
			errs = append(errs, ValidationError{
				Field:   field(fmt.Sprintf("consumes[%d]", i)),
				Message: fmt.Sprintf("argument position %d out of range", pos),
			})
		}
	}
	if f.Abort != nil && (f.Abort.Arg < 0 || (len(f.Params) > 0 && f.Abort.Arg >= len(f.Params))) {
		errs = append(errs, ValidationError{
			Field:   field("abort.arg"),
			Message: fmt.Sprintf("argument position %d out of range", f.Abort.Arg),
		})
	}
	return errs
}

// ValidationError is a field-scoped manifest problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
