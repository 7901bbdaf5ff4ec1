// Package manifest compiles CUE package manifests into ir.PackageManifest.
//
// A manifest declares, per entry function, the parameters it takes and the
// effects the simulator applies when it is invoked:
//
//	package demo
//
//	manifest: demo: {
//		address: "0xcafe"
//		module: registry: {
//			register: {
//				params: ["vector<u8>"]
//				creates: [{type: "0xcafe::registry::Entry", owner: "sender"}]
//				emits: ["Registered"]
//			}
//		}
//	}
package manifest

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/txblock/internal/ir"
)

// Error codes reported by the compiler and the loader.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeAddress       = "E101" // Missing or malformed address
	ErrCodeNoFunctions   = "E102" // No functions declared
	ErrCodeFunction      = "E103" // Inconsistent function declaration
	ErrCodeUnknownField  = "E104" // Field not part of the manifest schema
	ErrCodeDuplicateAddr = "E105" // Two manifests claim one address
)

// CompileError is a manifest problem with its CUE source position.
type CompileError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var functionFields = map[string]bool{
	"params":   true,
	"returns":  true,
	"creates":  true,
	"consumes": true,
	"emits":    true,
	"abort":    true,
}

// functionDecl mirrors the CUE shape of one function.
type functionDecl struct {
	Params   []string        `json:"params"`
	Returns  int             `json:"returns"`
	Creates  []ir.CreateSpec `json:"creates"`
	Consumes []int           `json:"consumes"`
	Emits    []string        `json:"emits"`
	Abort    *ir.AbortRule   `json:"abort"`
}

// Compile parses a CUE value into a PackageManifest. The value should be
// the manifest struct itself, e.g. the value at path "manifest.demo".
func Compile(v cue.Value) (*ir.PackageManifest, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &ir.PackageManifest{}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		m.Name = labels[len(labels)-1].String()
	}

	addrVal := v.LookupPath(cue.ParsePath("address"))
	if !addrVal.Exists() {
		return nil, &CompileError{Code: ErrCodeAddress, Field: "address", Message: "address is required", Pos: v.Pos()}
	}
	s, err := addrVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	m.Address, err = ir.ParseAddress(s)
	if err != nil {
		return nil, &CompileError{Code: ErrCodeAddress, Field: "address", Message: err.Error(), Pos: addrVal.Pos()}
	}

	modsVal := v.LookupPath(cue.ParsePath("module"))
	if modsVal.Exists() {
		mods, err := modsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for mods.Next() {
			module := mods.Label()
			fns, err := mods.Value().Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for fns.Next() {
				fn, err := compileFunction(module, fns.Label(), fns.Value())
				if err != nil {
					return nil, err
				}
				m.Functions = append(m.Functions, fn)
			}
		}
	}
	if len(m.Functions) == 0 {
		return nil, &CompileError{Code: ErrCodeNoFunctions, Field: "module", Message: "at least one function is required", Pos: v.Pos()}
	}

	sort.SliceStable(m.Functions, func(i, j int) bool {
		return m.Functions[i].Key() < m.Functions[j].Key()
	})
	return m, nil
}

func compileFunction(module, name string, v cue.Value) (ir.FunctionSpec, error) {
	field := module + "::" + name
	iter, err := v.Fields()
	if err != nil {
		return ir.FunctionSpec{}, formatCUEError(err)
	}
	for iter.Next() {
		if !functionFields[iter.Label()] {
			return ir.FunctionSpec{}, &CompileError{
				Code:    ErrCodeUnknownField,
				Field:   field + "." + iter.Label(),
				Message: "unknown field",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	var decl functionDecl
	if err := v.Decode(&decl); err != nil {
		return ir.FunctionSpec{}, formatCUEError(err)
	}
	fn := ir.FunctionSpec{
		Module:   module,
		Name:     name,
		Params:   decl.Params,
		Returns:  decl.Returns,
		Creates:  decl.Creates,
		Consumes: decl.Consumes,
		Emits:    decl.Emits,
		Abort:    decl.Abort,
	}
	if problems := fn.Validate(); len(problems) > 0 {
		return ir.FunctionSpec{}, &CompileError{
			Code:    ErrCodeFunction,
			Field:   problems[0].Field,
			Message: problems[0].Message,
			Pos:     v.Pos(),
		}
	}
	return fn, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Code:    ErrCodeGeneric,
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
