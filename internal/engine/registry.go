package engine

import (
	"fmt"
	"sync"

	"github.com/roach88/txblock/internal/ir"
)

// registry maps package functions to their manifests.
type registry struct {
	mu        sync.RWMutex
	packages  map[ir.Address]string
	functions map[string]ir.FunctionSpec
}

func newRegistry() *registry {
	return &registry{
		packages:  make(map[ir.Address]string),
		functions: make(map[string]ir.FunctionSpec),
	}
}

func functionKey(pkg ir.Address, module, name string) string {
	return pkg.String() + "::" + module + "::" + name
}

// register validates m and installs every function. Nothing is installed
// when any function is invalid.
func (r *registry) register(m ir.PackageManifest) error {
	var problems []ir.ValidationError
	if m.Address.IsZero() {
		problems = append(problems, ir.ValidationError{Field: "address", Message: "package address is required"})
	}
	seen := make(map[string]bool, len(m.Functions))
	for _, fn := range m.Functions {
		if fn.Module == "" || fn.Name == "" {
			problems = append(problems, ir.ValidationError{Field: fn.Key(), Message: "module and name are required"})
			continue
		}
		if seen[fn.Key()] {
			problems = append(problems, ir.ValidationError{Field: fn.Key(), Message: "declared twice"})
		}
		seen[fn.Key()] = true
		problems = append(problems, fn.Validate()...)
	}
	if len(problems) > 0 {
		return &RegistryError{Package: m.Name, Problems: problems}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.packages[m.Address]; ok && prev != m.Name {
		return &RegistryError{Package: m.Name, Problems: []ir.ValidationError{{
			Field:   "address",
			Message: fmt.Sprintf("%s is already registered as %s", m.Address.ShortString(), prev),
		}}}
	}
	r.packages[m.Address] = m.Name
	for _, fn := range m.Functions {
		r.functions[functionKey(m.Address, fn.Module, fn.Name)] = fn
	}
	return nil
}

func (r *registry) lookup(pkg ir.Address, module, name string) (ir.FunctionSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[functionKey(pkg, module, name)]
	return fn, ok
}

func (r *registry) hasPackage(pkg ir.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.packages[pkg]
	return ok
}
