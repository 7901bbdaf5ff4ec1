package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/txblock/internal/ir"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// FailFast stops on the first error encountered.
	FailFast LoadMode = iota
	// CollectAll collects all errors before returning.
	CollectAll
)

// LoadResult contains the manifests found in a directory.
type LoadResult struct {
	Manifests []ir.PackageManifest
	FileCount int
}

// LoadDir loads every .cue file of dir as one CUE instance and compiles
// each entry under "manifest".
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&CompileError{Code: ErrCodeNotFound, Field: "dir", Message: fmt.Sprintf("manifest directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&CompileError{Code: ErrCodeNotFound, Field: "dir", Message: fmt.Sprintf("error accessing manifest directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&CompileError{Code: ErrCodeNotFound, Field: "dir", Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&CompileError{Code: ErrCodeScanError, Field: "dir", Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&CompileError{Code: ErrCodeNoFiles, Field: "dir", Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&CompileError{Code: ErrCodeLoadFailed, Field: "cue", Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&CompileError{Code: ErrCodeLoadFailed, Field: "cue", Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{withCode(formatCUEError(err), ErrCodeBuildFailed)}
	}

	result := &LoadResult{FileCount: len(files)}
	return result, collect(value, result, mode)
}

// CompileSource compiles manifests from a single CUE source, for
// manifests embedded in tests and scenarios.
func CompileSource(filename string, src []byte) ([]ir.PackageManifest, error) {
	value := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	result := &LoadResult{FileCount: 1}
	if errs := collect(value, result, FailFast); len(errs) > 0 {
		return nil, errs[0]
	}
	return result.Manifests, nil
}

func collect(value cue.Value, result *LoadResult, mode LoadMode) []error {
	var errs []error
	manifestsVal := value.LookupPath(cue.ParsePath("manifest"))
	if !manifestsVal.Exists() {
		return []error{&CompileError{Code: ErrCodeNoFunctions, Field: "manifest", Message: "no manifests found"}}
	}
	iter, err := manifestsVal.Fields()
	if err != nil {
		return []error{formatCUEError(err)}
	}

	owners := make(map[ir.Address]string)
	for iter.Next() {
		m, err := Compile(iter.Value())
		if err != nil {
			errs = append(errs, err)
			if mode == FailFast {
				return errs
			}
			continue
		}
		if prev, ok := owners[m.Address]; ok {
			errs = append(errs, &CompileError{
				Code:    ErrCodeDuplicateAddr,
				Field:   "manifest." + m.Name + ".address",
				Message: fmt.Sprintf("address %s already used by manifest %s", m.Address.ShortString(), prev),
				Pos:     iter.Value().Pos(),
			})
			if mode == FailFast {
				return errs
			}
			continue
		}
		owners[m.Address] = m.Name
		result.Manifests = append(result.Manifests, *m)
	}
	return errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Code returns the error code of a manifest error, or ErrCodeGeneric.
func Code(err error) string {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeGeneric
}

func withCode(err error, code string) error {
	var ce *CompileError
	if errors.As(err, &ce) {
		ce.Code = code
		return ce
	}
	return &CompileError{Code: code, Field: "cue", Message: err.Error()}
}
