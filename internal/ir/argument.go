package ir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ArgKind discriminates argument references.
type ArgKind uint8

const (
	ArgInput ArgKind = iota + 1
	ArgResult
)

// Argument references either an input slot or an output of an earlier
// command in the same block.
type Argument struct {
	Kind   ArgKind
	Index  int // input index, or producing command index
	Output int // ArgResult only
}

// InputArg references the i-th block input.
func InputArg(i int) Argument {
	return Argument{Kind: ArgInput, Index: i}
}

// ResultArg references output o of command c.
func ResultArg(c, o int) Argument {
	return Argument{Kind: ArgResult, Index: c, Output: o}
}

func (a Argument) String() string {
	switch a.Kind {
	case ArgInput:
		return fmt.Sprintf("Input(%d)", a.Index)
	case ArgResult:
		return fmt.Sprintf("Result(%d, %d)", a.Index, a.Output)
	default:
		return "Invalid"
	}
}

var argumentPattern = regexp.MustCompile(`^(Input|Result)\((\d+)(?:,(\d+))?\)$`)

// ParseArgument parses "Input(i)" or "Result(c, o)". A bare "Result(c)"
// means output 0. Spaces are ignored; anything else outside that grammar
// is an error.
func ParseArgument(s string) (Argument, error) {
	m := argumentPattern.FindStringSubmatch(strings.ReplaceAll(s, " ", ""))
	if m == nil {
		return Argument{}, fmt.Errorf("argument %q: expected Input(i) or Result(c, o)", s)
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return Argument{}, fmt.Errorf("argument %q: %w", s, err)
	}
	if m[1] == "Input" {
		if m[3] != "" {
			return Argument{}, fmt.Errorf("argument %q: Input takes one index", s)
		}
		return InputArg(idx), nil
	}
	out := 0
	if m[3] != "" {
		if out, err = strconv.Atoi(m[3]); err != nil {
			return Argument{}, fmt.Errorf("argument %q: %w", s, err)
		}
	}
	return ResultArg(idx, out), nil
}

// FormatArguments renders a list as "[Input(0), Result(1, 0)]".
func FormatArguments(args []Argument) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
