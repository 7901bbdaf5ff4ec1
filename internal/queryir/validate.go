package queryir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/txblock/internal/ir"
)

// Schema lists the columns of each table a query may reference.
type Schema map[string][]string

// Problem is one reason a query does not fit its schema.
type Problem struct {
	Field   string
	Message string
}

func (p Problem) String() string {
	if p.Field == "" {
		return p.Message
	}
	return p.Field + ": " + p.Message
}

// Validate checks q against schema and returns every problem found.
// Bare column names must belong to exactly one of the tables in scope.
func Validate(q Query, schema Schema) []Problem {
	v := &validator{schema: schema}
	v.query(q)
	return v.problems
}

type validator struct {
	schema   Schema
	scope    []string
	problems []Problem
}

func (v *validator) addf(field, format string, args ...any) {
	v.problems = append(v.problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) query(q Query) {
	var sel Select
	switch query := q.(type) {
	case Select:
		sel = query
	case *Select:
		if query == nil {
			v.addf("", "nil query")
			return
		}
		sel = *query
	default:
		v.addf("", "unsupported query type %T", q)
		return
	}

	if !v.table(sel.From, "from") {
		return
	}
	v.scope = []string{sel.From}
	if j := sel.Join; j != nil {
		if v.table(j.Table, "join") {
			if j.Table == sel.From {
				v.addf("join", "table %q joined to itself", j.Table)
			}
			v.scope = append(v.scope, j.Table)
			v.column(j.Left)
			v.column(j.Right)
		}
	}

	if len(sel.Columns) == 0 {
		v.addf("columns", "at least one column is required")
	}
	for _, c := range sel.Columns {
		v.column(c)
	}
	for _, c := range sel.OrderBy {
		v.column(c)
	}
	v.predicate(sel.Filter)
}

func (v *validator) table(name, field string) bool {
	if name == "" {
		v.addf(field, "table is required")
		return false
	}
	if _, ok := v.schema[name]; !ok {
		v.addf(field, "unknown table %q", name)
		return false
	}
	return true
}

func (v *validator) column(ref string) {
	table, col, qualified := strings.Cut(ref, ".")
	if !qualified {
		col = ref
		var owners []string
		for _, t := range v.scope {
			if slices.Contains(v.schema[t], col) {
				owners = append(owners, t)
			}
		}
		switch len(owners) {
		case 0:
			v.addf(ref, "unknown column")
		case 1:
		default:
			v.addf(ref, "ambiguous column, found in %s", strings.Join(owners, " and "))
		}
		return
	}
	if !slices.Contains(v.scope, table) {
		v.addf(ref, "table %q is not in scope", table)
		return
	}
	if !slices.Contains(v.schema[table], col) {
		v.addf(ref, "unknown column")
	}
}

func (v *validator) predicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.column(pred.Field)
		switch pred.Value.(type) {
		case ir.Str, ir.Int, ir.Bool:
		case ir.Null, nil:
			v.addf(pred.Field, "compared to null")
		default:
			v.addf(pred.Field, "cannot compare to %T", pred.Value)
		}
	case AtLeast:
		v.column(pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	default:
		v.addf("", "unsupported predicate type %T", p)
	}
}
