// Package querysql compiles queryir queries to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/queryir"
)

// Compile converts q to SQL and its parameters.
//
// Values are never interpolated. Every query ends its ORDER BY with the
// id column of the From table, compared as BINARY, so two runs of the same
// query over the same rows return them in the same order.
func Compile(q queryir.Query) (string, []any, error) {
	var sel queryir.Select
	switch query := q.(type) {
	case queryir.Select:
		sel = query
	case *queryir.Select:
		if query == nil {
			return "", nil, fmt.Errorf("cannot compile nil query")
		}
		sel = *query
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil query")
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
	return compileSelect(sel)
}

func compileSelect(q queryir.Select) (string, []any, error) {
	if q.From == "" {
		return "", nil, fmt.Errorf("select: table is required")
	}
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("select: at least one column is required")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(q.Columns, ", "), q.From)
	if j := q.Join; j != nil {
		fmt.Fprintf(&b, " INNER JOIN %s ON %s = %s", j.Table, j.Left, j.Right)
	}

	var params []any
	if q.Filter != nil {
		where, p, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = p
	}

	b.WriteString(" ORDER BY ")
	for _, col := range q.OrderBy {
		b.WriteString(col)
		b.WriteString(" ASC, ")
	}
	b.WriteString(stableOrderKey(q))
	return b.String(), params, nil
}

// stableOrderKey is the final tiebreaker of every query.
func stableOrderKey(q queryir.Select) string {
	if q.Join != nil {
		return q.From + ".id COLLATE BINARY ASC"
	}
	return "id COLLATE BINARY ASC"
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		param, err := valueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", pred.Field, err)
		}
		return pred.Field + " = ?", []any{param}, nil
	case queryir.AtLeast:
		return pred.Field + " >= ?", []any{int64(pred.Value)}, nil
	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, p, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			if _, nested := sub.(queryir.And); nested {
				sql = "(" + sql + ")"
			}
			parts = append(parts, sql)
			params = append(params, p...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// valueToParam converts a scalar ir.Value to a driver parameter.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.Str:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Null, nil:
		return nil, fmt.Errorf("null cannot be compared")
	default:
		return nil, fmt.Errorf("%T cannot be used as a SQL parameter", v)
	}
}
