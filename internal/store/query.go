package store

import (
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/queryir"
)

// schema mirrors the columns of schema.sql that queries may reference.
var schema = queryir.Schema{
	"runs":    {"id", "seq", "protocol", "version", "timestamp", "entry_count"},
	"entries": {"id", "run_id", "seq", "flow", "label", "sender", "success", "gas_used", "body"},
}

// EntryFilter selects stored entries. Zero fields match everything.
type EntryFilter struct {
	RunID   string
	Flow    string
	Label   string
	Sender  string
	Success *bool
	MinGas  uint64
}

func (f EntryFilter) query() queryir.Select {
	var preds []queryir.Predicate
	eq := func(field, value string) {
		if value != "" {
			preds = append(preds, queryir.Equals{Field: "entries." + field, Value: ir.Str(value)})
		}
	}
	eq("run_id", f.RunID)
	eq("flow", f.Flow)
	eq("label", f.Label)
	eq("sender", f.Sender)
	if f.Success != nil {
		preds = append(preds, queryir.Equals{Field: "entries.success", Value: ir.Bool(*f.Success)})
	}
	if f.MinGas > 0 {
		preds = append(preds, queryir.AtLeast{Field: "entries.gas_used", Value: ir.Int(f.MinGas)})
	}

	return queryir.Select{
		From:    "entries",
		Join:    &queryir.Join{Table: "runs", Left: "entries.run_id", Right: "runs.id"},
		Columns: []string{"entries.id", "entries.run_id", "entries.seq", "entries.body"},
		Filter:  queryir.All(preds...),
		OrderBy: []string{"runs.seq", "entries.seq"},
	}
}
