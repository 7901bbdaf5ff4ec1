package queryir

import "github.com/roach88/txblock/internal/ir"

// Query is a sealed query node.
type Query interface {
	queryNode()
}

// Predicate is a sealed filter condition.
type Predicate interface {
	predicateNode()
}

// Select reads Columns from a table, optionally joined to a second one.
//
//	Select{
//	  From:    "entries",
//	  Join:    &Join{Table: "runs", Left: "entries.run_id", Right: "runs.id"},
//	  Columns: []string{"entries.id", "entries.body"},
//	  Filter:  Equals{Field: "entries.flow", Value: ir.Str("fund")},
//	  OrderBy: []string{"runs.seq", "entries.seq"},
//	}
//
// Columns and fields are either bare ("flow") or qualified by table
// ("entries.flow"). Backends always append the primary key of From as the
// last ordering key, so results are deterministic even with no OrderBy.
type Select struct {
	From    string
	Join    *Join
	Columns []string
	Filter  Predicate // nil = no filter
	OrderBy []string  // ascending
}

func (Select) queryNode() {}

// Join is an inner join of Table on Left = Right.
type Join struct {
	Table string
	Left  string
	Right string
}

// Equals holds when Field equals Value.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// AtLeast holds when the integer Field is greater than or equal to Value.
type AtLeast struct {
	Field string
	Value ir.Int
}

func (AtLeast) predicateNode() {}

// And holds when every predicate holds. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// All conjoins the non-nil predicates. It returns nil when none remain and
// the predicate itself when only one does.
func All(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And{Predicates: kept}
}
