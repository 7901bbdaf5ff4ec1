// Package queryir describes queries over the audit log independently of
// the database that answers them.
//
// Callers build a Select and hand it to a backend compiler (see querysql):
//
//	[entry filter] → [Query IR] → [SQL backend]
//
// The IR covers what the audit log needs and nothing more:
//   - Select(from, join, columns, filter, order)
//   - one inner Join on column equality
//   - Predicates: Equals, AtLeast, And
//   - explicit columns (no SELECT *)
//
// Excluded:
//   - NULL comparisons (every stored column is NOT NULL)
//   - outer joins
//   - OR predicates and subqueries
//
// Query and Predicate are sealed: only types in this package implement
// them, so backends can switch exhaustively.
//
// Validate checks a query against a Schema before it reaches a backend.
package queryir
