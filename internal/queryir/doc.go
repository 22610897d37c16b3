// Package queryir provides the predicate intermediate representation used to
// select facts from the fact store.
//
// QueryIR is the abstraction boundary between callers (engine, classifier,
// reconciler, CLI) and the storage backend. Callers describe WHICH facts they
// want; internal/querysql turns that description into parameterized SQL.
//
// PORTABLE FRAGMENT:
//
// The fragment includes:
//   - Select(filter, order, limit) over the single facts relation
//   - Predicates: Eq, Gt, Lt, Le, Exists, And
//
// The fragment EXCLUDES:
//   - OR predicates (issue two queries instead)
//   - Aggregations (callers count in Go)
//   - Joins and subqueries
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only types
// in this package implement it, so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Eq:
//	case Gt:
//	case Lt:
//	case Le:
//	case Exists:
//	case And:
//	}
//
// All literal values are fact.Value types (no floats), which keeps the
// parameters handed to SQLite deterministic.
package queryir
