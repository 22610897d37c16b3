package queryir

import "github.com/roach88/factmirror/internal/fact"

// Predicate represents a filter condition over facts.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select describes a read of the facts relation.
//
// Semantics:
//
//	SELECT * FROM facts WHERE <filter> ORDER BY <order>, id LIMIT <limit>
//
// A nil Filter selects every committed fact. Limit <= 0 means unlimited.
type Select struct {
	Filter Predicate
	Order  []OrderBy
	Limit  int
}

// OrderBy orders results by an attribute. Every query is additionally
// ordered by fact id so results are deterministic.
type OrderBy struct {
	Attr string
	Desc bool
}

// Eq matches facts whose attribute equals the literal value.
//
// Example:
//
//	Eq{Attr: "what", Value: fact.String("issue-was-opened")}
//
// Translates to SQL:
//
//	what = ?
//
// Attributes that are not promoted columns are looked up in the attrs JSON.
// A fact without the attribute never matches.
type Eq struct {
	Attr  string
	Value fact.Value
}

func (Eq) predicateNode() {}

// Gt matches facts whose attribute is strictly greater than the value.
type Gt struct {
	Attr  string
	Value fact.Value
}

func (Gt) predicateNode() {}

// Lt matches facts whose attribute is strictly less than the value.
type Lt struct {
	Attr  string
	Value fact.Value
}

func (Lt) predicateNode() {}

// Le matches facts whose attribute is less than or equal to the value.
type Le struct {
	Attr  string
	Value fact.Value
}

func (Le) predicateNode() {}

// Exists matches facts that carry the attribute at all.
type Exists struct {
	Attr string
}

func (Exists) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And is vacuously true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// All is shorthand for And{Predicates: preds}.
func All(preds ...Predicate) And {
	return And{Predicates: preds}
}

// What is shorthand for the kind filter used by almost every query.
func What(kind string) Eq {
	return Eq{Attr: fact.ColWhat, Value: fact.String(kind)}
}

// Repository is shorthand for the repository filter.
func Repository(id int64) Eq {
	return Eq{Attr: fact.ColRepository, Value: fact.Int(id)}
}

// Issue is shorthand for the issue filter.
func Issue(number int64) Eq {
	return Eq{Attr: fact.ColIssue, Value: fact.Int(number)}
}
