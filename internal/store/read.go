package store

import (
	"context"
	"fmt"

	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/queryir"
	"github.com/roach88/factmirror/internal/querysql"
)

// QueryOption adjusts a fact query.
type QueryOption func(*queryir.Select)

// OrderBy sorts results by an attribute before the id tiebreaker.
func OrderBy(attr string, desc bool) QueryOption {
	return func(q *queryir.Select) {
		q.Order = append(q.Order, queryir.OrderBy{Attr: attr, Desc: desc})
	}
}

// Limit caps the number of returned facts.
func Limit(n int) QueryOption {
	return func(q *queryir.Select) {
		q.Limit = n
	}
}

// Query returns committed facts matching the predicate.
// Results are ordered deterministically (id ASC unless an order is given).
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Query(ctx context.Context, pred queryir.Predicate, opts ...QueryOption) ([]fact.Fact, error) {
	q := queryir.Select{Filter: pred}
	for _, opt := range opts {
		opt(&q)
	}
	query, params, err := querysql.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	facts := []fact.Fact{}
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return facts, nil
}

// First returns the first fact matching the predicate under the given order.
// The boolean is false when nothing matches.
func (s *Store) First(ctx context.Context, pred queryir.Predicate, opts ...QueryOption) (fact.Fact, bool, error) {
	facts, err := s.Query(ctx, pred, append(opts, Limit(1))...)
	if err != nil {
		return fact.Fact{}, false, err
	}
	if len(facts) == 0 {
		return fact.Fact{}, false, nil
	}
	return facts[0], true, nil
}

// Count returns the number of committed facts matching the predicate.
func (s *Store) Count(ctx context.Context, pred queryir.Predicate) (int64, error) {
	where, params, err := querysql.CompileWhere(pred)
	if err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts WHERE "+where, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return n, nil
}

// HasEvent reports whether a committed fact already holds the event id.
// This is an optimization only; Txn.Claim remains authoritative.
func (s *Store) HasEvent(ctx context.Context, eventID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts WHERE event_id = ?`, eventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check event %d: %w", eventID, err)
	}
	return n > 0, nil
}

// Watermark returns the id of the newest fully-processed event of a
// repository. ok is false when the repository was never scanned.
func (s *Store) Watermark(ctx context.Context, repository int64) (latest int64, ok bool, err error) {
	f, found, err := s.First(ctx, queryir.All(
		queryir.What(fact.KindWatermark),
		queryir.Repository(repository),
	))
	if err != nil {
		return 0, false, fmt.Errorf("read watermark: %w", err)
	}
	if !found {
		return 0, false, nil
	}
	return f.Int("latest"), true, nil
}
