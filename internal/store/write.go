package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/queryir"
	"github.com/roach88/factmirror/internal/querysql"
)

// ErrAlreadyClaimed is returned by Txn.Claim when another transaction holds
// or has committed a fact for the event.
var ErrAlreadyClaimed = errors.New("event already claimed")

// Claim identifies a placeholder row reserved for one event.
type Claim struct {
	ID      int64
	EventID int64
	RunID   string
}

// Txn is a scoped write transaction.
//
// Rollback is safe to call after Commit, so callers can defer it.
// While a Txn is open, the Store's only connection is busy: do not call
// other Store methods until it is committed or rolled back.
type Txn struct {
	s  *Store
	tx *sql.Tx
}

// Begin opens a write transaction (BEGIN IMMEDIATE).
func (s *Store) Begin(ctx context.Context) (*Txn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Txn{s: s, tx: tx}, nil
}

// Claim reserves the event for this transaction.
// Uses ON CONFLICT(event_id) DO NOTHING; zero rows affected means the event
// is taken and ErrAlreadyClaimed is returned.
func (t *Txn) Claim(ctx context.Context, eventID int64, runID string) (Claim, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO facts (event_id, what, repository, run_id, attrs, created_at)
		VALUES (?, '', 0, ?, '{}', ?)
		ON CONFLICT(event_id) DO NOTHING
	`, eventID, runID, t.s.stamp())
	if err != nil {
		return Claim{}, fmt.Errorf("claim event %d: %w", eventID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return Claim{}, fmt.Errorf("claim event %d: rows affected: %w", eventID, err)
	}
	if rowsAffected == 0 {
		return Claim{}, fmt.Errorf("claim event %d: %w", eventID, ErrAlreadyClaimed)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Claim{}, fmt.Errorf("claim event %d: last insert id: %w", eventID, err)
	}
	return Claim{ID: id, EventID: eventID, RunID: runID}, nil
}

// Fill turns the claimed placeholder into the derived fact.
// The fact's EventID, if set, must match the claim.
func (t *Txn) Fill(ctx context.Context, c Claim, f fact.Fact) error {
	if f.What == "" {
		return fmt.Errorf("fill claim %d: fact kind is required", c.ID)
	}
	if f.EventID != 0 && f.EventID != c.EventID {
		return fmt.Errorf("fill claim %d: event %d does not match claimed event %d", c.ID, f.EventID, c.EventID)
	}
	attrsJSON, err := marshalAttrs(f.Attrs)
	if err != nil {
		return fmt.Errorf("fill claim %d: %w", c.ID, err)
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE facts SET what = ?, repository = ?, issue = ?, attrs = ?
		WHERE id = ? AND what = ''
	`, f.What, f.Repository, nullInt(f.Issue), attrsJSON, c.ID)
	if err != nil {
		return fmt.Errorf("fill claim %d: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fill claim %d: rows affected: %w", c.ID, err)
	}
	if n != 1 {
		return fmt.Errorf("fill claim %d: placeholder not found", c.ID)
	}
	return nil
}

// Commit makes the transaction's writes visible.
func (t *Txn) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction, including any claim placeholder.
// Returns nil when the transaction already finished.
func (t *Txn) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Insert writes a fact outside the claim protocol and returns its id.
// Used for facts that are not tied to a single event.
func (s *Store) Insert(ctx context.Context, f fact.Fact) (int64, error) {
	if f.What == "" {
		return 0, fmt.Errorf("insert fact: kind is required")
	}
	attrsJSON, err := marshalAttrs(f.Attrs)
	if err != nil {
		return 0, fmt.Errorf("insert fact: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (event_id, what, repository, issue, run_id, attrs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, nullInt(f.EventID), f.What, f.Repository, nullInt(f.Issue), f.RunID, attrsJSON, s.stamp())
	if err != nil {
		return 0, fmt.Errorf("insert fact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert fact: last insert id: %w", err)
	}
	return id, nil
}

// InsertIfAbsent inserts the fact unless a fact of the same kind and
// repository already agrees with it on every key attribute.
//
// Returns:
//   - id: the new fact's id, or the existing fact's id
//   - inserted: true if a new fact was written
//   - error: any error that occurred
//
// The lookup and the insert share one transaction.
func (s *Store) InsertIfAbsent(ctx context.Context, f fact.Fact, keys ...string) (id int64, inserted bool, err error) {
	if f.What == "" {
		return 0, false, fmt.Errorf("insert if absent: kind is required")
	}
	preds := []queryir.Predicate{queryir.What(f.What), queryir.Repository(f.Repository)}
	for _, key := range keys {
		v, ok := keyValue(f, key)
		if !ok {
			return 0, false, fmt.Errorf("insert if absent: key %q not set on fact", key)
		}
		preds = append(preds, queryir.Eq{Attr: key, Value: v})
	}
	query, params, err := querysql.Compile(queryir.Select{Filter: queryir.All(preds...), Limit: 1})
	if err != nil {
		return 0, false, fmt.Errorf("insert if absent: %w", err)
	}
	attrsJSON, err := marshalAttrs(f.Attrs)
	if err != nil {
		return 0, false, fmt.Errorf("insert if absent: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("insert if absent: begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanFact(tx.QueryRowContext(ctx, query, params...))
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("insert if absent: commit (existing): %w", err)
		}
		return existing.ID, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, fmt.Errorf("insert if absent: lookup: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO facts (event_id, what, repository, issue, run_id, attrs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, nullInt(f.EventID), f.What, f.Repository, nullInt(f.Issue), f.RunID, attrsJSON, s.stamp())
	if err != nil {
		return 0, false, fmt.Errorf("insert if absent: insert: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("insert if absent: last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("insert if absent: commit: %w", err)
	}
	return id, true, nil
}

// keyValue reads a key from the fact, looking at promoted columns first.
func keyValue(f fact.Fact, key string) (fact.Value, bool) {
	switch key {
	case fact.ColEventID:
		return fact.Int(f.EventID), f.EventID != 0
	case fact.ColIssue:
		return fact.Int(f.Issue), f.Issue != 0
	}
	v, ok := f.Attrs[key]
	return v, ok
}

// Delete removes every fact matching the predicate in one transaction and
// returns how many were removed. A nil predicate is rejected.
func (s *Store) Delete(ctx context.Context, pred queryir.Predicate) (int64, error) {
	if pred == nil {
		return 0, fmt.Errorf("delete facts: predicate is required")
	}
	where, params, err := querysql.CompileWhere(pred)
	if err != nil {
		return 0, fmt.Errorf("delete facts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete facts: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM facts WHERE what != '' AND "+where, params...)
	if err != nil {
		return 0, fmt.Errorf("delete facts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete facts: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete facts: commit: %w", err)
	}
	return n, nil
}

// SetWatermark records the newest fully-processed event of a repository.
// It is an upsert on the repository's single watermark fact that only ever
// raises it: a lower value, as written by an overlapping run that finished
// later, leaves the stored one in place.
func (s *Store) SetWatermark(ctx context.Context, repository, latest int64) error {
	attrsJSON, err := marshalAttrs(fact.Attrs{"latest": fact.Int(latest)})
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO facts (what, repository, attrs, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(repository) WHERE what = 'events-were-scanned'
		DO UPDATE SET attrs = excluded.attrs, created_at = excluded.created_at
		WHERE json_extract(facts.attrs, '$.latest') < json_extract(excluded.attrs, '$.latest')
	`, fact.KindWatermark, repository, attrsJSON, s.stamp())
	if err != nil {
		return fmt.Errorf("set watermark for %d: %w", repository, err)
	}
	return nil
}
