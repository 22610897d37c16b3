package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/factmirror/internal/fact"
)

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// marshalAttrs serializes attributes to canonical JSON for the attrs column.
// Promoted columns may not be shadowed by attributes.
func marshalAttrs(attrs fact.Attrs) (string, error) {
	for _, col := range []string{fact.ColID, fact.ColEventID, fact.ColWhat, fact.ColRepository, fact.ColIssue} {
		if _, ok := attrs[col]; ok {
			return "", fmt.Errorf("attribute %q shadows a column", col)
		}
	}
	if attrs == nil {
		return "{}", nil
	}
	b, err := attrs.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(b), nil
}

// scanFact reads one row selected with querysql.Columns.
func scanFact(row rowScanner) (fact.Fact, error) {
	var (
		f         fact.Fact
		eventID   sql.NullInt64
		issue     sql.NullInt64
		attrsJSON string
		createdAt string
	)
	if err := row.Scan(&f.ID, &eventID, &f.What, &f.Repository, &issue, &f.RunID, &attrsJSON, &createdAt); err != nil {
		return fact.Fact{}, fmt.Errorf("scan fact: %w", err)
	}
	f.EventID = eventID.Int64
	f.Issue = issue.Int64

	if err := f.Attrs.UnmarshalJSON([]byte(attrsJSON)); err != nil {
		return fact.Fact{}, fmt.Errorf("fact %d: unmarshal attrs: %w", f.ID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return fact.Fact{}, fmt.Errorf("fact %d: parse created_at: %w", f.ID, err)
	}
	f.CreatedAt = ts
	return f, nil
}

// nullInt maps zero to NULL for optional integer columns.
func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
