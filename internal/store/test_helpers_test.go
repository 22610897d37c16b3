package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/factmirror/internal/fact"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return openTestStore(t, filepath.Join(t.TempDir(), "test.db"))
}

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	fixed := time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC)
	s, err := Open(path, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// claimAndFill runs the full claim protocol for one event.
func claimAndFill(t *testing.T, s *Store, eventID int64, f fact.Fact) {
	t.Helper()
	ctx := context.Background()
	txn, err := s.Begin(ctx)
	require.NoError(t, err)
	defer txn.Rollback()

	c, err := txn.Claim(ctx, eventID, "run-1")
	require.NoError(t, err)
	require.NoError(t, txn.Fill(ctx, c, f))
	require.NoError(t, txn.Commit())
}

func issueFact(repo, issue int64) fact.Fact {
	f := fact.New(fact.KindIssueOpened, repo)
	f.Issue = issue
	f.Set("who", fact.Int(42))
	return f
}
