package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/queryir"
)

func TestInsert_RequiresKind(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Insert(context.Background(), fact.Fact{Repository: 1})
	assert.Error(t, err)
}

func TestInsertIfAbsent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	label := func(name string) fact.Fact {
		f := fact.New(fact.KindLabelAttached, 1)
		f.Issue = 42
		f.Set("label", fact.String(name)).Set("who", fact.Int(7))
		return f
	}

	id1, inserted, err := s.InsertIfAbsent(ctx, label("bug"), "issue", "label")
	require.NoError(t, err)
	assert.True(t, inserted)

	id2, inserted, err := s.InsertIfAbsent(ctx, label("bug"), "issue", "label")
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id1, id2)

	_, inserted, err = s.InsertIfAbsent(ctx, label("help wanted"), "issue", "label")
	require.NoError(t, err)
	assert.True(t, inserted)

	n, err := s.Count(ctx, queryir.What(fact.KindLabelAttached))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestInsertIfAbsent_MissingKey(t *testing.T) {
	s := createTestStore(t)
	_, _, err := s.InsertIfAbsent(context.Background(), fact.New(fact.KindLabelAttached, 1), "label")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "label" not set`)
}

func TestDelete_ScopedToRepositoryAndIssue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	claimAndFill(t, s, 1, issueFact(100, 5))
	claimAndFill(t, s, 2, issueFact(100, 5))
	claimAndFill(t, s, 3, issueFact(100, 6))
	claimAndFill(t, s, 4, issueFact(200, 5))

	n, err := s.Delete(ctx, queryir.All(queryir.Repository(100), queryir.Issue(5)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.Query(ctx, nil)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, int64(3), left[0].EventID)
	assert.Equal(t, int64(4), left[1].EventID)
}

func TestDelete_RequiresPredicate(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Delete(context.Background(), nil)
	assert.Error(t, err)
}

func TestWatermark_Upsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Watermark(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetWatermark(ctx, 9, 100))
	require.NoError(t, s.SetWatermark(ctx, 9, 250))
	require.NoError(t, s.SetWatermark(ctx, 10, 5))

	latest, ok, err := s.Watermark(ctx, 9)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(250), latest)

	n, err := s.Count(ctx, queryir.What(fact.KindWatermark))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "one watermark per repository")
}

func TestWatermark_NeverMovesBackwards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.db")
	slow := openTestStore(t, path)
	fast := openTestStore(t, path)
	ctx := context.Background()

	require.NoError(t, fast.SetWatermark(ctx, 9, 200))
	require.NoError(t, slow.SetWatermark(ctx, 9, 150))

	latest, _, err := fast.Watermark(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(200), latest)

	require.NoError(t, slow.SetWatermark(ctx, 9, 201))
	latest, _, err = fast.Watermark(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(201), latest)
}
