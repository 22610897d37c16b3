package classify

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factmirror/internal/engine"
	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/queryir"
	"github.com/roach88/factmirror/internal/reconcile"
	"github.com/roach88/factmirror/internal/store"
	"github.com/roach88/factmirror/internal/testutil"
)

var (
	judges = github.Repository{ID: 42, FullName: "yegor256/judges"}
	baza   = github.Repository{ID: 820463873, FullName: "zerocracy/baza"}
	day    = time.Date(2024, 8, 5, 10, 0, 0, 0, time.UTC)
	rc     = engine.RunContext{RunID: "run-1"}
)

type fixture struct {
	gh    *testutil.FakeGitHub
	store *store.Store
	c     *Classifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	gh := testutil.NewFakeGitHub()
	gh.AddRepository(judges)
	gh.AddRepository(baza)
	return fixture{gh: gh, store: s, c: New(gh, s, reconcile.New(s))}
}

func (fx fixture) classify(t *testing.T, ev github.Event) engine.Result {
	t.Helper()
	res, err := fx.c.Classify(context.Background(), rc, ev)
	require.NoError(t, err)
	return res
}

func derived(t *testing.T, res engine.Result) fact.Fact {
	t.Helper()
	f, ok := res.Derived()
	require.True(t, ok, "expected a fact, got discard: %s", res.Reason())
	return f
}

func user(id int64, login string) github.User {
	return github.User{ID: id, Login: login}
}

func TestClassify_DispatchTable(t *testing.T) {
	fx := newFixture(t)
	actor := user(7, "jeff")

	tests := []struct {
		name string
		ev   github.Event
		what string
	}{
		{
			name: "push is discarded",
			ev:   testutil.NewEvent(1, github.TypePush, judges, actor, day, github.PushPayload{Ref: "refs/heads/master", Size: 2}),
		},
		{
			name: "issue opened",
			ev: testutil.NewEvent(2, github.TypeIssues, judges, actor, day, github.IssuesPayload{
				Action: "opened", Issue: github.Issue{Number: 11, User: actor},
			}),
			what: fact.KindIssueOpened,
		},
		{
			name: "issue closed",
			ev: testutil.NewEvent(3, github.TypeIssues, judges, actor, day, github.IssuesPayload{
				Action: "closed", Issue: github.Issue{Number: 11, User: actor},
			}),
			what: fact.KindIssueClosed,
		},
		{
			name: "issue reopened is discarded",
			ev: testutil.NewEvent(4, github.TypeIssues, judges, actor, day, github.IssuesPayload{
				Action: "reopened", Issue: github.Issue{Number: 11},
			}),
		},
		{
			name: "tag created",
			ev:   testutil.NewEvent(5, github.TypeCreate, judges, actor, day, github.CreatePayload{Ref: "0.1.0", RefType: "tag"}),
			what: fact.KindTagCreated,
		},
		{
			name: "branch created is discarded",
			ev:   testutil.NewEvent(6, github.TypeCreate, judges, actor, day, github.CreatePayload{Ref: "fix", RefType: "branch"}),
		},
		{
			name: "untracked type is discarded",
			ev:   testutil.NewEvent(7, "WatchEvent", judges, actor, day, map[string]string{"action": "started"}),
		},
		{
			name: "malformed payload is discarded",
			ev:   testutil.NewEvent(8, github.TypeIssues, judges, actor, day, json.RawMessage(`{"action": 5}`)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := fx.classify(t, tt.ev)
			f, ok := res.Derived()
			if tt.what == "" {
				assert.False(t, ok)
				assert.NotEmpty(t, res.Reason())
				return
			}
			require.True(t, ok, res.Reason())
			assert.Equal(t, tt.what, f.What)
			assert.Equal(t, tt.ev.ID, f.EventID)
			assert.Equal(t, judges.ID, f.Repository)
			assert.Equal(t, int64(7), f.Int("who"))
			assert.Equal(t, day, f.Time("when"))
			assert.Equal(t, tt.ev.Type, f.String("event_type"))
		})
	}
}

func TestClassify_IssueOpenedCarriesIssue(t *testing.T) {
	fx := newFixture(t)
	ev := testutil.NewEvent(2, github.TypeIssues, judges, user(7, "jeff"), day, github.IssuesPayload{
		Action: "opened", Issue: github.Issue{Number: 11},
	})
	f := derived(t, fx.classify(t, ev))
	assert.Equal(t, int64(11), f.Issue)
	assert.Equal(t, "The issue yegor256/judges#11 has been opened by @jeff.", f.String("details"))
}

func TestIssueComment_SelfCommentDiscarded(t *testing.T) {
	fx := newFixture(t)
	author := user(526200, "yegor256")
	ev := testutil.NewEvent(10, github.TypeIssueComment, judges, author, day, github.IssueCommentPayload{
		Action:  "created",
		Issue:   github.Issue{Number: 5, User: author},
		Comment: github.Comment{ID: 900, User: author, Body: "bump"},
	})
	res := fx.classify(t, ev)
	_, ok := res.Derived()
	assert.False(t, ok)
}

func TestIssueComment_Derived(t *testing.T) {
	fx := newFixture(t)
	author := user(526200, "yegor256")
	commenter := user(42, "reviewer")
	ev := testutil.NewEvent(11, github.TypeIssueComment, judges, commenter, day, github.IssueCommentPayload{
		Action:  "created",
		Issue:   github.Issue{Number: 5, User: author},
		Comment: github.Comment{ID: 901, User: commenter, Body: "looks good"},
	})
	f := derived(t, fx.classify(t, ev))
	assert.Equal(t, fact.KindCommentPosted, f.What)
	assert.Equal(t, int64(5), f.Issue)
	assert.Equal(t, int64(42), f.Int("who"))
	assert.Equal(t, int64(901), f.Int("comment_id"))
	assert.Equal(t, "looks good", f.String("comment_body"))
}

func reviewEvent(id int64, actor github.User, prAuthor int64) github.Event {
	return testutil.NewEvent(id, github.TypePullRequestReview, judges, actor, day, github.PullRequestReviewPayload{
		Action:      "created",
		Review:      github.Review{ID: id * 10, User: actor, State: "approved"},
		PullRequest: github.PullRequest{Number: 93, User: user(prAuthor, "author")},
	})
}

func TestPullRequestReview_SelfReviewDiscarded(t *testing.T) {
	fx := newFixture(t)
	fx.gh.SetPull(judges.ID, github.PullRequest{Number: 93, User: user(526200, "author"), Additions: 10, Deletions: 2, ReviewComments: 3})

	res := fx.classify(t, reviewEvent(20, user(526200, "author"), 526200))
	_, ok := res.Derived()
	assert.False(t, ok)

	f := derived(t, fx.classify(t, reviewEvent(21, user(42, "reviewer"), 526200)))
	assert.Equal(t, fact.KindPullReviewed, f.What)
	assert.Equal(t, int64(93), f.Issue)
	assert.Equal(t, int64(42), f.Int("who"))
	assert.Equal(t, int64(12), f.Int("hoc"))
	assert.Equal(t, int64(3), f.Int("review_comments"))
	assert.Equal(t, int64(210), f.Int("review_id"))
}

func TestPullRequestReview_OneFactPerReviewer(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.gh.SetPull(judges.ID, github.PullRequest{Number: 93, User: user(526200, "author")})

	for i, who := range []int64{42, 42, 55} {
		res := fx.classify(t, reviewEvent(int64(30+i), user(who, "r"), 526200))
		if f, ok := res.Derived(); ok {
			_, err := fx.store.Insert(ctx, f)
			require.NoError(t, err)
		}
	}

	facts, err := fx.store.Query(ctx, queryir.What(fact.KindPullReviewed))
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, int64(42), facts[0].Int("who"))
	assert.Equal(t, int64(55), facts[1].Int("who"))
}

func TestPullRequestReview_IgnoresOtherActions(t *testing.T) {
	fx := newFixture(t)
	ev := testutil.NewEvent(40, github.TypePullRequestReview, judges, user(42, "r"), day, github.PullRequestReviewPayload{
		Action:      "dismissed",
		PullRequest: github.PullRequest{Number: 93, User: user(1, "a")},
	})
	_, ok := fx.classify(t, ev).Derived()
	assert.False(t, ok)
	assert.Zero(t, fx.gh.CallCount("pull"))
}

// pullFixture stages zerocracy/baza#172 with two code comments and two
// conversation comments.
func pullFixture(t *testing.T, withCode bool) fixture {
	t.Helper()
	fx := newFixture(t)
	author := user(88084038, "author")
	merged := day.Add(-time.Hour)
	fx.gh.SetPull(baza.ID, github.PullRequest{
		Number: 172, User: author, MergedAt: &merged,
		Additions: 7, Deletions: 3, ChangedFiles: 2, Commits: 1,
	})
	if withCode {
		fx.gh.SetPullComments(baza.ID, 172,
			github.Comment{ID: 1709082318, User: user(2566462, "reviewer")},
			github.Comment{ID: 1709082319, User: author},
		)
	}
	fx.gh.SetIssueComments(baza.ID, 172,
		github.Comment{ID: 1709082320, User: user(2566462, "reviewer")},
		github.Comment{ID: 1709082321, User: author},
	)
	fx.gh.SetReactions(1709082320, github.Reaction{ID: 1, User: user(8086956, "fan"), Content: "+1"})
	fx.gh.SetReactions(1709082321,
		github.Reaction{ID: 2, User: user(8086956, "fan"), Content: "heart"},
		github.Reaction{ID: 3, User: author, Content: "+1"},
	)
	fx.gh.SetResolvedThreads(baza.ID, 172, 1)
	return fx
}

func closedPull(id int64) github.Event {
	return testutil.NewEvent(id, github.TypePullRequest, baza, user(2566462, "merger"), day, github.PullRequestPayload{
		Action: "closed", Number: 172, PullRequest: github.PullRequest{Number: 172},
	})
}

func TestPullRequest_CommentStats(t *testing.T) {
	tests := []struct {
		name     string
		withCode bool
		want     map[string]int64
	}{
		{
			name:     "with code comments",
			withCode: true,
			want: map[string]int64{
				"comments": 4, "comments_to_code": 2, "comments_by_author": 2,
				"comments_by_reviewers": 2, "comments_appreciated": 2, "comments_resolved": 1,
			},
		},
		{
			name: "without code comments",
			want: map[string]int64{
				"comments": 2, "comments_to_code": 0, "comments_by_author": 1,
				"comments_by_reviewers": 1, "comments_appreciated": 2, "comments_resolved": 1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := pullFixture(t, tt.withCode)
			f := derived(t, fx.classify(t, closedPull(100)))
			assert.Equal(t, fact.KindPullMerged, f.What)
			assert.Equal(t, int64(172), f.Issue)
			assert.Equal(t, int64(10), f.Int("hoc"))
			assert.Equal(t, int64(2), f.Int("files"))
			for key, want := range tt.want {
				assert.Equal(t, want, f.Int(key), key)
			}
		})
	}
}

func TestPullRequest_ClosedWithoutMerge(t *testing.T) {
	fx := newFixture(t)
	fx.gh.SetPull(baza.ID, github.PullRequest{Number: 172, User: user(1, "a")})
	f := derived(t, fx.classify(t, closedPull(101)))
	assert.Equal(t, fact.KindPullClosed, f.What)
	assert.Equal(t, int64(0), f.Int("comments"))
}

func TestPullRequest_OpenedDiscarded(t *testing.T) {
	fx := newFixture(t)
	ev := testutil.NewEvent(102, github.TypePullRequest, baza, user(1, "a"), day, github.PullRequestPayload{
		Action: "opened", Number: 172,
	})
	_, ok := fx.classify(t, ev).Derived()
	assert.False(t, ok)
}

func TestPullRequest_GoneRetractsFacts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	mine := fact.New(fact.KindIssueOpened, baza.ID)
	mine.Issue = 172
	_, err := fx.store.Insert(ctx, mine)
	require.NoError(t, err)
	other := fact.New(fact.KindIssueOpened, 55)
	other.Issue = 172
	_, err = fx.store.Insert(ctx, other)
	require.NoError(t, err)

	retracted := &retractions{}
	fx.c = New(fx.gh, fx.store, reconcile.New(fx.store), WithRecorder(retracted))

	fx.gh.MarkGone(baza.ID, 172)
	_, ok := fx.classify(t, closedPull(103)).Derived()
	assert.False(t, ok)

	n, err := fx.store.Count(ctx, queryir.Repository(baza.ID))
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = fx.store.Count(ctx, queryir.Repository(55))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), retracted.n)

	_, ok = fx.classify(t, closedPull(104)).Derived()
	assert.False(t, ok)
	assert.Equal(t, int64(1), retracted.n, "nothing left to retract")
}

type retractions struct{ n int64 }

func (r *retractions) FactsRetracted(n int64) { r.n += n }

func commit(sha string, author int64) github.Commit {
	c := github.Commit{SHA: sha}
	if author != 0 {
		c.Author = &github.User{ID: author}
	}
	return c
}

func releaseEvent(id int64, tag string, when time.Time) github.Event {
	return testutil.NewEvent(id, github.TypeRelease, baza, user(526301, "yegor256"), when, github.ReleasePayload{
		Action:  "published",
		Release: github.Release{ID: id * 100, TagName: tag, Author: user(526301, "yegor256")},
	})
}

func TestRelease_FirstUsesRosterAndRootCommit(t *testing.T) {
	fx := newFixture(t)
	const (
		head = "4683257342e98cd94becc2aa49900e720bd792e9"
		root = "69a28ba1122af281936371bbb36f67e5b97246b1"
	)
	fx.gh.SetContributors(baza.ID,
		github.Contributor{ID: 526301, Login: "yegor256"},
		github.Contributor{ID: 526302, Login: "bot"},
	)
	fx.gh.SetCommits(baza.ID, "", commit(head, 526301), commit(root, 526301))
	fx.gh.SetCommits(baza.ID, root, commit(root, 526301))
	fx.gh.SetCompare(baza.ID, root, "0.0.1", github.Comparison{
		TotalCommits: 2,
		Commits:      []github.Commit{commit(head, 526301), commit(root, 526301)},
		Files: []github.File{
			{Filename: "README.md", Additions: 5},
			{Filename: "main.go", Additions: 5, Deletions: 5},
			{Filename: "go.mod", Deletions: 7},
		},
	})

	f := derived(t, fx.classify(t, releaseEvent(1, "0.0.1", day)))
	assert.Equal(t, fact.KindReleasePublished, f.What)
	assert.Equal(t, "0.0.1", f.String("tag"))
	assert.Equal(t, []int64{526301, 526302}, f.Ints("contributors"))
	assert.Equal(t, int64(2), f.Int("commits"))
	assert.Equal(t, int64(22), f.Int("hoc"))
	assert.Equal(t, head, f.String("last_commit"))
	assert.False(t, f.Has("prev"))
}

func TestRelease_DiffsAgainstPredecessor(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first := fact.New(fact.KindReleasePublished, baza.ID)
	first.Set("tag", fact.String("0.0.1")).
		Set("when", fact.Time(day.Add(-48*time.Hour))).
		Set("last_commit", fact.String("4683257342e98cd94becc2aa49900e720bd792e9"))
	prevID, err := fx.store.Insert(ctx, first)
	require.NoError(t, err)

	later := fact.New(fact.KindReleasePublished, baza.ID)
	later.Set("tag", fact.String("0.0.9")).Set("when", fact.Time(day.Add(48*time.Hour)))
	_, err = fx.store.Insert(ctx, later)
	require.NoError(t, err)

	fx.gh.SetCompare(baza.ID, "0.0.1", "0.0.5", github.Comparison{
		TotalCommits: 4,
		Commits: []github.Commit{
			commit("a50489ead5e8aa6", 2566462),
			commit("b50489ead5e8aa7", 2566463),
			commit("c50489ead5e8aa8", 2566464),
			commit("d50489ead5e8aa9", 2566462),
		},
		Files: []github.File{
			{Filename: "a.go", Additions: 15, Deletions: 40},
			{Filename: "b.go", Additions: 20, Deletions: 5},
			{Filename: "c.go", Deletions: 10},
		},
	})

	f := derived(t, fx.classify(t, releaseEvent(2, "0.0.5", day)))
	assert.Equal(t, prevID, f.Int("prev"))
	assert.Equal(t, []int64{2566462, 2566463, 2566464}, f.Ints("contributors"))
	assert.Equal(t, int64(4), f.Int("commits"))
	assert.Equal(t, int64(90), f.Int("hoc"))
	assert.Equal(t, "a50489ead5e8aa6", f.String("last_commit"))
	assert.Zero(t, fx.gh.CallCount("contributors"))
}

func TestRelease_TwoReleasesInOneScan(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.gh.SetReleases(baza.ID,
		github.Release{ID: 1100, TagName: "0.0.2", PublishedAt: day.Add(time.Hour)},
		github.Release{ID: 1000, TagName: "0.0.1", PublishedAt: day},
	)
	fx.gh.SetContributors(baza.ID, github.Contributor{ID: 1, Login: "founder"})
	fx.gh.SetCommits(baza.ID, "", commit("bbb1", 1), commit("root", 1))
	fx.gh.SetCommits(baza.ID, "root", commit("root", 1))
	fx.gh.SetCompare(baza.ID, "root", "0.0.1", github.Comparison{
		Commits: []github.Commit{commit("bbb1", 1), commit("root", 1)},
		Files:   []github.File{{Filename: "big.go", Additions: 1000}},
	})
	fx.gh.SetCompare(baza.ID, "0.0.1", "0.0.2", github.Comparison{
		Commits: []github.Commit{commit("ccc1", 3)},
		Files:   []github.File{{Filename: "fix.go", Additions: 3, Deletions: 2}},
	})
	fx.gh.PushEvents(baza.ID, releaseEvent(11, "0.0.2", day.Add(time.Hour)), releaseEvent(10, "0.0.1", day))

	st, err := engine.NewLoop(fx.gh, fx.store, fx.c).Scan(ctx, rc, baza)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Derived)

	releases, err := fx.store.Query(ctx, queryir.What(fact.KindReleasePublished), store.OrderBy(fact.ColEventID, false))
	require.NoError(t, err)
	require.Len(t, releases, 2)

	first, second := releases[0], releases[1]
	assert.Equal(t, "0.0.1", first.String("tag"))
	assert.Equal(t, []int64{1}, first.Ints("contributors"))
	assert.Equal(t, int64(1000), first.Int("hoc"))

	assert.Equal(t, "0.0.2", second.String("tag"))
	assert.Equal(t, []int64{3}, second.Ints("contributors"))
	assert.Equal(t, int64(1), second.Int("commits"))
	assert.Equal(t, int64(5), second.Int("hoc"))
	assert.Equal(t, "ccc1", second.String("last_commit"))
	assert.Equal(t, 1, fx.gh.CallCount("contributors"))
	assert.Zero(t, fx.gh.CallCount("compare 820463873 root...0.0.2"))
}

func TestPublishedBefore_SkipsDraftsAndLaterReleases(t *testing.T) {
	fx := newFixture(t)
	fx.gh.SetReleases(baza.ID,
		github.Release{TagName: "0.0.4", PublishedAt: day.Add(2 * time.Hour)},
		github.Release{TagName: "0.0.3"},
		github.Release{TagName: "0.0.3-rc", Draft: true, PublishedAt: day.Add(-time.Minute)},
		github.Release{TagName: "0.0.2", PublishedAt: day},
		github.Release{TagName: "0.0.1", PublishedAt: day.Add(-time.Hour)},
	)

	tag, err := fx.c.publishedBefore(context.Background(), baza.ID, "0.0.3", day.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "0.0.2", tag)

	tag, err = fx.c.publishedBefore(context.Background(), baza.ID, "0.0.1", day.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, tag)
}

func TestRelease_UncomparableDiscarded(t *testing.T) {
	fx := newFixture(t)
	fx.gh.SetCommits(baza.ID, "", commit("only", 1))

	_, ok := fx.classify(t, releaseEvent(3, "0.1.0", day)).Derived()
	assert.False(t, ok)
}

func TestRelease_EmptyHistoryDiscarded(t *testing.T) {
	fx := newFixture(t)
	_, ok := fx.classify(t, releaseEvent(4, "0.1.0", day)).Derived()
	assert.False(t, ok)
}

func TestRelease_DraftActionsDiscarded(t *testing.T) {
	fx := newFixture(t)
	ev := testutil.NewEvent(5, github.TypeRelease, baza, user(1, "a"), day, github.ReleasePayload{Action: "created"})
	_, ok := fx.classify(t, ev).Derived()
	assert.False(t, ok)
}

func TestAuthors_SkipsUnattributed(t *testing.T) {
	ids := authors([]github.Commit{commit("a", 3), commit("b", 0), commit("c", 1), commit("d", 3)})
	assert.Equal(t, []int64{3, 1}, ids)
}
