package testutil

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/factmirror/internal/github"
)

type issueKey struct {
	repo   int64
	number int64
}

type compareKey struct {
	repo       int64
	base, head string
}

// FakeGitHub is an in-memory GitHub double.
//
// It implements every collaborator interface the engine, classifier and
// judges consume. Unset list data reads as empty; an unset pull request or
// anything marked gone reads as github.ErrNotFound. Each call charges one
// unit to the meter, like the real client.
//
// Thread-safety: safe for concurrent use; enrichment fetches run in parallel.
type FakeGitHub struct {
	mu sync.Mutex

	// PageSize is the number of events per page. Defaults to github.PerPage.
	PageSize int

	// BeforePage runs before an events page is served, outside the lock.
	// Tests use it to push new events between page fetches.
	BeforePage func(repo int64, page int)

	meter         github.Meter
	repos         map[int64]github.Repository
	events        map[int64][]github.Event
	eventsErr     map[int64]error
	pulls         map[issueKey]github.PullRequest
	pullComments  map[issueKey][]github.Comment
	issueComments map[issueKey][]github.Comment
	reactions     map[int64][]github.Reaction
	resolved      map[issueKey]int
	contributors  map[int64][]github.Contributor
	releases      map[int64][]github.Release
	commits       map[string][]github.Commit
	compares      map[compareKey]github.Comparison
	timelines     map[issueKey][]github.TimelineItem
	gone          map[issueKey]bool
	calls         []string
}

// NewFakeGitHub creates an empty fake.
func NewFakeGitHub() *FakeGitHub {
	return &FakeGitHub{
		PageSize:      github.PerPage,
		repos:         map[int64]github.Repository{},
		events:        map[int64][]github.Event{},
		eventsErr:     map[int64]error{},
		pulls:         map[issueKey]github.PullRequest{},
		pullComments:  map[issueKey][]github.Comment{},
		issueComments: map[issueKey][]github.Comment{},
		reactions:     map[int64][]github.Reaction{},
		resolved:      map[issueKey]int{},
		contributors:  map[int64][]github.Contributor{},
		releases:      map[int64][]github.Release{},
		commits:       map[string][]github.Commit{},
		compares:      map[compareKey]github.Comparison{},
		timelines:     map[issueKey][]github.TimelineItem{},
		gone:          map[issueKey]bool{},
	}
}

// SetMeter charges every call to m.
func (f *FakeGitHub) SetMeter(m github.Meter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meter = m
}

// AddRepository registers a repository.
func (f *FakeGitHub) AddRepository(r github.Repository) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[r.ID] = r
}

// PushEvents prepends events to a repository's stream.
// Pass them newest first, as GitHub returns them.
func (f *FakeGitHub) PushEvents(repo int64, events ...github.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[repo] = append(append([]github.Event{}, events...), f.events[repo]...)
}

// SetEvents replaces a repository's stream verbatim, in the given order.
func (f *FakeGitHub) SetEvents(repo int64, events ...github.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[repo] = events
}

// FailEvents makes every events call for repo fail with err.
func (f *FakeGitHub) FailEvents(repo int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventsErr[repo] = err
}

// SetPull stores pull request details.
func (f *FakeGitHub) SetPull(repo int64, pr github.PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls[issueKey{repo, pr.Number}] = pr
}

// SetPullComments stores review (code) comments.
func (f *FakeGitHub) SetPullComments(repo, number int64, comments ...github.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullComments[issueKey{repo, number}] = comments
}

// SetIssueComments stores conversation comments.
func (f *FakeGitHub) SetIssueComments(repo, number int64, comments ...github.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueComments[issueKey{repo, number}] = comments
}

// SetReactions stores reactions on an issue comment.
func (f *FakeGitHub) SetReactions(commentID int64, reactions ...github.Reaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[commentID] = reactions
}

// SetResolvedThreads stores the number of resolved review threads.
func (f *FakeGitHub) SetResolvedThreads(repo, number int64, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved[issueKey{repo, number}] = n
}

// SetContributors stores the contributor roster.
func (f *FakeGitHub) SetContributors(repo int64, roster ...github.Contributor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contributors[repo] = roster
}

// SetReleases stores the release listing. Pass it newest first.
func (f *FakeGitHub) SetReleases(repo int64, releases ...github.Release) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases[repo] = releases
}

// SetCommits stores the history page starting at sha ("" for the default branch).
func (f *FakeGitHub) SetCommits(repo int64, sha string, commits ...github.Commit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits[fmt.Sprintf("%d@%s", repo, sha)] = commits
}

// SetCompare stores the comparison base...head.
func (f *FakeGitHub) SetCompare(repo int64, base, head string, c github.Comparison) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compares[compareKey{repo, base, head}] = c
}

// SetTimeline stores an issue timeline.
func (f *FakeGitHub) SetTimeline(repo, number int64, items ...github.TimelineItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timelines[issueKey{repo, number}] = items
}

// MarkGone makes every call about the issue answer github.ErrNotFound.
func (f *FakeGitHub) MarkGone(repo, number int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone[issueKey{repo, number}] = true
}

// Calls returns the calls made so far, in order.
func (f *FakeGitHub) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many calls start with prefix.
func (f *FakeGitHub) CallCount(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// record must be called with f.mu held.
func (f *FakeGitHub) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	if f.meter != nil {
		f.meter.Charge(1)
	}
}

func (f *FakeGitHub) isGone(repo, number int64) bool {
	return f.gone[issueKey{repo, number}]
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, github.ErrNotFound)
}

// Events implements engine.EventSource.
func (f *FakeGitHub) Events(_ context.Context, repo int64, page int) ([]github.Event, error) {
	if f.BeforePage != nil {
		f.BeforePage(repo, page)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("events %d %d", repo, page)

	if err := f.eventsErr[repo]; err != nil {
		return nil, err
	}
	all := f.events[repo]
	size := f.PageSize
	if size <= 0 {
		size = github.PerPage
	}
	from := (page - 1) * size
	if from >= len(all) {
		return nil, nil
	}
	to := min(from+size, len(all))
	return append([]github.Event(nil), all[from:to]...), nil
}

// Repository returns a registered repository.
func (f *FakeGitHub) Repository(_ context.Context, id int64) (github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("repository %d", id)
	r, ok := f.repos[id]
	if !ok {
		return github.Repository{}, notFound(fmt.Sprintf("repository %d", id))
	}
	return r, nil
}

// RepositoryByName implements github.RepoLister.
func (f *FakeGitHub) RepositoryByName(_ context.Context, fullName string) (github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("repository %s", fullName)
	for _, r := range f.repos {
		if strings.EqualFold(r.FullName, fullName) {
			return r, nil
		}
	}
	return github.Repository{}, notFound("repository " + fullName)
}

// OwnerRepositories implements github.RepoLister.
func (f *FakeGitHub) OwnerRepositories(_ context.Context, owner string) ([]github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("repositories %s", owner)
	var out []github.Repository
	for _, r := range f.repos {
		if o, _, _ := strings.Cut(r.FullName, "/"); strings.EqualFold(o, owner) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b github.Repository) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// PullRequest returns stored pull request details.
func (f *FakeGitHub) PullRequest(_ context.Context, repo, number int64) (github.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull %d#%d", repo, number)
	pr, ok := f.pulls[issueKey{repo, number}]
	if !ok || f.isGone(repo, number) {
		return github.PullRequest{}, notFound(fmt.Sprintf("pull %d#%d", repo, number))
	}
	return pr, nil
}

// PullComments returns stored review comments.
func (f *FakeGitHub) PullComments(_ context.Context, repo, number int64) ([]github.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull comments %d#%d", repo, number)
	if f.isGone(repo, number) {
		return nil, notFound(fmt.Sprintf("pull comments %d#%d", repo, number))
	}
	return f.pullComments[issueKey{repo, number}], nil
}

// IssueComments returns stored conversation comments.
func (f *FakeGitHub) IssueComments(_ context.Context, repo, number int64) ([]github.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("issue comments %d#%d", repo, number)
	if f.isGone(repo, number) {
		return nil, notFound(fmt.Sprintf("issue comments %d#%d", repo, number))
	}
	return f.issueComments[issueKey{repo, number}], nil
}

// CommentReactions returns stored reactions.
func (f *FakeGitHub) CommentReactions(_ context.Context, _ int64, commentID int64) ([]github.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("reactions %d", commentID)
	return f.reactions[commentID], nil
}

// ResolvedThreads returns the stored resolved thread count.
func (f *FakeGitHub) ResolvedThreads(_ context.Context, fullName string, number int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("resolved %s#%d", fullName, number)
	for k, n := range f.resolved {
		if k.number == number && strings.EqualFold(f.repos[k.repo].FullName, fullName) {
			if f.isGone(k.repo, number) {
				return 0, notFound(fmt.Sprintf("resolved %s#%d", fullName, number))
			}
			return n, nil
		}
	}
	return 0, nil
}

// Contributors returns the stored roster.
func (f *FakeGitHub) Contributors(_ context.Context, repo int64) ([]github.Contributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("contributors %d", repo)
	return f.contributors[repo], nil
}

// Releases returns the stored release listing.
func (f *FakeGitHub) Releases(_ context.Context, repo int64) ([]github.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("releases %d", repo)
	return f.releases[repo], nil
}

// Commits returns the stored history page.
func (f *FakeGitHub) Commits(_ context.Context, repo int64, sha string) ([]github.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("commits %d %s", repo, sha)
	return f.commits[fmt.Sprintf("%d@%s", repo, sha)], nil
}

// Compare returns the stored comparison or ErrNotFound.
func (f *FakeGitHub) Compare(_ context.Context, repo int64, base, head string) (github.Comparison, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("compare %d %s...%s", repo, base, head)
	c, ok := f.compares[compareKey{repo, base, head}]
	if !ok {
		return github.Comparison{}, notFound(fmt.Sprintf("compare %s...%s", base, head))
	}
	return c, nil
}

// Timeline returns the stored timeline.
func (f *FakeGitHub) Timeline(_ context.Context, repo, number int64) ([]github.TimelineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("timeline %d#%d", repo, number)
	if f.isGone(repo, number) {
		return nil, notFound(fmt.Sprintf("timeline %d#%d", repo, number))
	}
	return f.timelines[issueKey{repo, number}], nil
}

// NewEvent builds a raw event with a JSON-encoded payload.
// Panics if the payload cannot be marshaled, which only happens on
// test misconfiguration.
func NewEvent(id int64, typ string, repo github.Repository, actor github.User, when time.Time, payload any) github.Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("NewEvent: marshal payload: %v", err))
	}
	return github.Event{
		ID:        id,
		Type:      typ,
		Actor:     actor,
		Repo:      github.EventRepo{ID: repo.ID, Name: repo.FullName},
		CreatedAt: when.UTC(),
		Payload:   raw,
	}
}
