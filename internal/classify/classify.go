package classify

import (
	"context"
	"fmt"

	"github.com/roach88/factmirror/internal/engine"
	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/reconcile"
	"github.com/roach88/factmirror/internal/store"
)

// Handler has one method per payload variant.
type Handler = github.Handler[engine.Result]

// Enricher is what the classifier reads from GitHub. *github.Client
// implements it.
type Enricher interface {
	PullRequest(ctx context.Context, repo, number int64) (github.PullRequest, error)
	PullComments(ctx context.Context, repo, number int64) ([]github.Comment, error)
	IssueComments(ctx context.Context, repo, number int64) ([]github.Comment, error)
	CommentReactions(ctx context.Context, repo, commentID int64) ([]github.Reaction, error)
	ResolvedThreads(ctx context.Context, fullName string, number int64) (int, error)
	Contributors(ctx context.Context, repo int64) ([]github.Contributor, error)
	Commits(ctx context.Context, repo int64, sha string) ([]github.Commit, error)
	Compare(ctx context.Context, repo int64, base, head string) (github.Comparison, error)
	Releases(ctx context.Context, repo int64) ([]github.Release, error)
}

// Retractor removes facts about a vanished issue. *reconcile.Reconciler
// implements it.
type Retractor interface {
	ReconcileMissing(ctx context.Context, ref reconcile.IssueRef) (int64, error)
}

// Recorder observes retractions. internal/metrics implements it.
type Recorder interface {
	FactsRetracted(n int64)
}

// Classifier implements engine.Classifier.
type Classifier struct {
	gh        Enricher
	facts     *store.Store
	retractor Retractor
	recorder  Recorder
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRecorder reports retractions to r.
func WithRecorder(r Recorder) Option {
	return func(c *Classifier) {
		c.recorder = r
	}
}

// New creates a classifier. The store is read for release predecessors and
// review duplicates, never written.
func New(gh Enricher, facts *store.Store, retractor Retractor, opts ...Option) *Classifier {
	c := &Classifier{gh: gh, facts: facts, retractor: retractor}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ engine.Classifier = (*Classifier)(nil)

// Classify decodes the event and dispatches it.
// A malformed payload is discarded, not failed: it can never succeed.
func (c *Classifier) Classify(ctx context.Context, rc engine.RunContext, ev github.Event) (engine.Result, error) {
	p, err := ev.Decode()
	if err != nil {
		rc.Log().Warn("malformed event payload", "event", ev.ID, "type", ev.Type, "error", err)
		return engine.Discardf("malformed payload: %v", err), nil
	}
	return github.Dispatch[engine.Result](ctx, ev, p, handler{c: c, rc: rc})
}

// handler binds the classifier to one run.
type handler struct {
	c  *Classifier
	rc engine.RunContext
}

var _ Handler = handler{}

// newFact starts a fact with the fields every derived fact carries.
func newFact(ev github.Event, what string) fact.Fact {
	f := fact.New(what, ev.Repo.ID)
	f.EventID = ev.ID
	f.Set("when", fact.Time(ev.CreatedAt)).
		Set("event_type", fact.String(ev.Type))
	if ev.Actor.ID != 0 {
		f.Set("who", fact.Int(ev.Actor.ID))
	}
	return f
}

// mention renders a user for details text.
func mention(u github.User) string {
	if u.Login != "" {
		return "@" + u.Login
	}
	return fmt.Sprintf("#%d", u.ID)
}

// gone retracts facts about a vanished issue and discards the event.
func (h handler) gone(ctx context.Context, ev github.Event, number int64, cause error) (engine.Result, error) {
	ref := reconcile.IssueRef{Repository: ev.Repo.ID, Issue: number}
	n, err := h.c.retractor.ReconcileMissing(ctx, ref)
	if err != nil {
		return engine.Result{}, err
	}
	if h.c.recorder != nil && n > 0 {
		h.c.recorder.FactsRetracted(n)
	}
	h.rc.Log().Info("entity is gone, facts retracted",
		"repository", ev.Repo.Name, "issue", number, "retracted", n, "cause", cause)
	return engine.Discardf("%s#%d is gone", ev.Repo.Name, number), nil
}
