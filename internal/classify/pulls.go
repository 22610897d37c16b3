package classify

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/factmirror/internal/engine"
	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/queryir"
)

// reactionFetchers bounds concurrent reaction lookups per pull request.
const reactionFetchers = 4

func (h handler) PullRequest(ctx context.Context, ev github.Event, p github.PullRequestPayload) (engine.Result, error) {
	if p.Action != "closed" {
		return engine.Discardf("pull request action %q", p.Action), nil
	}
	number := p.PullRequest.Number
	if number == 0 {
		number = p.Number
	}

	pr, err := h.c.gh.PullRequest(ctx, ev.Repo.ID, number)
	if github.IsNotFound(err) {
		return h.gone(ctx, ev, number, err)
	}
	if err != nil {
		return engine.Result{}, err
	}
	cs, err := h.c.commentStats(ctx, ev.Repo, pr)
	if github.IsNotFound(err) {
		return h.gone(ctx, ev, number, err)
	}
	if err != nil {
		return engine.Result{}, err
	}

	what, verb := fact.KindPullClosed, "closed"
	if pr.Merged() || p.PullRequest.Merged() {
		what, verb = fact.KindPullMerged, "merged"
	}
	f := newFact(ev, what)
	f.Issue = number
	f.Set("hoc", fact.Int(pr.Additions+pr.Deletions)).
		Set("files", fact.Int(pr.ChangedFiles)).
		Set("commits", fact.Int(pr.Commits)).
		Set("details", fact.String(fmt.Sprintf("The pull request %s#%d has been %s by %s.",
			ev.Repo.Name, number, verb, mention(ev.Actor))))
	cs.apply(&f)
	return engine.Derive(f), nil
}

func (h handler) PullRequestReview(ctx context.Context, ev github.Event, p github.PullRequestReviewPayload) (engine.Result, error) {
	if p.Action != "created" && p.Action != "submitted" {
		return engine.Discardf("review action %q", p.Action), nil
	}
	number := p.PullRequest.Number
	if ev.Actor.ID == p.PullRequest.User.ID {
		return engine.Discard("review by the pull request author"), nil
	}

	seen, err := h.c.facts.Count(ctx, queryir.All(
		queryir.What(fact.KindPullReviewed),
		queryir.Repository(ev.Repo.ID),
		queryir.Issue(number),
		queryir.Eq{Attr: "who", Value: fact.Int(ev.Actor.ID)},
	))
	if err != nil {
		return engine.Result{}, err
	}
	if seen > 0 {
		return engine.Discardf("%s already reviewed %s#%d", mention(ev.Actor), ev.Repo.Name, number), nil
	}

	pr, err := h.c.gh.PullRequest(ctx, ev.Repo.ID, number)
	if github.IsNotFound(err) {
		return h.gone(ctx, ev, number, err)
	}
	if err != nil {
		return engine.Result{}, err
	}

	f := newFact(ev, fact.KindPullReviewed)
	f.Issue = number
	f.Set("review_id", fact.Int(p.Review.ID)).
		Set("review_comments", fact.Int(pr.ReviewComments)).
		Set("hoc", fact.Int(pr.Additions+pr.Deletions)).
		Set("details", fact.String(fmt.Sprintf("The pull request %s#%d has been reviewed by %s.",
			ev.Repo.Name, number, mention(ev.Actor))))
	return engine.Derive(f), nil
}

// commentStats summarizes the discussion of a pull request.
type commentStats struct {
	comments    int
	toCode      int
	byAuthor    int
	byReviewers int
	appreciated int
	resolved    int
}

func (cs commentStats) apply(f *fact.Fact) {
	f.Set("comments", fact.Int(int64(cs.comments))).
		Set("comments_to_code", fact.Int(int64(cs.toCode))).
		Set("comments_by_author", fact.Int(int64(cs.byAuthor))).
		Set("comments_by_reviewers", fact.Int(int64(cs.byReviewers))).
		Set("comments_appreciated", fact.Int(int64(cs.appreciated))).
		Set("comments_resolved", fact.Int(int64(cs.resolved)))
}

// commentStats fetches code comments, conversation comments and resolved
// threads concurrently, then the reactions on every conversation comment.
// Reactions by the comment's own author do not count as appreciation.
func (c *Classifier) commentStats(ctx context.Context, repo github.EventRepo, pr github.PullRequest) (commentStats, error) {
	var (
		code, conv []github.Comment
		cs         commentStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		code, err = c.gh.PullComments(gctx, repo.ID, pr.Number)
		return err
	})
	g.Go(func() error {
		var err error
		conv, err = c.gh.IssueComments(gctx, repo.ID, pr.Number)
		return err
	})
	g.Go(func() error {
		var err error
		cs.resolved, err = c.gh.ResolvedThreads(gctx, repo.Name, pr.Number)
		return err
	})
	if err := g.Wait(); err != nil {
		return commentStats{}, err
	}

	appreciated := make([]int, len(conv))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(reactionFetchers)
	for i, cm := range conv {
		g.Go(func() error {
			reactions, err := c.gh.CommentReactions(gctx, repo.ID, cm.ID)
			if err != nil {
				return err
			}
			for _, r := range reactions {
				if r.User.ID != cm.User.ID {
					appreciated[i]++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return commentStats{}, err
	}

	cs.toCode = len(code)
	cs.comments = len(code) + len(conv)
	for _, cm := range append(code, conv...) {
		if cm.User.ID == pr.User.ID {
			cs.byAuthor++
		} else {
			cs.byReviewers++
		}
	}
	for _, n := range appreciated {
		cs.appreciated += n
	}
	return cs, nil
}
