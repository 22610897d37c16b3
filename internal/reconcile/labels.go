package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/factmirror/internal/engine"
	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/queryir"
	"github.com/roach88/factmirror/internal/store"
)

// TimelineSource lists issue timelines. *github.Client implements it.
type TimelineSource interface {
	Timeline(ctx context.Context, repository, number int64) ([]github.TimelineItem, error)
}

// LabelStats summarizes one label judge pass over a repository.
type LabelStats struct {
	Issues    int
	Attached  int
	Retracted int64
	// QuotaStopped is true when the walk ended on quota exhaustion.
	QuotaStopped bool
}

// Labels records label-was-attached facts from issue timelines.
type Labels struct {
	timelines  TimelineSource
	store      *store.Store
	reconciler *Reconciler
}

// NewLabels creates the label judge.
func NewLabels(timelines TimelineSource, s *store.Store, r *Reconciler) *Labels {
	return &Labels{timelines: timelines, store: s, reconciler: r}
}

// Run walks the issue-was-opened facts of a repository and inserts a
// label-was-attached fact for every "labeled" timeline item not yet known.
// An issue whose timeline is gone is reconciled away.
func (l *Labels) Run(ctx context.Context, rc engine.RunContext, repo github.Repository) (LabelStats, error) {
	logger := rc.Log().With("repository", repo.FullName, "judge", fact.KindLabelAttached)

	opened, err := l.store.Query(ctx, queryir.All(
		queryir.What(fact.KindIssueOpened),
		queryir.Repository(repo.ID),
	))
	if err != nil {
		return LabelStats{}, fmt.Errorf("labels of %s: %w", repo.FullName, err)
	}

	var st LabelStats
	for _, issue := range opened {
		if rc.Exhausted() {
			st.QuotaStopped = true
			logger.Info("quota exhausted", "issues", st.Issues)
			break
		}
		st.Issues++

		items, err := l.timelines.Timeline(ctx, repo.ID, issue.Issue)
		if github.IsNotFound(err) {
			n, err := l.reconciler.ReconcileMissing(ctx, IssueRef{Repository: repo.ID, Issue: issue.Issue})
			if err != nil {
				return st, err
			}
			st.Retracted += n
			logger.Info("issue is gone, facts retracted", "issue", issue.Issue, "retracted", n)
			continue
		}
		if err != nil {
			return st, fmt.Errorf("labels of %s: %w", repo.FullName, err)
		}

		for _, item := range items {
			if item.Event != "labeled" || item.Label == nil {
				continue
			}
			f := fact.New(fact.KindLabelAttached, repo.ID)
			f.Issue = issue.Issue
			f.RunID = rc.RunID
			f.Set("label", fact.String(item.Label.Name)).
				Set("who", fact.Int(item.Actor.ID)).
				Set("when", fact.Time(item.CreatedAt)).
				Set("details", fact.String(fmt.Sprintf(
					"The '%s' label was attached by @%s to the issue %s#%d.",
					item.Label.Name, item.Actor.Login, repo.FullName, issue.Issue)))
			_, inserted, err := l.store.InsertIfAbsent(ctx, f, fact.ColIssue, "label")
			if err != nil {
				return st, fmt.Errorf("labels of %s: %w", repo.FullName, err)
			}
			if inserted {
				st.Attached++
				logger.Debug("label attached", "issue", issue.Issue, "label", item.Label.Name)
			}
		}
	}
	logger.Info("labels judged", "issues", st.Issues, "attached", st.Attached, "retracted", st.Retracted)
	return st, nil
}
