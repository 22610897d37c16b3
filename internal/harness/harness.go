package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/factmirror/internal/classify"
	"github.com/roach88/factmirror/internal/engine"
	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/queryir"
	"github.com/roach88/factmirror/internal/reconcile"
	"github.com/roach88/factmirror/internal/store"
	"github.com/roach88/factmirror/internal/testutil"
)

// Epoch is the store clock start. Facts are stamped one second apart.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness executes one scenario against a private store.
type Harness struct {
	store      *store.Store
	gh         *testutil.FakeGitHub
	runIDs     engine.IDGenerator
	logger     *slog.Logger
	repos      []github.Repository
	reconciler *reconcile.Reconciler
}

// Run executes a scenario and evaluates its assertions.
//
// Each scenario runs in a fresh database in a temporary directory with a
// stepping clock, a fixed run id and a fake GitHub API, so the resulting
// store is reproducible byte for byte.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "factmirror-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	clock := testutil.NewStepClock(Epoch, time.Second)
	st, err := store.Open(filepath.Join(dir, "facts.db"), store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:      st,
		gh:         testutil.NewFakeGitHub(),
		runIDs:     testutil.NewFixedRunID(scenario.RunID),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		reconciler: reconcile.New(st),
	}
	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Runs {
		if err := h.run(ctx, step, result); err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
	}
	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// setup registers repositories and fixtures and seeds the store.
func (h *Harness) setup(ctx context.Context, s *Scenario) error {
	for _, r := range s.Repositories {
		repo := github.Repository{ID: r.ID, FullName: r.Name}
		h.repos = append(h.repos, repo)
		h.gh.AddRepository(repo)
	}
	if err := h.fixtures(s.GitHub); err != nil {
		return err
	}

	for i, step := range s.Facts {
		f := fact.New(step.What, step.Repository)
		f.Issue = step.Issue
		for k, v := range step.Attrs {
			val, err := fact.FromAny(v)
			if err != nil {
				return fmt.Errorf("facts[%d].attrs.%s: %w", i, k, err)
			}
			f.Set(k, val)
		}
		if _, err := h.store.Insert(ctx, f); err != nil {
			return fmt.Errorf("facts[%d]: %w", i, err)
		}
	}
	for _, repo := range slices.Sorted(maps.Keys(s.Watermarks)) {
		if err := h.store.SetWatermark(ctx, repo, s.Watermarks[repo]); err != nil {
			return err
		}
	}
	return nil
}

// fixtures loads enrichment data into the fake API.
func (h *Harness) fixtures(fx Fixtures) error {
	for i, p := range fx.Pulls {
		var pr github.PullRequest
		if err := decode(p.Pull, &pr); err != nil {
			return fmt.Errorf("pulls[%d]: %w", i, err)
		}
		h.gh.SetPull(p.Repository, pr)
		var code, discussion []github.Comment
		if err := decode(p.CodeComments, &code); err != nil {
			return fmt.Errorf("pulls[%d].code_comments: %w", i, err)
		}
		if err := decode(p.IssueComments, &discussion); err != nil {
			return fmt.Errorf("pulls[%d].issue_comments: %w", i, err)
		}
		h.gh.SetPullComments(p.Repository, pr.Number, code...)
		h.gh.SetIssueComments(p.Repository, pr.Number, discussion...)
		h.gh.SetResolvedThreads(p.Repository, pr.Number, p.Resolved)
	}
	for i, r := range fx.Reactions {
		var reactions []github.Reaction
		if err := decode(r.Reactions, &reactions); err != nil {
			return fmt.Errorf("reactions[%d]: %w", i, err)
		}
		h.gh.SetReactions(r.Comment, reactions...)
	}
	for i, r := range fx.Contributors {
		var roster []github.Contributor
		if err := decode(r.Contributors, &roster); err != nil {
			return fmt.Errorf("contributors[%d]: %w", i, err)
		}
		h.gh.SetContributors(r.Repository, roster...)
	}
	for i, r := range fx.Releases {
		var releases []github.Release
		if err := decode(r.Releases, &releases); err != nil {
			return fmt.Errorf("releases[%d]: %w", i, err)
		}
		h.gh.SetReleases(r.Repository, releases...)
	}
	for i, c := range fx.Commits {
		var commits []github.Commit
		if err := decode(c.Commits, &commits); err != nil {
			return fmt.Errorf("commits[%d]: %w", i, err)
		}
		h.gh.SetCommits(c.Repository, c.SHA, commits...)
	}
	for i, c := range fx.Compares {
		var cmp github.Comparison
		if err := decode(c.Comparison, &cmp); err != nil {
			return fmt.Errorf("compares[%d]: %w", i, err)
		}
		h.gh.SetCompare(c.Repository, c.Base, c.Head, cmp)
	}
	for i, tl := range fx.Timelines {
		var items []github.TimelineItem
		if err := decode(tl.Items, &items); err != nil {
			return fmt.Errorf("timelines[%d]: %w", i, err)
		}
		h.gh.SetTimeline(tl.Repository, tl.Issue, items...)
	}
	for _, g := range fx.Gone {
		h.gh.MarkGone(g.Repository, g.Issue)
	}
	return nil
}

// decode converts a YAML tree into a GitHub API type through its JSON tags.
// A nil tree leaves out untouched.
func decode(in, out any) error {
	if in == nil {
		return nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// run pushes the step's events and executes one scan run.
func (h *Harness) run(ctx context.Context, step RunStep, result *Result) error {
	names := map[int64]github.Repository{}
	for _, r := range h.repos {
		names[r.ID] = r
	}
	byRepo := map[int64][]github.Event{}
	for _, ev := range step.Events {
		at, err := time.Parse(time.RFC3339, ev.At)
		if err != nil {
			return fmt.Errorf("event %d: %w", ev.ID, err)
		}
		payload := ev.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		actor := github.User{ID: ev.Actor.ID, Login: ev.Actor.Login}
		byRepo[ev.Repository] = append(byRepo[ev.Repository],
			testutil.NewEvent(ev.ID, ev.Type, names[ev.Repository], actor, at, payload))
	}
	for repo, events := range byRepo {
		h.gh.PushEvents(repo, events...)
	}

	rc := engine.NewRunContext(h.runIDs, engine.NewGovernor(step.Budget), h.logger)
	h.gh.SetMeter(rc.Quota)
	classifier := classify.New(h.gh, h.store, h.reconciler)
	loop := engine.NewLoop(h.gh, h.store, classifier, engine.WithMaxEvents(step.MaxEvents))
	result.Reports = append(result.Reports, loop.Run(ctx, rc, h.repos))

	if !step.Labels {
		result.Labels = append(result.Labels, nil)
		return nil
	}
	judge := reconcile.NewLabels(h.gh, h.store, h.reconciler)
	stats := map[int64]reconcile.LabelStats{}
	for _, repo := range h.repos {
		ls, err := judge.Run(ctx, rc, repo)
		if err != nil {
			return fmt.Errorf("labels of %s: %w", repo.FullName, err)
		}
		stats[repo.ID] = ls
	}
	result.Labels = append(result.Labels, stats)
	return nil
}

// collect reads the final store state into the result.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	all, err := h.store.Query(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to read facts: %w", err)
	}
	result.Facts = []fact.Fact{}
	for _, f := range all {
		if f.What == fact.KindWatermark {
			continue
		}
		result.Facts = append(result.Facts, f)
	}
	marks, err := h.store.Query(ctx, queryir.What(fact.KindWatermark))
	if err != nil {
		return fmt.Errorf("failed to read watermarks: %w", err)
	}
	for _, m := range marks {
		result.Watermarks[m.Repository] = m.Int("latest")
	}
	result.Calls = h.gh.Calls()
	return nil
}
