package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/factmirror/internal/engine"
	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/queryir"
	"github.com/roach88/factmirror/internal/store"
)

// maxHistoryPages bounds the root commit walk.
const maxHistoryPages = 1000

// errNoHistory is returned when a repository has no commits to diff against.
var errNoHistory = errors.New("repository has no commits")

func (h handler) Release(ctx context.Context, ev github.Event, p github.ReleasePayload) (engine.Result, error) {
	if p.Action != "published" {
		return engine.Discardf("release action %q", p.Action), nil
	}
	rel := p.Release
	f := newFact(ev, fact.KindReleasePublished)
	if rel.Author.ID != 0 {
		f.Set("who", fact.Int(rel.Author.ID))
	}
	f.Set("release_id", fact.Int(rel.ID)).
		Set("tag", fact.String(rel.TagName)).
		Set("details", fact.String(fmt.Sprintf("A new release '%s' has been published in %s by %s.",
			releaseName(rel), ev.Repo.Name, mention(rel.Author))))

	diff, err := h.c.diffRelease(ctx, h.rc, ev, rel)
	if github.IsNotFound(err) || errors.Is(err, errNoHistory) {
		return engine.Discardf("release %s cannot be compared: %v", rel.TagName, err), nil
	}
	if err != nil {
		return engine.Result{}, err
	}
	diff.apply(&f)
	return engine.Derive(f), nil
}

func releaseName(r github.Release) string {
	if r.Name != "" {
		return r.Name
	}
	return r.TagName
}

// releaseDiff is what changed between a release and its predecessor.
type releaseDiff struct {
	prev         int64
	contributors []int64
	commits      int
	hoc          int64
	lastCommit   string
}

func (d releaseDiff) apply(f *fact.Fact) {
	if d.prev != 0 {
		f.Set("prev", fact.Int(d.prev))
	}
	f.Set("contributors", fact.Ints(d.contributors)).
		Set("commits", fact.Int(int64(d.commits))).
		Set("hoc", fact.Int(d.hoc))
	if d.lastCommit != "" {
		f.Set("last_commit", fact.String(d.lastCommit))
	}
}

// diffRelease compares the release tag with the previous release.
//
// The predecessor is the release fact of the same repository with the
// greatest "when" not after this event, highest fact id on ties. With one,
// the diff starts at its tag, or its last_commit when the tag is unknown.
// Without one, the release listing names the latest release published
// before this one; events arrive newest first, so an older release of the
// same run has no fact yet. Only when the repository has no earlier release
// at all is the contributor roster the baseline and the diff starts at the
// root commit.
func (c *Classifier) diffRelease(ctx context.Context, rc engine.RunContext, ev github.Event, rel github.Release) (releaseDiff, error) {
	var d releaseDiff
	tag := rel.TagName

	prev, found, err := c.facts.First(ctx, queryir.All(
		queryir.What(fact.KindReleasePublished),
		queryir.Repository(ev.Repo.ID),
		queryir.Le{Attr: "when", Value: fact.Time(ev.CreatedAt)},
	), store.OrderBy("when", true), store.OrderBy(fact.ColID, true))
	if err != nil {
		return d, err
	}

	var base string
	if found {
		d.prev = prev.ID
		base = prev.String("tag")
		if base == "" {
			// The last commit recorded for the predecessor is the head of
			// history before its tag, so no point lookup is needed.
			base = prev.String("last_commit")
		}
	} else {
		at := rel.PublishedAt
		if at.IsZero() {
			at = ev.CreatedAt
		}
		base, err = c.publishedBefore(ctx, ev.Repo.ID, tag, at)
		if err != nil {
			return d, err
		}
	}
	diffed := base != ""
	if !found && !diffed {
		roster, err := c.gh.Contributors(ctx, ev.Repo.ID)
		if err != nil {
			return d, err
		}
		for _, who := range roster {
			d.contributors = append(d.contributors, who.ID)
		}
	}
	if base == "" {
		base, err = c.rootCommit(ctx, ev.Repo.ID)
		if err != nil {
			return d, err
		}
	}

	cmp, err := c.gh.Compare(ctx, ev.Repo.ID, base, tag)
	if err != nil {
		return d, err
	}
	d.commits = len(cmp.Commits)
	for _, f := range cmp.Files {
		d.hoc += f.Additions + f.Deletions
	}
	if len(cmp.Commits) > 0 {
		d.lastCommit = cmp.Commits[0].SHA
	}
	if found || diffed {
		d.contributors = authors(cmp.Commits)
	}
	rc.Log().Debug("release compared",
		"repository", ev.Repo.Name, "base", base, "tag", tag,
		"commits", d.commits, "hoc", d.hoc, "prev", d.prev)
	return d, nil
}

// publishedBefore returns the tag of the latest published release older
// than at, or "" when there is none.
func (c *Classifier) publishedBefore(ctx context.Context, repo int64, tag string, at time.Time) (string, error) {
	releases, err := c.gh.Releases(ctx, repo)
	if err != nil {
		return "", err
	}
	var best github.Release
	for _, r := range releases {
		if r.Draft || r.TagName == "" || r.TagName == tag || r.PublishedAt.IsZero() {
			continue
		}
		if r.PublishedAt.Before(at) && r.PublishedAt.After(best.PublishedAt) {
			best = r
		}
	}
	return best.TagName, nil
}

// authors returns distinct commit author ids in first-seen order,
// skipping commits GitHub could not attribute.
func authors(commits []github.Commit) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, cm := range commits {
		if cm.Author == nil || cm.Author.ID == 0 || seen[cm.Author.ID] {
			continue
		}
		seen[cm.Author.ID] = true
		ids = append(ids, cm.Author.ID)
	}
	return ids
}

// rootCommit walks history from the default branch: each page is
// re-requested from its last commit until a page holds only that anchor.
func (c *Classifier) rootCommit(ctx context.Context, repo int64) (string, error) {
	sha := ""
	for range maxHistoryPages {
		commits, err := c.gh.Commits(ctx, repo, sha)
		if err != nil {
			return "", err
		}
		switch len(commits) {
		case 0:
			return "", errNoHistory
		case 1:
			return commits[0].SHA, nil
		}
		sha = commits[len(commits)-1].SHA
	}
	return "", fmt.Errorf("root commit of %d: history deeper than %d pages", repo, maxHistoryPages)
}
