package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

func repoPath(repo int64, suffix string) string {
	return "/repositories/" + strconv.FormatInt(repo, 10) + suffix
}

// Events returns one page of repository events, newest first.
// GitHub refuses to paginate events past a fixed depth with 422; that is
// reported as an empty page, the end of the stream.
func (c *Client) Events(ctx context.Context, repo int64, page int) ([]Event, error) {
	var events []Event
	err := c.get(ctx, repoPath(repo, "/events"), map[string]string{
		"per_page": strconv.Itoa(PerPage),
		"page":     strconv.Itoa(page),
	}, &events)
	if IsAPIError(err, http.StatusUnprocessableEntity) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("events of %d page %d: %w", repo, page, err)
	}
	return events, nil
}

// Repository fetches a repository by id.
func (c *Client) Repository(ctx context.Context, id int64) (Repository, error) {
	var r Repository
	if err := c.get(ctx, repoPath(id, ""), nil, &r); err != nil {
		return Repository{}, fmt.Errorf("repository %d: %w", id, err)
	}
	return r, nil
}

// RepositoryByName fetches a repository by "owner/name".
func (c *Client) RepositoryByName(ctx context.Context, fullName string) (Repository, error) {
	var r Repository
	if err := c.get(ctx, "/repos/"+fullName, nil, &r); err != nil {
		return Repository{}, fmt.Errorf("repository %s: %w", fullName, err)
	}
	return r, nil
}

// OwnerRepositories lists the repositories of a user or organization.
func (c *Client) OwnerRepositories(ctx context.Context, owner string) ([]Repository, error) {
	repos, err := list[Repository](ctx, c, "/users/"+url.PathEscape(owner)+"/repos", nil)
	if err != nil {
		return nil, fmt.Errorf("repositories of %s: %w", owner, err)
	}
	return repos, nil
}

// PullRequest fetches pull request details.
func (c *Client) PullRequest(ctx context.Context, repo, number int64) (PullRequest, error) {
	var pr PullRequest
	path := repoPath(repo, "/pulls/"+strconv.FormatInt(number, 10))
	if err := c.get(ctx, path, nil, &pr); err != nil {
		return PullRequest{}, fmt.Errorf("pull %d#%d: %w", repo, number, err)
	}
	return pr, nil
}

// PullComments lists the review (code) comments of a pull request.
func (c *Client) PullComments(ctx context.Context, repo, number int64) ([]Comment, error) {
	path := repoPath(repo, "/pulls/"+strconv.FormatInt(number, 10)+"/comments")
	comments, err := list[Comment](ctx, c, path, nil)
	if err != nil {
		return nil, fmt.Errorf("pull comments %d#%d: %w", repo, number, err)
	}
	return comments, nil
}

// IssueComments lists the conversation comments of an issue or pull request.
func (c *Client) IssueComments(ctx context.Context, repo, number int64) ([]Comment, error) {
	path := repoPath(repo, "/issues/"+strconv.FormatInt(number, 10)+"/comments")
	comments, err := list[Comment](ctx, c, path, nil)
	if err != nil {
		return nil, fmt.Errorf("issue comments %d#%d: %w", repo, number, err)
	}
	return comments, nil
}

// CommentReactions lists reactions on an issue comment.
func (c *Client) CommentReactions(ctx context.Context, repo, commentID int64) ([]Reaction, error) {
	path := repoPath(repo, "/issues/comments/"+strconv.FormatInt(commentID, 10)+"/reactions")
	reactions, err := list[Reaction](ctx, c, path, nil)
	if err != nil {
		return nil, fmt.Errorf("reactions of comment %d: %w", commentID, err)
	}
	return reactions, nil
}

// Contributors lists the contributor roster of a repository.
func (c *Client) Contributors(ctx context.Context, repo int64) ([]Contributor, error) {
	roster, err := list[Contributor](ctx, c, repoPath(repo, "/contributors"), nil)
	if err != nil {
		return nil, fmt.Errorf("contributors of %d: %w", repo, err)
	}
	return roster, nil
}

// Releases lists the releases of a repository, newest first.
func (c *Client) Releases(ctx context.Context, repo int64) ([]Release, error) {
	releases, err := list[Release](ctx, c, repoPath(repo, "/releases"), nil)
	if err != nil {
		return nil, fmt.Errorf("releases of %d: %w", repo, err)
	}
	return releases, nil
}

// Commits returns one page of history starting at sha (default branch when
// empty), newest first.
func (c *Client) Commits(ctx context.Context, repo int64, sha string) ([]Commit, error) {
	q := map[string]string{"per_page": strconv.Itoa(PerPage)}
	if sha != "" {
		q["sha"] = sha
	}
	var commits []Commit
	if err := c.get(ctx, repoPath(repo, "/commits"), q, &commits); err != nil {
		return nil, fmt.Errorf("commits of %d at %q: %w", repo, sha, err)
	}
	return commits, nil
}

// Compare compares base...head.
func (c *Client) Compare(ctx context.Context, repo int64, base, head string) (Comparison, error) {
	var cmp Comparison
	path := repoPath(repo, "/compare/"+url.PathEscape(base)+"..."+url.PathEscape(head))
	if err := c.get(ctx, path, nil, &cmp); err != nil {
		return Comparison{}, fmt.Errorf("compare %s...%s in %d: %w", base, head, repo, err)
	}
	return cmp, nil
}

// Timeline lists the timeline of an issue or pull request.
func (c *Client) Timeline(ctx context.Context, repo, number int64) ([]TimelineItem, error) {
	path := repoPath(repo, "/issues/"+strconv.FormatInt(number, 10)+"/timeline")
	items, err := list[TimelineItem](ctx, c, path, nil)
	if err != nil {
		return nil, fmt.Errorf("timeline %d#%d: %w", repo, number, err)
	}
	return items, nil
}
