package github

import (
	"encoding/json"
	"time"
)

// Repository is a GitHub repository, the scope of every scan.
type Repository struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// User is a GitHub account reference.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// EventRepo is the repository reference embedded in an event.
type EventRepo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Event is a raw activity event as returned by the events API.
// It is never persisted verbatim; Decode turns its payload into a Payload.
type Event struct {
	ID        int64           `json:"id,string"`
	Type      string          `json:"type"`
	Actor     User            `json:"actor"`
	Repo      EventRepo       `json:"repo"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Issue is the issue (or pull request) embedded in issue events.
type Issue struct {
	Number  int64  `json:"number"`
	Title   string `json:"title"`
	User    User   `json:"user"`
	HTMLURL string `json:"html_url"`
	// PullRequest is non-nil when the issue is a pull request.
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// PullRequest is a pull request, either embedded in an event or fetched.
// The counters are only reliable on fetched pull requests.
type PullRequest struct {
	ID             int64      `json:"id"`
	Number         int64      `json:"number"`
	Title          string     `json:"title"`
	User           User       `json:"user"`
	State          string     `json:"state"`
	MergedAt       *time.Time `json:"merged_at"`
	Additions      int64      `json:"additions"`
	Deletions      int64      `json:"deletions"`
	ChangedFiles   int64      `json:"changed_files"`
	Commits        int64      `json:"commits"`
	Comments       int64      `json:"comments"`
	ReviewComments int64      `json:"review_comments"`
	HTMLURL        string     `json:"html_url"`
}

// Merged reports whether the pull request was merged.
func (p PullRequest) Merged() bool {
	return p.MergedAt != nil
}

// Review is a pull request review.
type Review struct {
	ID          int64     `json:"id"`
	User        User      `json:"user"`
	State       string    `json:"state"`
	Body        string    `json:"body"`
	SubmittedAt time.Time `json:"submitted_at"`
	HTMLURL     string    `json:"html_url"`
}

// Comment is an issue comment or a pull request review comment.
type Comment struct {
	ID        int64     `json:"id"`
	User      User      `json:"user"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	HTMLURL   string    `json:"html_url"`
}

// Reaction is a reaction on a comment.
type Reaction struct {
	ID      int64  `json:"id"`
	User    User   `json:"user"`
	Content string `json:"content"`
}

// Release is a published release.
type Release struct {
	ID          int64     `json:"id"`
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Author      User      `json:"author"`
	Draft       bool      `json:"draft"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// Contributor is an entry of the repository contributor roster.
type Contributor struct {
	ID            int64  `json:"id"`
	Login         string `json:"login"`
	Contributions int64  `json:"contributions"`
}

// Commit is a commit as listed by the commits and compare endpoints.
// Author is nil when GitHub cannot attribute the commit to an account.
type Commit struct {
	SHA     string `json:"sha"`
	Author  *User  `json:"author"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
}

// File is a changed file in a comparison.
type File struct {
	Filename  string `json:"filename"`
	Additions int64  `json:"additions"`
	Deletions int64  `json:"deletions"`
}

// Comparison is the result of comparing two refs (base...head).
type Comparison struct {
	TotalCommits int      `json:"total_commits"`
	Commits      []Commit `json:"commits"`
	Files        []File   `json:"files"`
}

// Label is an issue label.
type Label struct {
	Name string `json:"name"`
}

// TimelineItem is one entry of an issue timeline.
type TimelineItem struct {
	Event     string    `json:"event"`
	Actor     User      `json:"actor"`
	Label     *Label    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
