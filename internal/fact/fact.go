package fact

import (
	"time"
)

// Kinds of facts written by the engine. The value lands in the "what" column.
const (
	KindWatermark        = "events-were-scanned"
	KindTagCreated       = "tag-was-created"
	KindIssueOpened      = "issue-was-opened"
	KindIssueClosed      = "issue-was-closed"
	KindPullMerged       = "pull-was-merged"
	KindPullClosed       = "pull-was-closed"
	KindPullReviewed     = "pull-was-reviewed"
	KindCommentPosted    = "comment-was-posted"
	KindReleasePublished = "release-published"
	KindLabelAttached    = "label-was-attached"
)

// Names of the promoted columns. Predicates over these compile to column
// references instead of JSON lookups.
const (
	ColID         = "id"
	ColEventID    = "event_id"
	ColWhat       = "what"
	ColRepository = "repository"
	ColIssue      = "issue"
)

// Fact is one normalized record in the fact store.
//
// EventID is zero for facts not derived from a single event (watermarks,
// label facts). Issue is zero when the fact does not reference an issue
// or pull request.
type Fact struct {
	ID         int64
	EventID    int64
	What       string
	Repository int64
	Issue      int64
	RunID      string
	Attrs      Attrs
	CreatedAt  time.Time
}

// New creates a fact of the given kind for a repository.
func New(what string, repository int64) Fact {
	return Fact{What: what, Repository: repository, Attrs: Attrs{}}
}

// Set stores an attribute and returns the fact for chaining.
func (f *Fact) Set(key string, v Value) *Fact {
	if f.Attrs == nil {
		f.Attrs = Attrs{}
	}
	f.Attrs[key] = v
	return f
}

// Has reports whether the attribute is present.
func (f Fact) Has(key string) bool {
	_, ok := f.Attrs[key]
	return ok
}

// Int returns an integer attribute, or 0 when missing or of another type.
func (f Fact) Int(key string) int64 {
	if v, ok := f.Attrs[key].(Int); ok {
		return int64(v)
	}
	return 0
}

// String returns a string attribute, or "" when missing or of another type.
func (f Fact) String(key string) string {
	if v, ok := f.Attrs[key].(String); ok {
		return string(v)
	}
	return ""
}

// Bool returns a boolean attribute.
func (f Fact) Bool(key string) bool {
	if v, ok := f.Attrs[key].(Bool); ok {
		return bool(v)
	}
	return false
}

// Ints returns an array attribute as ids. Non-integer elements are skipped.
func (f Fact) Ints(key string) []int64 {
	arr, ok := f.Attrs[key].(Array)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(arr))
	for _, v := range arr {
		if n, ok := v.(Int); ok {
			out = append(out, int64(n))
		}
	}
	return out
}

// Time returns a timestamp attribute written with fact.Time.
// Returns the zero time when missing or unparsable.
func (f Fact) Time(key string) time.Time {
	s := f.String(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
