package harness

import (
	"github.com/roach88/factmirror/internal/engine"
	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/reconcile"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string

	// Reports holds one run report per run, in order.
	Reports []engine.RunReport

	// Labels holds label judge stats per run, keyed by repository id.
	// Runs without the judge have a nil entry.
	Labels []map[int64]reconcile.LabelStats

	// Facts are the final store contents ordered by id, watermarks excluded.
	Facts []fact.Fact

	// Watermarks are the final watermarks keyed by repository id.
	Watermarks map[int64]int64

	// Calls are the GitHub calls made, in order.
	Calls []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Errors:     []string{},
		Watermarks: map[int64]int64{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// report returns the stats of a repository in a 1-based run.
func (r *Result) report(run int, repository int64) (engine.RepoReport, bool) {
	if run < 1 || run > len(r.Reports) {
		return engine.RepoReport{}, false
	}
	for _, rr := range r.Reports[run-1].Repositories {
		if rr.Repository.ID == repository {
			return rr, true
		}
	}
	return engine.RepoReport{}, false
}
