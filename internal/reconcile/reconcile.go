// Package reconcile retracts facts about issues and pull requests that no
// longer exist, and runs the label judge that walks issue timelines.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/factmirror/internal/queryir"
	"github.com/roach88/factmirror/internal/store"
)

// IssueRef names an issue or pull request within a repository.
type IssueRef struct {
	Repository int64
	Issue      int64
}

// String implements fmt.Stringer.
func (r IssueRef) String() string {
	return fmt.Sprintf("%d#%d", r.Repository, r.Issue)
}

// Reconciler deletes facts that reference a vanished entity.
type Reconciler struct {
	store *store.Store
}

// New creates a reconciler over the store.
func New(s *store.Store) *Reconciler {
	return &Reconciler{store: s}
}

// ReconcileMissing deletes every fact carrying both the repository and the
// issue of ref, in one transaction. Facts of other repositories with the
// same issue number are untouched.
func (r *Reconciler) ReconcileMissing(ctx context.Context, ref IssueRef) (int64, error) {
	if ref.Repository == 0 || ref.Issue == 0 {
		return 0, errors.New("reconcile: repository and issue are required")
	}
	n, err := r.store.Delete(ctx, queryir.All(
		queryir.Repository(ref.Repository),
		queryir.Issue(ref.Issue),
	))
	if err != nil {
		return 0, fmt.Errorf("reconcile %s: %w", ref, err)
	}
	return n, nil
}
