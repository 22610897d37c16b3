package engine

import (
	"math"
	"sync"
)

// Governor is the run-wide API call budget.
//
// One Governor is shared by every repository of a run, so a prolific
// repository cannot starve the ones scheduled after it: once the budget is
// spent the loop stops scanning and stops scheduling.
//
// Two limits apply, whichever is lower:
//   - the local budget (calls this run may make)
//   - the server-reported remaining quota minus a reserve, fed by Observe
//
// Thread-safety: Governor is safe for concurrent use; enrichment calls
// charge it from several goroutines.
type Governor struct {
	mu       sync.Mutex
	budget   int // 0 means no local budget
	used     int
	reserve  int
	server   int
	observed bool
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithReserve keeps n server-side calls untouched.
func WithReserve(n int) GovernorOption {
	return func(g *Governor) {
		g.reserve = n
	}
}

// NewGovernor creates a governor with the given local budget.
// A budget of zero or less disables the local limit.
func NewGovernor(budget int, opts ...GovernorOption) *Governor {
	if budget < 0 {
		budget = 0
	}
	g := &Governor{budget: budget}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Remaining returns how many calls may still be made, never negative.
// Returns math.MaxInt when no limit is known.
func (g *Governor) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining()
}

func (g *Governor) remaining() int {
	left := math.MaxInt
	if g.budget > 0 {
		left = g.budget - g.used
	}
	if g.observed {
		left = min(left, g.server-g.reserve)
	}
	return max(left, 0)
}

// Charge records n calls.
func (g *Governor) Charge(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.used += n
	if g.observed {
		g.server -= n
	}
}

// Observe records the server-reported remaining quota.
func (g *Governor) Observe(remaining int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.server = remaining
	g.observed = true
}

// Exhausted reports whether no calls remain.
func (g *Governor) Exhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining() == 0
}

// Used returns the number of charged calls.
// Used for logging and metrics.
func (g *Governor) Used() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}
