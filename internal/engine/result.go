package engine

import (
	"fmt"

	"github.com/roach88/factmirror/internal/fact"
)

// Result is the classifier's verdict on one event: Derive or Discard.
type Result struct {
	fact    fact.Fact
	derived bool
	reason  string
}

// Derive produces a fact from the event.
func Derive(f fact.Fact) Result {
	return Result{fact: f, derived: true}
}

// Discard drops the event without a trace.
func Discard(reason string) Result {
	return Result{reason: reason}
}

// Discardf is Discard with a formatted reason.
func Discardf(format string, args ...any) Result {
	return Result{reason: fmt.Sprintf(format, args...)}
}

// Derived returns the fact, or false for a discard.
func (r Result) Derived() (fact.Fact, bool) {
	return r.fact, r.derived
}

// Reason returns why the event was discarded.
func (r Result) Reason() string {
	return r.reason
}
