package harness

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/factmirror/internal/fact"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  expected: %s\n  actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertFactCount:
		return assertFactCount(result, a)
	case AssertFactExists:
		return assertFactExists(result, a)
	case AssertWatermark:
		return assertWatermark(result, a)
	case AssertRunStats:
		return assertRunStats(result, a)
	case AssertCallCount:
		return assertCallCount(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// selectFacts returns facts of the assertion's kind, narrowed by
// repository and issue when those are set.
func selectFacts(facts []fact.Fact, a Assertion) []fact.Fact {
	var out []fact.Fact
	for _, f := range facts {
		if f.What != a.What {
			continue
		}
		if a.Repository != 0 && f.Repository != a.Repository {
			continue
		}
		if a.Issue != 0 && f.Issue != a.Issue {
			continue
		}
		out = append(out, f)
	}
	return out
}

func assertFactCount(result *Result, a Assertion) error {
	got := len(selectFacts(result.Facts, a))
	if got != a.Count {
		return &AssertionError{
			Type:     AssertFactCount,
			Expected: fmt.Sprintf("%d %s fact(s)", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func assertFactExists(result *Result, a Assertion) error {
	want := fact.Attrs{}
	for k, v := range a.Attrs {
		val, err := fact.FromAny(v)
		if err != nil {
			return fmt.Errorf("attrs.%s: %w", k, err)
		}
		want[k] = val
	}

	candidates := selectFacts(result.Facts, a)
	for _, f := range candidates {
		if matchAttrs(f.Attrs, want) {
			return nil
		}
	}

	actual := make([]string, 0, len(candidates))
	for _, f := range candidates {
		b, _ := f.Attrs.MarshalJSON()
		actual = append(actual, string(b))
	}
	expected, _ := want.MarshalJSON()
	return &AssertionError{
		Type:     AssertFactExists,
		Expected: fmt.Sprintf("%s with %s", describe(a), expected),
		Actual:   "[" + strings.Join(actual, ", ") + "]",
	}
}

// matchAttrs is a subset match: every wanted attribute must be present
// with the same canonical encoding.
func matchAttrs(have, want fact.Attrs) bool {
	for k, w := range want {
		h, ok := have[k]
		if !ok {
			return false
		}
		hb, err := fact.MarshalValue(h)
		if err != nil {
			return false
		}
		wb, err := fact.MarshalValue(w)
		if err != nil {
			return false
		}
		if !bytes.Equal(hb, wb) {
			return false
		}
	}
	return true
}

func assertWatermark(result *Result, a Assertion) error {
	got, ok := result.Watermarks[a.Repository]
	if !ok && a.Latest != 0 {
		return &AssertionError{
			Type:     AssertWatermark,
			Expected: fmt.Sprintf("watermark %d for %d", a.Latest, a.Repository),
			Actual:   "no watermark",
		}
	}
	if got != a.Latest {
		return &AssertionError{
			Type:     AssertWatermark,
			Expected: fmt.Sprintf("watermark %d for %d", a.Latest, a.Repository),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func assertRunStats(result *Result, a Assertion) error {
	rr, ok := result.report(a.Run, a.Repository)
	if !ok {
		return &AssertionError{
			Type:     AssertRunStats,
			Expected: fmt.Sprintf("repository %d scanned in run %d", a.Repository, a.Run),
			Actual:   "not scanned",
		}
	}
	want, st := a.Stats, rr.Stats
	var diffs []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			diffs = append(diffs, fmt.Sprintf("%s %d, want %d", name, got, *want))
		}
	}
	check("scanned", want.Scanned, st.Scanned)
	check("derived", want.Derived, st.Derived)
	check("discarded", want.Discarded, st.Discarded)
	check("skipped", want.Skipped, st.Skipped)
	if want.Latest != nil && *want.Latest != st.Latest {
		diffs = append(diffs, fmt.Sprintf("latest %d, want %d", st.Latest, *want.Latest))
	}
	if want.Stopped != nil && *want.Stopped != string(st.Stopped) {
		diffs = append(diffs, fmt.Sprintf("stopped %q, want %q", st.Stopped, *want.Stopped))
	}
	if want.Failed != nil && *want.Failed != (rr.Err != nil) {
		diffs = append(diffs, fmt.Sprintf("failed %t (%v), want %t", rr.Err != nil, rr.Err, *want.Failed))
	}
	if len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertRunStats,
			Expected: fmt.Sprintf("run %d of %d to match", a.Run, a.Repository),
			Actual:   strings.Join(diffs, "; "),
		}
	}
	return nil
}

func assertCallCount(result *Result, a Assertion) error {
	got := 0
	for _, c := range result.Calls {
		if strings.HasPrefix(c, a.Prefix) {
			got++
		}
	}
	if got != a.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d call(s) starting with %q", a.Count, a.Prefix),
			Actual:   fmt.Sprintf("%d: %v", got, result.Calls),
		}
	}
	return nil
}

func describe(a Assertion) string {
	var b strings.Builder
	b.WriteString(a.What)
	if a.Repository != 0 {
		fmt.Fprintf(&b, " in %d", a.Repository)
	}
	if a.Issue != 0 {
		fmt.Fprintf(&b, "#%d", a.Issue)
	}
	return b.String()
}
