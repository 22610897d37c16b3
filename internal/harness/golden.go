package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/factmirror/internal/fact"
)

// Snapshot is the deterministic view of a scenario outcome compared
// against golden files. Fact ids and timestamps are left out.
type Snapshot struct {
	Scenario   string              `json:"scenario"`
	Runs       []RunSnapshot       `json:"runs"`
	Facts      []FactSnapshot      `json:"facts"`
	Watermarks []WatermarkSnapshot `json:"watermarks"`
}

// RunSnapshot is one run report.
type RunSnapshot struct {
	RunID        string         `json:"run_id"`
	Repositories []RepoSnapshot `json:"repositories"`
	Unscheduled  []string       `json:"unscheduled,omitempty"`
}

// RepoSnapshot is the scan outcome of one repository.
type RepoSnapshot struct {
	Repository string `json:"repository"`
	Scanned    int    `json:"scanned"`
	Derived    int    `json:"derived"`
	Discarded  int    `json:"discarded"`
	Skipped    int    `json:"skipped"`
	Latest     int64  `json:"latest"`
	Stopped    string `json:"stopped"`
	Error      string `json:"error,omitempty"`
}

// FactSnapshot is one stored fact.
type FactSnapshot struct {
	EventID    int64      `json:"event_id,omitempty"`
	What       string     `json:"what"`
	Repository int64      `json:"repository"`
	Issue      int64      `json:"issue,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	Attrs      fact.Attrs `json:"attrs"`
}

// WatermarkSnapshot is the watermark of one repository.
type WatermarkSnapshot struct {
	Repository int64 `json:"repository"`
	Latest     int64 `json:"latest"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	snap := Snapshot{
		Scenario:   name,
		Runs:       []RunSnapshot{},
		Facts:      []FactSnapshot{},
		Watermarks: []WatermarkSnapshot{},
	}
	for _, report := range result.Reports {
		rs := RunSnapshot{RunID: report.RunID, Repositories: []RepoSnapshot{}}
		for _, rr := range report.Repositories {
			repo := RepoSnapshot{
				Repository: rr.Repository.FullName,
				Scanned:    rr.Stats.Scanned,
				Derived:    rr.Stats.Derived,
				Discarded:  rr.Stats.Discarded,
				Skipped:    rr.Stats.Skipped,
				Latest:     rr.Stats.Latest,
				Stopped:    string(rr.Stats.Stopped),
			}
			if rr.Err != nil {
				repo.Error = rr.Err.Error()
			}
			rs.Repositories = append(rs.Repositories, repo)
		}
		for _, r := range report.Unscheduled {
			rs.Unscheduled = append(rs.Unscheduled, r.FullName)
		}
		snap.Runs = append(snap.Runs, rs)
	}
	for _, f := range result.Facts {
		snap.Facts = append(snap.Facts, FactSnapshot{
			EventID:    f.EventID,
			What:       f.What,
			Repository: f.Repository,
			Issue:      f.Issue,
			RunID:      f.RunID,
			Attrs:      f.Attrs,
		})
	}
	repos := make([]int64, 0, len(result.Watermarks))
	for repo := range result.Watermarks {
		repos = append(repos, repo)
	}
	slices.Sort(repos)
	for _, repo := range repos {
		snap.Watermarks = append(snap.Watermarks, WatermarkSnapshot{Repository: repo, Latest: result.Watermarks[repo]})
	}
	return snap
}

// Marshal renders the snapshot as indented JSON without HTML escaping.
func (s Snapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(name, result).Marshal()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
