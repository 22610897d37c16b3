package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines an ingestion scenario: repositories, what GitHub
// answers, the runs to execute and what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is stamped on every fact. Defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`

	// Repositories are scanned in order on every run.
	Repositories []RepositoryStep `yaml:"repositories"`

	// Facts are inserted before the first run.
	Facts []FactStep `yaml:"facts,omitempty"`

	// Watermarks are set before the first run, keyed by repository id.
	Watermarks map[int64]int64 `yaml:"watermarks,omitempty"`

	// GitHub holds the enrichment data the fake API serves.
	GitHub Fixtures `yaml:"github,omitempty"`

	// Runs execute sequentially against the same store.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the final store and the run reports.
	Assertions []Assertion `yaml:"assertions"`
}

// RepositoryStep registers a repository.
type RepositoryStep struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// UserStep is a GitHub account.
type UserStep struct {
	ID    int64  `yaml:"id"`
	Login string `yaml:"login,omitempty"`
}

// FactStep is a fact present before the first run.
type FactStep struct {
	What       string         `yaml:"what"`
	Repository int64          `yaml:"repository"`
	Issue      int64          `yaml:"issue,omitempty"`
	Attrs      map[string]any `yaml:"attrs,omitempty"`
}

// EventStep is one raw event in a repository stream.
type EventStep struct {
	ID         int64          `yaml:"id"`
	Type       string         `yaml:"type"`
	Repository int64          `yaml:"repository"`
	Actor      UserStep       `yaml:"actor"`
	At         string         `yaml:"at"`
	Payload    map[string]any `yaml:"payload,omitempty"`
}

// RunStep is one scan run.
type RunStep struct {
	// Events are pushed on top of their repository streams before the run.
	// List them newest first.
	Events []EventStep `yaml:"events,omitempty"`

	// MaxEvents caps each repository scan. Zero keeps the default.
	MaxEvents int `yaml:"max_events,omitempty"`

	// Budget is the call budget. Zero means unlimited.
	Budget int `yaml:"budget,omitempty"`

	// Labels runs the label judge over every repository after the scan.
	Labels bool `yaml:"labels,omitempty"`
}

// Fixtures are served by the fake GitHub API. Object values use GitHub's
// REST field names.
type Fixtures struct {
	Pulls        []PullFixture     `yaml:"pulls,omitempty"`
	Reactions    []ReactionFixture `yaml:"reactions,omitempty"`
	Contributors []RosterFixture   `yaml:"contributors,omitempty"`
	Releases     []ReleasesFixture `yaml:"releases,omitempty"`
	Commits      []CommitsFixture  `yaml:"commits,omitempty"`
	Compares     []CompareFixture  `yaml:"compares,omitempty"`
	Timelines    []TimelineFixture `yaml:"timelines,omitempty"`
	Gone         []IssueStep       `yaml:"gone,omitempty"`
}

// PullFixture is a pull request with its discussion.
type PullFixture struct {
	Repository    int64 `yaml:"repository"`
	Pull          any   `yaml:"pull"`
	CodeComments  any   `yaml:"code_comments,omitempty"`
	IssueComments any   `yaml:"issue_comments,omitempty"`
	Resolved      int   `yaml:"resolved,omitempty"`
}

// ReactionFixture lists the reactions to one comment.
type ReactionFixture struct {
	Comment   int64 `yaml:"comment"`
	Reactions any   `yaml:"reactions"`
}

// RosterFixture is a repository contributor roster.
type RosterFixture struct {
	Repository   int64 `yaml:"repository"`
	Contributors any   `yaml:"contributors"`
}

// ReleasesFixture is a repository release listing, newest first.
type ReleasesFixture struct {
	Repository int64 `yaml:"repository"`
	Releases   any   `yaml:"releases"`
}

// CommitsFixture is one history page starting at SHA ("" for the default branch).
type CommitsFixture struct {
	Repository int64  `yaml:"repository"`
	SHA        string `yaml:"sha,omitempty"`
	Commits    any    `yaml:"commits"`
}

// CompareFixture is the comparison base...head.
type CompareFixture struct {
	Repository int64  `yaml:"repository"`
	Base       string `yaml:"base"`
	Head       string `yaml:"head"`
	Comparison any    `yaml:"comparison"`
}

// TimelineFixture is an issue timeline.
type TimelineFixture struct {
	Repository int64 `yaml:"repository"`
	Issue      int64 `yaml:"issue"`
	Items      any   `yaml:"items"`
}

// IssueStep names an issue or pull request.
type IssueStep struct {
	Repository int64 `yaml:"repository"`
	Issue      int64 `yaml:"issue"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "fact_count": number of facts of a kind, optionally per repository/issue
	// - "fact_exists": a fact whose attributes include Attrs
	// - "watermark": the watermark of a repository
	// - "run_stats": scan statistics of one repository in one run
	// - "call_count": number of GitHub calls starting with Prefix
	Type string `yaml:"type"`

	What       string         `yaml:"what,omitempty"`
	Repository int64          `yaml:"repository,omitempty"`
	Issue      int64          `yaml:"issue,omitempty"`
	Attrs      map[string]any `yaml:"attrs,omitempty"`

	// Count is used by fact_count and call_count.
	Count int `yaml:"count,omitempty"`

	// Latest is the expected watermark.
	Latest int64 `yaml:"latest,omitempty"`

	// Run is the 1-based run index for run_stats.
	Run   int          `yaml:"run,omitempty"`
	Stats *StatsExpect `yaml:"stats,omitempty"`

	// Prefix selects GitHub calls for call_count, e.g. "contributors".
	Prefix string `yaml:"prefix,omitempty"`
}

// StatsExpect is a partial match on engine.Stats.
type StatsExpect struct {
	Scanned   *int    `yaml:"scanned,omitempty"`
	Derived   *int    `yaml:"derived,omitempty"`
	Discarded *int    `yaml:"discarded,omitempty"`
	Skipped   *int    `yaml:"skipped,omitempty"`
	Latest    *int64  `yaml:"latest,omitempty"`
	Stopped   *string `yaml:"stopped,omitempty"`
	Failed    *bool   `yaml:"failed,omitempty"`
}

// Assertion type constants.
const (
	AssertFactCount  = "fact_count"
	AssertFactExists = "fact_exists"
	AssertWatermark  = "watermark"
	AssertRunStats   = "run_stats"
	AssertCallCount  = "call_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Repositories) == 0 {
		return fmt.Errorf("repositories list is required and must be non-empty")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	known := map[int64]bool{}
	for i, r := range s.Repositories {
		if r.ID <= 0 || r.Name == "" {
			return fmt.Errorf("repositories[%d]: id and name are required", i)
		}
		if known[r.ID] {
			return fmt.Errorf("repositories[%d]: duplicate id %d", i, r.ID)
		}
		known[r.ID] = true
	}

	for i, f := range s.Facts {
		if f.What == "" {
			return fmt.Errorf("facts[%d]: what is required", i)
		}
		if !known[f.Repository] {
			return fmt.Errorf("facts[%d]: unknown repository %d", i, f.Repository)
		}
	}

	for i, run := range s.Runs {
		if run.MaxEvents < 0 || run.Budget < 0 {
			return fmt.Errorf("runs[%d]: max_events and budget must be non-negative", i)
		}
		for j, ev := range run.Events {
			if err := validateEvent(ev, known); err != nil {
				return fmt.Errorf("runs[%d].events[%d]: %w", i, j, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, len(s.Runs)); err != nil {
			return err
		}
	}
	return nil
}

func validateEvent(ev EventStep, known map[int64]bool) error {
	if ev.ID <= 0 {
		return fmt.Errorf("id must be positive")
	}
	if ev.Type == "" {
		return fmt.Errorf("type is required")
	}
	if !known[ev.Repository] {
		return fmt.Errorf("unknown repository %d", ev.Repository)
	}
	if _, err := time.Parse(time.RFC3339, ev.At); err != nil {
		return fmt.Errorf("at: %w", err)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, runs int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFactCount:
		if a.What == "" {
			return fmt.Errorf("assertions[%d]: what is required for fact_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fact_count", index)
		}
	case AssertFactExists:
		if a.What == "" {
			return fmt.Errorf("assertions[%d]: what is required for fact_exists", index)
		}
	case AssertWatermark:
		if a.Repository == 0 {
			return fmt.Errorf("assertions[%d]: repository is required for watermark", index)
		}
	case AssertRunStats:
		if a.Run < 1 || a.Run > runs {
			return fmt.Errorf("assertions[%d]: run must be between 1 and %d", index, runs)
		}
		if a.Repository == 0 {
			return fmt.Errorf("assertions[%d]: repository is required for run_stats", index)
		}
		if a.Stats == nil {
			return fmt.Errorf("assertions[%d]: stats is required for run_stats", index)
		}
	case AssertCallCount:
		if a.Prefix == "" {
			return fmt.Errorf("assertions[%d]: prefix is required for call_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
