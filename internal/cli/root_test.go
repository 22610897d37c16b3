package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factmirror/internal/config"
	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/store"
	"github.com/roach88/factmirror/internal/testutil"
)

var (
	judges = github.Repository{ID: 42, FullName: "yegor256/judges"}
	jeff   = github.User{ID: 7, Login: "jeff"}
	day    = time.Date(2024, 8, 5, 10, 0, 0, 0, time.UTC)
)

func newTestOptions(gh *testutil.FakeGitHub) *RootOptions {
	return &RootOptions{
		EnvFiles: []string{},
		NewGitHub: func(_ config.GitHubConfig, meter github.Meter, _ *slog.Logger) GitHub {
			gh.SetMeter(meter)
			return gh
		},
		RunIDs: testutil.NewFixedRunID("run-1"),
		Now:    func() time.Time { return day },
	}
}

func execute(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seededGitHub() *testutil.FakeGitHub {
	gh := testutil.NewFakeGitHub()
	gh.AddRepository(judges)
	gh.PushEvents(judges.ID,
		testutil.NewEvent(3, github.TypeIssues, judges, jeff, day, github.IssuesPayload{
			Action: "opened", Issue: github.Issue{Number: 11, User: jeff},
		}),
		testutil.NewEvent(2, "WatchEvent", judges, jeff, day, map[string]string{"action": "started"}),
		testutil.NewEvent(1, github.TypeCreate, judges, jeff, day, github.CreatePayload{Ref: "0.1.0", RefType: "tag"}),
	)
	return gh
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "factmirror", cmd.Use)

	for _, name := range []string{"scan", "labels", "facts", "watermarks"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-format"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))

	_, err := execute(t, newTestOptions(testutil.NewFakeGitHub()), "--format", "xml", "watermarks")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestScan_EndToEnd(t *testing.T) {
	db := filepath.Join(t.TempDir(), "facts.db")
	opts := newTestOptions(seededGitHub())

	out, err := execute(t, opts, "--db", db, "--format", "json", "scan", "-r", "yegor256/judges")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		RunID  string     `json:"run_id"`
		Data   scanResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.Data.Repositories, 1)
	assert.Equal(t, repoResult{
		Repository: "yegor256/judges",
		Scanned:    3,
		Derived:    2,
		Discarded:  1,
		Latest:     3,
		Stopped:    "end",
	}, resp.Data.Repositories[0])
	// repository lookup and two event pages
	assert.Equal(t, 3, resp.Data.QuotaUsed)

	out, err = execute(t, newTestOptions(seededGitHub()), "--db", db, "facts", "--what", fact.KindIssueOpened)
	require.NoError(t, err)
	assert.Contains(t, out, "issue-was-opened 42#11")

	out, err = execute(t, newTestOptions(seededGitHub()), "--db", db, "watermarks")
	require.NoError(t, err)
	assert.Equal(t, "42 3\n", out)
}

func TestScan_SecondRunDerivesNothing(t *testing.T) {
	db := filepath.Join(t.TempDir(), "facts.db")
	gh := seededGitHub()

	_, err := execute(t, newTestOptions(gh), "--db", db, "scan", "-r", "yegor256/judges")
	require.NoError(t, err)
	out, err := execute(t, newTestOptions(gh), "--db", db, "scan", "-r", "yegor256/judges")
	require.NoError(t, err)
	assert.Contains(t, out, "yegor256/judges: scanned 1, derived 0, discarded 0, skipped 1, latest 3 (watermark)")
}

func TestScan_NoRepositories(t *testing.T) {
	db := filepath.Join(t.TempDir(), "facts.db")
	_, err := execute(t, newTestOptions(testutil.NewFakeGitHub()), "--db", db, "scan")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScan_FailedRepositoryExitsOne(t *testing.T) {
	db := filepath.Join(t.TempDir(), "facts.db")
	gh := seededGitHub()
	gh.FailEvents(judges.ID, &github.APIError{Method: "GET", Path: "/repositories/42/events", Status: 502})

	out, err := execute(t, newTestOptions(gh), "--db", db, "scan", "-r", "yegor256/judges")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "yegor256/judges: FAILED")
}

func TestScan_ConfigAndMetrics(t *testing.T) {
	dir := t.TempDir()
	prom := filepath.Join(dir, "factmirror.prom")
	cfgPath := filepath.Join(dir, "factmirror.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
database = "`+filepath.Join(dir, "facts.db")+`"
repositories = ["yegor256/*"]
max_events = 2

[metrics]
textfile = "`+prom+`"
`), 0o600))

	out, err := execute(t, newTestOptions(seededGitHub()), "--config", cfgPath, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "scanned 2")
	assert.Contains(t, out, "(limit)")

	content, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(content), `factmirror_facts_derived_total{what="issue-was-opened"} 1`)
	assert.Contains(t, string(content), "factmirror_last_run_timestamp_seconds")
}

func TestConfigError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("max_events: 0\n"), 0o600))

	_, err := execute(t, newTestOptions(testutil.NewFakeGitHub()), "--config", cfgPath, "watermarks")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, config.IsValidationError(err))
}

func TestLabels_Command(t *testing.T) {
	db := filepath.Join(t.TempDir(), "facts.db")
	s, err := store.Open(db)
	require.NoError(t, err)
	opened := fact.New(fact.KindIssueOpened, judges.ID)
	opened.Issue = 11
	_, err = s.Insert(context.Background(), opened)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	gh := testutil.NewFakeGitHub()
	gh.AddRepository(judges)
	gh.SetTimeline(judges.ID, 11, github.TimelineItem{
		Event: "labeled", Actor: jeff, Label: &github.Label{Name: "bug"}, CreatedAt: day,
	})

	out, err := execute(t, newTestOptions(gh), "--db", db, "labels", "-r", "yegor256/judges")
	require.NoError(t, err)
	assert.Equal(t, "yegor256/judges: 1 issues, 1 labels attached, 0 facts retracted\n", out)

	out, err = execute(t, newTestOptions(gh), "--db", db, "facts", "--what", fact.KindLabelAttached, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"label":"bug"`)
}

func TestFacts_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "facts.db")
	out, err := execute(t, newTestOptions(testutil.NewFakeGitHub()), "--db", db, "facts")
	require.NoError(t, err)
	assert.Equal(t, "no facts\n", out)
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := newLogger(buf, config.LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("run started", "repositories", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run started", line["msg"])
	assert.Equal(t, float64(2), line["repositories"])

	buf.Reset()
	logger, err = newLogger(buf, config.LogConfig{Level: "debug", Format: "text"})
	require.NoError(t, err)
	logger.Debug("event discarded", "event", 5)
	assert.Contains(t, buf.String(), "event discarded")

	_, err = newLogger(buf, config.LogConfig{Level: "loud", Format: "text"})
	assert.Error(t, err)
}
