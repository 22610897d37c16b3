package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/factmirror/internal/classify"
	"github.com/roach88/factmirror/internal/engine"
	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/metrics"
	"github.com/roach88/factmirror/internal/reconcile"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Repositories []string
	MaxEvents    int
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Ingest new events of the tracked repositories",
		Long: `Scan pulls the activity events of every tracked repository, newest first,
down to the repository's watermark, and records a fact for every event that
carries a signal.

Repositories come from the config or from --repository masks:
  owner/name     one repository
  owner/*        every repository of owner
  -owner/name    exclude a repository

Example:
  factmirror scan --config factmirror.yaml
  factmirror scan --db facts.db -r 'zerocracy/*' -r -zerocracy/sandbox`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Repositories, "repository", "r", nil, "repository mask (repeatable, overrides config)")
	cmd.Flags().IntVar(&opts.MaxEvents, "max-events", 0, "per-repository event cap (overrides config)")

	return cmd
}

func runScan(cmd *cobra.Command, opts *ScanOptions) error {
	ctx := cmd.Context()
	cfg := opts.cfg

	masks := cfg.Repositories
	if len(opts.Repositories) > 0 {
		masks = opts.Repositories
	}
	if len(masks) == 0 {
		return NewExitError(ExitCommandError, "no repositories to scan: set repositories in the config or pass --repository")
	}
	maxEvents := cfg.MaxEvents
	if opts.MaxEvents > 0 {
		maxEvents = opts.MaxEvents
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rc, gh := opts.newRun()
	repos, err := github.Unmask(ctx, gh, masks)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve repositories", err)
	}
	rc.Log().Info("run started", "repositories", len(repos), "max_events", maxEvents)

	rec := metrics.New()
	classifier := classify.New(gh, st, reconcile.New(st), classify.WithRecorder(rec))
	loop := engine.NewLoop(gh, st, classifier,
		engine.WithMaxEvents(maxEvents),
		engine.WithRecorder(rec),
	)
	report := loop.Run(ctx, rc, repos)

	rec.Finish(rc.Quota, opts.now())
	if path := cfg.Metrics.Textfile; path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			rc.Log().Error("metrics export failed", "path", path, "error", err)
		}
	}

	totals := report.Totals()
	rc.Log().Info("run finished",
		"repositories", len(report.Repositories),
		"failed", report.Failed(),
		"unscheduled", len(report.Unscheduled),
		"derived", totals.Derived,
		"quota_used", rc.Quota.Used())

	if err := opts.formatter(cmd).SuccessRun(rc.RunID, newScanResult(report, rc.Quota.Used())); err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d repositories failed", n, len(report.Repositories)))
	}
	return nil
}

// scanResult is the printable outcome of a scan.
type scanResult struct {
	Repositories []repoResult `json:"repositories"`
	Unscheduled  []string     `json:"unscheduled,omitempty"`
	QuotaUsed    int          `json:"quota_used"`
}

type repoResult struct {
	Repository string `json:"repository"`
	Scanned    int    `json:"scanned"`
	Derived    int    `json:"derived"`
	Discarded  int    `json:"discarded"`
	Skipped    int    `json:"skipped"`
	Latest     int64  `json:"latest,omitempty"`
	Stopped    string `json:"stopped,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newScanResult(report engine.RunReport, quotaUsed int) scanResult {
	res := scanResult{Repositories: []repoResult{}, QuotaUsed: quotaUsed}
	for _, rr := range report.Repositories {
		r := repoResult{
			Repository: rr.Repository.FullName,
			Scanned:    rr.Stats.Scanned,
			Derived:    rr.Stats.Derived,
			Discarded:  rr.Stats.Discarded,
			Skipped:    rr.Stats.Skipped,
			Latest:     rr.Stats.Latest,
			Stopped:    string(rr.Stats.Stopped),
		}
		if rr.Err != nil {
			r.Error = rr.Err.Error()
		}
		res.Repositories = append(res.Repositories, r)
	}
	for _, repo := range report.Unscheduled {
		res.Unscheduled = append(res.Unscheduled, repo.FullName)
	}
	return res
}

func (r scanResult) String() string {
	var b strings.Builder
	for _, rr := range r.Repositories {
		if rr.Error != "" {
			fmt.Fprintf(&b, "%s: FAILED: %s\n", rr.Repository, rr.Error)
			continue
		}
		fmt.Fprintf(&b, "%s: scanned %d, derived %d, discarded %d, skipped %d, latest %d (%s)\n",
			rr.Repository, rr.Scanned, rr.Derived, rr.Discarded, rr.Skipped, rr.Latest, rr.Stopped)
	}
	for _, name := range r.Unscheduled {
		fmt.Fprintf(&b, "%s: not scanned, quota exhausted\n", name)
	}
	fmt.Fprintf(&b, "quota used: %d", r.QuotaUsed)
	return b.String()
}
