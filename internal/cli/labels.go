package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/factmirror/internal/github"
	"github.com/roach88/factmirror/internal/metrics"
	"github.com/roach88/factmirror/internal/reconcile"
)

// LabelsOptions holds flags for the labels command.
type LabelsOptions struct {
	*RootOptions
	Repositories []string
}

// NewLabelsCommand creates the labels command.
func NewLabelsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LabelsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Record label facts from issue timelines",
		Long: `Labels walks the timeline of every issue with an issue-was-opened fact and
records a label-was-attached fact per label. Facts about issues that no
longer exist are deleted.

Example:
  factmirror labels --config factmirror.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLabels(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Repositories, "repository", "r", nil, "repository mask (repeatable, overrides config)")

	return cmd
}

func runLabels(cmd *cobra.Command, opts *LabelsOptions) error {
	ctx := cmd.Context()
	masks := opts.cfg.Repositories
	if len(opts.Repositories) > 0 {
		masks = opts.Repositories
	}
	if len(masks) == 0 {
		return NewExitError(ExitCommandError, "no repositories: set repositories in the config or pass --repository")
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

	rec := metrics.New()
	judge := reconcile.NewLabels(gh, st, reconcile.New(st))
	res := labelsResult{Repositories: []labelsRepo{}}
	failed := 0
	for _, repo := range repos {
		stats, err := judge.Run(ctx, rc, repo)
		r := labelsRepo{
			Repository: repo.FullName,
			Issues:     stats.Issues,
			Attached:   stats.Attached,
			Retracted:  stats.Retracted,
		}
		if err != nil {
			failed++
			r.Error = err.Error()
			rc.Log().Error("label judge failed", "repository", repo.FullName, "error", err)
		}
		rec.LabelsJudged(stats.Attached, stats.Retracted)
		res.Repositories = append(res.Repositories, r)
		if stats.QuotaStopped {
			break
		}
	}

	rec.Finish(rc.Quota, opts.now())
	if path := opts.cfg.Metrics.Textfile; path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			rc.Log().Error("metrics export failed", "path", path, "error", err)
		}
	}

	if err := opts.formatter(cmd).SuccessRun(rc.RunID, res); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d repositories failed", failed, len(res.Repositories)))
	}
	return nil
}

type labelsResult struct {
	Repositories []labelsRepo `json:"repositories"`
}

type labelsRepo struct {
	Repository string `json:"repository"`
	Issues     int    `json:"issues"`
	Attached   int    `json:"attached"`
	Retracted  int64  `json:"retracted"`
	Error      string `json:"error,omitempty"`
}

func (r labelsResult) String() string {
	lines := make([]string, 0, len(r.Repositories))
	for _, rr := range r.Repositories {
		if rr.Error != "" {
			lines = append(lines, fmt.Sprintf("%s: FAILED: %s", rr.Repository, rr.Error))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %d issues, %d labels attached, %d facts retracted",
			rr.Repository, rr.Issues, rr.Attached, rr.Retracted))
	}
	return strings.Join(lines, "\n")
}
