package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/queryir"
	"github.com/roach88/factmirror/internal/store"
)

// FactsOptions holds flags for the facts command.
type FactsOptions struct {
	*RootOptions
	What       string
	Repository int64
	Issue      int64
	Limit      int
}

// NewFactsCommand creates the facts command.
func NewFactsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FactsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "facts",
		Short: "List recorded facts",
		Long: `List facts from the database, oldest first.

Example:
  factmirror facts --db facts.db --what pull-was-merged
  factmirror facts --db facts.db --repository 820463873 --issue 172 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFacts(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.What, "what", "", "fact kind")
	cmd.Flags().Int64Var(&opts.Repository, "repository", 0, "repository id")
	cmd.Flags().Int64Var(&opts.Issue, "issue", 0, "issue or pull request number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of facts (0 = all)")

	return cmd
}

func runFacts(cmd *cobra.Command, opts *FactsOptions) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var preds []queryir.Predicate
	if opts.What != "" {
		preds = append(preds, queryir.What(opts.What))
	}
	if opts.Repository != 0 {
		preds = append(preds, queryir.Repository(opts.Repository))
	}
	if opts.Issue != 0 {
		preds = append(preds, queryir.Issue(opts.Issue))
	}
	var qopts []store.QueryOption
	if opts.Limit > 0 {
		qopts = append(qopts, store.Limit(opts.Limit))
	}

	facts, err := st.Query(cmd.Context(), queryir.All(preds...), qopts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query facts", err)
	}

	list := factList{}
	for _, f := range facts {
		list = append(list, newFactView(f))
	}
	return opts.formatter(cmd).Success(list)
}

type factView struct {
	ID         int64      `json:"id"`
	EventID    int64      `json:"event_id,omitempty"`
	What       string     `json:"what"`
	Repository int64      `json:"repository"`
	Issue      int64      `json:"issue,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	Attrs      fact.Attrs `json:"attrs"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newFactView(f fact.Fact) factView {
	return factView{
		ID:         f.ID,
		EventID:    f.EventID,
		What:       f.What,
		Repository: f.Repository,
		Issue:      f.Issue,
		RunID:      f.RunID,
		Attrs:      f.Attrs,
		CreatedAt:  f.CreatedAt,
	}
}

type factList []factView

func (l factList) String() string {
	if len(l) == 0 {
		return "no facts"
	}
	lines := make([]string, 0, len(l))
	for _, f := range l {
		attrs, err := json.Marshal(f.Attrs)
		if err != nil {
			attrs = []byte("{}")
		}
		where := fmt.Sprintf("%d", f.Repository)
		if f.Issue != 0 {
			where = fmt.Sprintf("%d#%d", f.Repository, f.Issue)
		}
		lines = append(lines, fmt.Sprintf("%d %s %s %s", f.ID, f.What, where, attrs))
	}
	return strings.Join(lines, "\n")
}
