package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/queryir"
	"github.com/roach88/factmirror/internal/store"
)

// NewWatermarksCommand creates the watermarks command.
func NewWatermarksCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watermarks",
		Short: "Show the newest processed event per repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			facts, err := st.Query(cmd.Context(), queryir.What(fact.KindWatermark),
				store.OrderBy(fact.ColRepository, false))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to query watermarks", err)
			}
			list := watermarkList{}
			for _, f := range facts {
				list = append(list, watermarkView{Repository: f.Repository, Latest: f.Int("latest")})
			}
			return rootOpts.formatter(cmd).Success(list)
		},
	}
}

type watermarkView struct {
	Repository int64 `json:"repository"`
	Latest     int64 `json:"latest"`
}

type watermarkList []watermarkView

func (l watermarkList) String() string {
	if len(l) == 0 {
		return "no repositories scanned"
	}
	lines := make([]string, 0, len(l))
	for _, w := range l {
		lines = append(lines, fmt.Sprintf("%d %d", w.Repository, w.Latest))
	}
	return strings.Join(lines, "\n")
}
