package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/pkg/client"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// NewResultsCmd creates the results command group, which queries a running
// "dockpipe serve".
func NewResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Query a results server",
	}
	cmd.PersistentFlags().String("server", fmt.Sprintf("http://localhost:%d", config.DefaultServerPort), "results server URL")
	cmd.PersistentFlags().Int("limit", 0, "maximum entries to return, 0 for the server default")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "top N",
			Short: "Show the N best ligands of the served report",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return errors.InvalidParam("N must be a positive integer")
				}
				c, err := resultsClient(cmd)
				if err != nil {
					return err
				}
				r, err := c.Top(cmd.Context(), n)
				if err != nil {
					return err
				}
				return PrintResult(cmd, rankingFromAPI(r))
			},
		},
		&cobra.Command{
			Use:   "leaderboard RECEPTOR",
			Short: "Show the best ligands across runs for a receptor",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := resultsClient(cmd)
				if err != nil {
					return err
				}
				limit, _ := cmd.Flags().GetInt("limit")
				r, err := c.Leaderboard(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				return PrintResult(cmd, rankingFromAPI(r))
			},
		},
		&cobra.Command{
			Use:   "runs [RECEPTOR]",
			Short: "List recent runs",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := resultsClient(cmd)
				if err != nil {
					return err
				}
				receptor := ""
				if len(args) == 1 {
					receptor = args[0]
				}
				limit, _ := cmd.Flags().GetInt("limit")
				list, err := c.Runs(cmd.Context(), receptor, limit)
				if err != nil {
					return err
				}
				return PrintResult(cmd, runsView(list.Runs))
			},
		},
		&cobra.Command{
			Use:   "archive RUN_ID",
			Short: "Print a download link for a run archive",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := resultsClient(cmd)
				if err != nil {
					return err
				}
				link, err := c.Archive(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return PrintResult(cmd, link.URL)
			},
		},
	)
	return cmd
}

func resultsClient(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	return client.NewClient(server, client.WithUserAgent("dockpipe/"+Version))
}

func rankingFromAPI(r *client.Ranking) rankingView {
	out := make(rankingView, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = docking.RankedEntry{Rank: e.Rank, Name: e.Name, Score: e.Score}
	}
	return out
}

// runsView renders a run list.
type runsView []*client.Run

func (v runsView) String() string {
	lines := make([]string, len(v))
	for i, r := range v {
		lines[i] = fmt.Sprintf("%s  %s  %s  docked %d  %s", r.ID, r.Status, r.Receptor, r.Docked,
			r.StartedAt.Local().Format(time.DateTime))
	}
	return strings.Join(lines, "\n")
}

func (v runsView) TableHeaders() []string {
	return []string{"ID", "STATUS", "RECEPTOR", "DOCKED", "STARTED"}
}

func (v runsView) TableRows() [][]string {
	rows := make([][]string, len(v))
	for i, r := range v {
		rows[i] = []string{r.ID, r.Status, r.Receptor, strconv.Itoa(r.Docked), r.StartedAt.Local().Format(time.DateTime)}
	}
	return rows
}
