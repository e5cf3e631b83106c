package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Render the top-N, statistics and JSON reports from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.Runner(false).Reports(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			out := a.Config().Output
			fmt.Fprintf(cmd.OutOrStdout(), "rendered %d decisions to %s, %s and %s\n",
				res.Decisions, out.TopNPath, out.StatisticsPath, out.StatsJSONPath)
			return nil
		},
	}
}
