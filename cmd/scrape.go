package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch new decisions, recount citations and render the top-N report",
		Long: `Restores the decision store, walks the configured listing pages, downloads
and parses new decision documents, recounts citations and persists the
store atomically. Individual pages or documents that fail are logged and
skipped; the command only fails when the store or a report cannot be
written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.Runner(true).Scrape(cmd.Context())
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			a.Logger().Info("scrape complete",
				zap.String("run_id", res.RunID),
				zap.Int("decisions", res.Decisions),
				zap.Int("inserted", res.Merge.Inserted),
				zap.Int("updated", res.Merge.Updated),
				zap.Int("failures", len(res.Failures)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d decisions (%d new, %d updated, %d citation changes, %d skipped units)\n",
				res.RunID, res.Decisions, res.Merge.Inserted, res.Merge.Updated, res.Citations.Updated, len(res.Failures))
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "override source.max_pages for this run")
	return cmd
}
