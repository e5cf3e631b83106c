package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPublishCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload the store and reports, mirror decisions and announce the run",
		Long: `Uploads the store file and rendered reports to the configured blob store,
upserts every decision into Postgres when publish.postgres.dsn is set and
publishes a notification when publish.pubsub.topic is set. Any failure
aborts the command.

With --dry-run the uploads and notification stay in memory and the
Postgres mirror is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			pub, err := a.Publisher(cmd.Context(), dryRun)
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			res, err := pub.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintln(out, "dry run: nothing was uploaded")
			}
			for _, u := range res.Uploaded {
				fmt.Fprintf(out, "%s -> %s\n", u.Name, u.URI)
			}
			if res.Mirrored > 0 {
				fmt.Fprintf(out, "mirrored %d decisions\n", res.Mirrored)
			}
			if res.MessageID != "" {
				fmt.Fprintf(out, "announced as message %s\n", res.MessageID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve artifacts and build the notification without contacting any target")
	return cmd
}
