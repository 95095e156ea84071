package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentrain/mergetrain/internal/cleaner"
	"github.com/agentrain/mergetrain/internal/output"
)

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "run one orphan/stale-entry sweep of the Periodic Cleaner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			cfg := cleaner.DefaultConfig()
			cfg.DryRun = dryRun

			var report any
			if err := withDB(func(db *DB) error {
				r, err := cleaner.Sweep(context.Background(), db, nil, nil, cfg)
				if err != nil {
					return err
				}
				report = r
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(report)
		},
	}
	cmd.Flags().Bool("dry-run", false, "classify orphans without deleting them")
	return cmd
}
