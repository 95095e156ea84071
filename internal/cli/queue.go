package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/output"
	"github.com/agentrain/mergetrain/internal/queue"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "inspect and drive the merge queue",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newQueueSubmitCmd())
	cmd.AddCommand(newQueueNextCmd())
	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueStatsCmd())
	return cmd
}

func newQueueSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <session-name>",
		Short: "submit a session's head to the merge queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			headSHA, _ := cmd.Flags().GetString("head-sha")
			dedupeKey, _ := cmd.Flags().GetString("dedupe-key")
			priority, _ := cmd.Flags().GetInt("priority")
			if headSHA == "" {
				return cmdErr(errRequired("--head-sha is required"))
			}
			if dedupeKey == "" {
				dedupeKey = args[0]
			}

			entry := models.QueueEntry{
				SessionName: args[0],
				HeadSHA:     headSHA,
				DedupeKey:   dedupeKey,
				Priority:    priority,
			}
			if err := withDB(func(db *DB) error {
				return queue.Submit(db, &entry)
			}); err != nil {
				return err
			}
			return output.PrintSuccess(entry)
		},
	}
	cmd.Flags().String("head-sha", "", "commit SHA to merge (required)")
	cmd.Flags().String("dedupe-key", "", "dedupe key (defaults to session name)")
	cmd.Flags().Int("priority", 0, "queue priority")
	return cmd
}

func newQueueNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "claim the head entry under the singleton processing lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agentID, err := requireAgent(cmd)
			if err != nil {
				return cmdErr(err)
			}

			var entry *models.QueueEntry
			if err := withDB(func(db *DB) error {
				var err error
				entry, err = queue.Next(db, agentID)
				return err
			}); err != nil {
				return err
			}
			if entry == nil {
				return output.PrintSuccess(nil)
			}
			return output.PrintSuccess(entry)
		},
	}
}

func newQueueListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every queue entry",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var entries []models.QueueEntry
			if err := withDB(func(db *DB) error {
				var err error
				entries, err = queue.List(db)
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(entries)
		},
	}
}

func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "summarize queue entry counts by status",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var stats any
			if err := withDB(func(db *DB) error {
				s, err := queue.Stats(db)
				if err != nil {
					return err
				}
				stats = s.Counts
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(stats)
		},
	}
}
