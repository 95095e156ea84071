package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/output"
	"github.com/agentrain/mergetrain/internal/store"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "create, list, and restore point-in-time session checkpoints",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newCheckpointCreateCmd())
	cmd.AddCommand(newCheckpointListCmd())
	cmd.AddCommand(newCheckpointRestoreCmd())
	return cmd
}

func newCheckpointCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <session-name>",
		Short: "record a checkpoint for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, _ := cmd.Flags().GetString("description")
			snapshotPath, _ := cmd.Flags().GetString("snapshot-path")
			sizeBytes, _ := cmd.Flags().GetInt64("size-bytes")

			cp := models.Checkpoint{
				Description:  desc,
				SessionName:  args[0],
				SnapshotPath: snapshotPath,
			}
			if err := withDB(func(db *DB) error {
				return store.CreateCheckpoint(db, &cp, sizeBytes)
			}); err != nil {
				return err
			}
			return output.PrintSuccess(cp)
		},
	}
	cmd.Flags().String("description", "", "human-readable checkpoint description")
	cmd.Flags().String("snapshot-path", "", "path to the snapshot bundle, if any")
	cmd.Flags().Int64("size-bytes", 0, "post-compression snapshot size, for the metadata-only cap")
	return cmd
}

func newCheckpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list checkpoints, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var checkpoints []models.Checkpoint
			if err := withDB(func(db *DB) error {
				var err error
				checkpoints, err = store.ListCheckpoints(db)
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(checkpoints)
		},
	}
}

func newCheckpointRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "re-affirm a session against a recorded checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var cp *models.Checkpoint
			if err := withDB(func(db *DB) error {
				var err error
				cp, err = store.GetCheckpoint(db, args[0])
				if err != nil {
					return err
				}
				if cp.SessionName == "" {
					return nil
				}
				sess, err := store.GetSession(db, cp.SessionName)
				if err != nil {
					return err
				}
				if sess.WorkspaceState == models.WorkspaceStateSyncing {
					return store.TransitionSession(db, cp.SessionName, models.WorkspaceStateReady)
				}
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(cp)
		},
	}
}
