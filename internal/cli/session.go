package cli

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentrain/mergetrain/internal/app"
	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/output"
	"github.com/agentrain/mergetrain/internal/store"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "initialize the coordination store",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDB(func(_ *DB) error {
				return output.PrintSuccess(map[string]bool{"initialized": true})
			})
		},
	}
}

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <session-name>",
		Short: "register a new session for a workspace not yet queued",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			parent, _ := cmd.Flags().GetString("parent")
			beadID, _ := cmd.Flags().GetString("bead-id")

			var session models.Session
			if err := withDB(func(db *DB) error {
				repoRoot, err := os.Getwd()
				if err != nil {
					return err
				}
				path, err := app.ResolveWorkspacePath(repoRoot, name)
				if err != nil {
					return err
				}
				session = models.Session{
					Name:          name,
					WorkspacePath: path,
					ParentSession: parent,
					Metadata:      models.SessionMeta{BeadID: beadID},
					DedupeKey:     uuid.NewString(),
				}
				return store.CreateSession(db, &session)
			}); err != nil {
				return err
			}
			return output.PrintSuccess(session)
		},
	}
	cmd.Flags().String("parent", "", "parent session name, for a stacked session")
	cmd.Flags().String("bead-id", "", "associated bead/issue id")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <session-name>",
		Short: "delete a session and its transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := withDB(func(db *DB) error {
				return store.DeleteSession(db, args[0])
			}); err != nil {
				return err
			}
			return output.PrintSuccess(map[string]string{"removed": args[0]})
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list all sessions",
		RunE: func(_ *cobra.Command, _ []string) error {
			var sessions []models.Session
			if err := withDB(func(db *DB) error {
				var err error
				sessions, err = store.ListSessions(db)
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(sessions)
		},
	}
}

func newWorkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work <session-name>",
		Short: "move a session's workspace from created to syncing to ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			if err := withDB(func(db *DB) error {
				if err := store.TransitionSession(db, name, models.WorkspaceStateSyncing); err != nil {
					return err
				}
				return store.TransitionSession(db, name, models.WorkspaceStateReady)
			}); err != nil {
				return err
			}
			return output.PrintSuccess(map[string]string{"session": name, "workspace_state": string(models.WorkspaceStateReady)})
		},
	}
}

func newDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <session-name>",
		Short: "submit a ready session's head to the merge queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			headSHA, _ := cmd.Flags().GetString("head-sha")
			priority, _ := cmd.Flags().GetInt("priority")

			var entry models.QueueEntry
			if err := withDB(func(db *DB) error {
				if err := store.TransitionSession(db, name, models.WorkspaceStateMerging); err != nil {
					return err
				}
				sess, err := store.GetSession(db, name)
				if err != nil {
					return err
				}
				entry = models.QueueEntry{
					SessionName:     name,
					BeadID:          sess.Metadata.BeadID,
					Priority:        priority,
					DedupeKey:       sess.DedupeKey,
					HeadSHA:         headSHA,
					ParentWorkspace: sess.ParentSession,
				}
				return store.SubmitQueueEntry(db, &entry)
			}); err != nil {
				return err
			}
			return output.PrintSuccess(entry)
		},
	}
	cmd.Flags().String("head-sha", "", "the commit SHA to merge (required)")
	cmd.Flags().Int("priority", 0, "queue priority, 0 is claimed first")
	return cmd
}

func newAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort <session-name>",
		Short: "abandon a session's workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			if err := withDB(func(db *DB) error {
				sess, err := store.GetSession(db, name)
				if err != nil {
					return err
				}
				if sess.WorkspaceState.IsTerminal() {
					return nil
				}
				return store.TransitionSession(db, name, models.WorkspaceStateAbandoned)
			}); err != nil {
				return err
			}
			return output.PrintSuccess(map[string]string{"session": name, "workspace_state": string(models.WorkspaceStateAbandoned)})
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <session-name>",
		Short: "cycle a ready session's workspace through syncing and back to ready to pick up an upstream rebase",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			if err := withDB(func(db *DB) error {
				if err := store.TransitionSession(db, name, models.WorkspaceStateSyncing); err != nil {
					return err
				}
				return store.TransitionSession(db, name, models.WorkspaceStateReady)
			}); err != nil {
				return err
			}
			return output.PrintSuccess(map[string]string{"session": name, "workspace_state": string(models.WorkspaceStateReady)})
		},
	}
}
