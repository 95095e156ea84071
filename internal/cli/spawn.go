package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentrain/mergetrain/internal/adapters"
	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/output"
	"github.com/agentrain/mergetrain/internal/signalctl"
	"github.com/agentrain/mergetrain/internal/spawn"
	"github.com/agentrain/mergetrain/internal/store"
)

// cancelledError carries the exit code a SIGINT/SIGTERM during a spawn
// should produce (130/143), bypassing the generic error classification in
// ExitCodeFor.
type cancelledError struct {
	reason signalctl.Reason
}

func (e *cancelledError) Error() string {
	return fmt.Sprintf("spawn cancelled by %s", e.reason)
}

func (e *cancelledError) ExitCode() int { return e.reason.ExitCode() }

// newSpawnCmd drives the full transactional spawn pipeline: validate, create
// the workspace row, invoke the source-control adapter, mark the bead
// in_progress, launch the agent process, and record each phase in a
// spawn.Tracker so any failure rolls back everything completed so far.
func newSpawnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spawn <session-name>",
		Short: "create a workspace, mark its bead in progress, and launch an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			beadID, _ := cmd.Flags().GetString("bead-id")
			parent, _ := cmd.Flags().GetString("parent")
			base, _ := cmd.Flags().GetString("base")
			agentCmd, _ := cmd.Flags().GetString("command")

			watchCtx, cancelWatch := context.WithCancel(context.Background())
			defer cancelWatch()
			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
			shutdown, stop := signalctl.Watch(watchCtx, logger)
			defer stop()

			sc := adapters.NewFakeSourceControl(mustGetwd())
			beads := adapters.NewFakeBeadTracker(beadID)
			proc := adapters.NewFakeProcessSpawner()

			tracker := spawn.NewTracker(name, beadID, sc, beads, proc)

			type pipelineResult struct {
				session models.Session
				err     error
			}
			resultCh := make(chan pipelineResult, 1)

			go func() {
				ctx := context.Background()
				var session models.Session
				runErr := withDB(func(db *DB) error {
					path, err := sc.WorkspaceCreate(ctx, name, base)
					if err != nil {
						return err
					}
					tracker.MarkWorkspaceCreated(path)

					session = models.Session{
						Name:          name,
						WorkspacePath: path,
						ParentSession: parent,
						Metadata:      models.SessionMeta{BeadID: beadID},
						DedupeKey:     uuid.NewString(),
					}
					if err := store.CreateSession(db, &session); err != nil {
						return err
					}
					if err := store.TransitionSession(db, name, models.WorkspaceStateSyncing); err != nil {
						return err
					}

					if beadID != "" {
						if err := beads.SetStatus(ctx, beadID, adapters.BeadStatusInProgress); err != nil {
							return err
						}
						tracker.MarkBeadStatusUpdated()
					}

					pid, err := proc.Spawn(ctx, path, os.Environ(), []string{agentCmd})
					if err != nil {
						return err
					}
					tracker.MarkAgentSpawned(pid)

					if err := store.TransitionSession(db, name, models.WorkspaceStateReady); err != nil {
						return err
					}
					ready, err := store.GetSession(db, name)
					if err != nil {
						return err
					}
					session = *ready
					return nil
				})
				resultCh <- pipelineResult{session: session, err: runErr}
			}()

			var session models.Session
			var runErr error
			select {
			case res := <-resultCh:
				session, runErr = res.session, res.err
			case sig := <-shutdown:
				cancelWatch()
				res := <-resultCh // the in-flight store call can't be preempted; wait for it to land
				runErr = &cancelledError{reason: sig.Reason}
				if res.err != nil {
					runErr = res.err
				}
			}

			if runErr != nil {
				if rbErr := tracker.Rollback(context.Background()); rbErr != nil {
					return cmdErr(rbErr)
				}
				return runErr
			}

			return output.PrintSuccess(session)
		},
	}
	cmd.Flags().String("bead-id", "", "bead/issue id this session works")
	cmd.Flags().String("parent", "", "parent session, for a stacked spawn")
	cmd.Flags().String("base", "", "base revision to branch the workspace from")
	cmd.Flags().String("command", "", "agent command to launch in the new workspace")
	return cmd
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
