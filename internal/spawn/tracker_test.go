package spawn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentrain/mergetrain/internal/adapters"
)

// shrinkTerminateGrace keeps rollback tests from sleeping a real 500ms.
func shrinkTerminateGrace(t *testing.T) {
	t.Helper()
	orig := terminateGrace
	terminateGrace = time.Millisecond
	t.Cleanup(func() { terminateGrace = orig })
}

func TestTracker_NoRollbackWhenNothingCompleted(t *testing.T) {
	sc := adapters.NewFakeSourceControl("/repo")
	beads := adapters.NewFakeBeadTracker("bd-1")
	proc := adapters.NewFakeProcessSpawner()
	tr := NewTracker("feature-a", "bd-1", sc, beads, proc)

	require.False(t, tr.NeedsRollback())
	require.NoError(t, tr.Rollback(context.Background()))
}

func TestTracker_RollbackUndoesAllCompletedPhases(t *testing.T) {
	shrinkTerminateGrace(t)
	sc := adapters.NewFakeSourceControl("/repo")
	beads := adapters.NewFakeBeadTracker("bd-1")
	proc := adapters.NewFakeProcessSpawner()

	_, err := sc.WorkspaceCreate(context.Background(), "feature-a", "main")
	require.NoError(t, err)
	require.NoError(t, beads.SetStatus(context.Background(), "bd-1", adapters.BeadStatusInProgress))
	pid, err := proc.Spawn(context.Background(), "/repo/workspaces/feature-a", nil, nil)
	require.NoError(t, err)

	tr := NewTracker("feature-a", "bd-1", sc, beads, proc)
	tr.MarkWorkspaceCreated("/repo/workspaces/feature-a")
	tr.MarkBeadStatusUpdated()
	tr.MarkAgentSpawned(pid)

	require.True(t, tr.NeedsRollback())
	require.Len(t, tr.CompletedPhases(), 3)

	require.NoError(t, tr.Rollback(context.Background()))

	require.False(t, proc.Alive[pid])
	require.Equal(t, []adapters.TerminateCall{{PID: pid, Grace: true}, {PID: pid, Grace: false}}, proc.Calls,
		"rollback should send a graceful terminate before forcing the process down")
	bead, err := beads.Get(context.Background(), "bd-1")
	require.NoError(t, err)
	require.Equal(t, adapters.BeadStatusOpen, bead.Status)
	list, err := sc.WorkspaceList(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestTracker_RollbackForcesTerminationWhenProcessIgnoresGraceful(t *testing.T) {
	shrinkTerminateGrace(t)
	sc := adapters.NewFakeSourceControl("/repo")
	beads := adapters.NewFakeBeadTracker("bd-1")
	proc := adapters.NewFakeProcessSpawner()
	proc.IgnoresGraceful = true

	pid, err := proc.Spawn(context.Background(), "/repo/workspaces/feature-a", nil, nil)
	require.NoError(t, err)

	tr := NewTracker("feature-a", "bd-1", sc, beads, proc)
	tr.MarkAgentSpawned(pid)

	require.NoError(t, tr.Rollback(context.Background()))
	require.False(t, proc.Alive[pid], "the forceful terminate should still kill a process that ignored the graceful one")
}

func TestTracker_RollbackPartialPhases(t *testing.T) {
	sc := adapters.NewFakeSourceControl("/repo")
	beads := adapters.NewFakeBeadTracker("bd-1")
	proc := adapters.NewFakeProcessSpawner()

	_, err := sc.WorkspaceCreate(context.Background(), "feature-a", "main")
	require.NoError(t, err)

	tr := NewTracker("feature-a", "bd-1", sc, beads, proc)
	tr.MarkWorkspaceCreated("/repo/workspaces/feature-a")

	require.NoError(t, tr.Rollback(context.Background()))

	list, err := sc.WorkspaceList(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestTracker_RollbackContinuesCompensationsAfterTerminateError(t *testing.T) {
	shrinkTerminateGrace(t)
	sc := adapters.NewFakeSourceControl("/repo")
	beads := adapters.NewFakeBeadTracker("bd-1")
	proc := adapters.NewFakeProcessSpawner()
	proc.TerminateErr = context.Canceled

	_, err := sc.WorkspaceCreate(context.Background(), "feature-a", "main")
	require.NoError(t, err)
	require.NoError(t, beads.SetStatus(context.Background(), "bd-1", adapters.BeadStatusInProgress))

	tr := NewTracker("feature-a", "bd-1", sc, beads, proc)
	tr.MarkWorkspaceCreated("/repo/workspaces/feature-a")
	tr.MarkBeadStatusUpdated()
	tr.MarkAgentSpawned(1)

	// Rollback still reports the terminate failure, but the bead reset and
	// workspace abandon compensations ran anyway — a failed terminate does
	// not short-circuit the rest of the rollback.
	err = tr.Rollback(context.Background())
	require.Error(t, err)

	bead, err := beads.Get(context.Background(), "bd-1")
	require.NoError(t, err)
	require.Equal(t, adapters.BeadStatusOpen, bead.Status)
	list, err := sc.WorkspaceList(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}
