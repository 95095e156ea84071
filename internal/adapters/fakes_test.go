package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeSourceControl_CreateAbandonList(t *testing.T) {
	sc := NewFakeSourceControl("/repo")

	path, err := sc.WorkspaceCreate(context.Background(), "feature-a", "main")
	require.NoError(t, err)
	require.Equal(t, "/repo/workspaces/feature-a", path)

	_, err = sc.WorkspaceCreate(context.Background(), "feature-a", "main")
	require.Error(t, err)

	list, err := sc.WorkspaceList(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"feature-a"}, list)

	require.NoError(t, sc.WorkspaceAbandon(context.Background(), "feature-a"))
	err = sc.WorkspaceAbandon(context.Background(), "feature-a")
	require.Error(t, err)
}

func TestFakeSourceControl_RebaseDefaultAndScripted(t *testing.T) {
	sc := NewFakeSourceControl("/repo")

	result, err := sc.Rebase(context.Background(), "feature-a", "main")
	require.NoError(t, err)
	require.True(t, result.OK)

	sc.RebaseFunc = func(workspace, onto string) (RebaseResult, error) {
		return RebaseResult{OK: false, Conflicts: []string{"a.go"}}, nil
	}
	result, err = sc.Rebase(context.Background(), "feature-a", "main")
	require.NoError(t, err)
	require.False(t, result.OK)
	require.Equal(t, []string{"a.go"}, result.Conflicts)
}

func TestFakeBeadTracker(t *testing.T) {
	b := NewFakeBeadTracker("bd-1", "bd-2")

	bead, err := b.Get(context.Background(), "bd-1")
	require.NoError(t, err)
	require.Equal(t, BeadStatusOpen, bead.Status)

	require.NoError(t, b.SetStatus(context.Background(), "bd-1", BeadStatusInProgress))
	bead, err = b.Get(context.Background(), "bd-1")
	require.NoError(t, err)
	require.Equal(t, BeadStatusInProgress, bead.Status)

	ready, err := b.ListReady(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"bd-2"}, ready)

	_, err = b.Get(context.Background(), "missing")
	require.Error(t, err)
}

func TestFakeProcessSpawner(t *testing.T) {
	p := NewFakeProcessSpawner()

	pid1, err := p.Spawn(context.Background(), "/tmp", nil, nil)
	require.NoError(t, err)
	pid2, err := p.Spawn(context.Background(), "/tmp", nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, pid1, pid2)
	require.True(t, p.Alive[pid1])

	require.NoError(t, p.Terminate(context.Background(), pid1, true))
	require.False(t, p.Alive[pid1])
	require.Equal(t, []TerminateCall{{PID: pid1, Grace: true}}, p.Calls)
}

func TestFakeProcessSpawner_IgnoresGracefulUntilForced(t *testing.T) {
	p := NewFakeProcessSpawner()
	p.IgnoresGraceful = true

	pid, err := p.Spawn(context.Background(), "/tmp", nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.Terminate(context.Background(), pid, true))
	require.True(t, p.Alive[pid], "a graceful terminate should not kill a process that ignores it")

	require.NoError(t, p.Terminate(context.Background(), pid, false))
	require.False(t, p.Alive[pid], "a forceful terminate always kills the process")
}

func TestFakeTerminalMultiplexer(t *testing.T) {
	m := NewFakeTerminalMultiplexer()

	require.NoError(t, m.NewTab("feature-a", "/tmp"))
	require.NoError(t, m.FocusTab("feature-a"))
	require.Equal(t, []string{"feature-a"}, m.NewTabs)
	require.Equal(t, []string{"feature-a"}, m.FocusCalls)

	m.Err = context.Canceled
	require.Error(t, m.NewTab("x", "/tmp"))
	require.Error(t, m.FocusTab("x"))
}
