package recovery

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrain/mergetrain/internal/adapters"
	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/store"
)

func newTestDBFile(t *testing.T) (*sql.DB, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "mergetrain.db")
	db, err := store.InitDBWithPath(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func TestDoctor_HealthyStoreNoStuckSessions(t *testing.T) {
	db, path := newTestDBFile(t)

	report, err := Doctor(context.Background(), db, path, nil, nil)
	require.NoError(t, err)
	require.False(t, report.CorruptionDetected)
	require.Empty(t, report.StuckSessions)
}

func TestCheckHeader_RejectsNonSQLiteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bogus.db")
	require.NoError(t, os.WriteFile(path, []byte("not a sqlite file"), 0o600))

	require.Error(t, checkHeader(path))
}

func TestCheckHeader_AcceptsRealStore(t *testing.T) {
	_, path := newTestDBFile(t)
	require.NoError(t, checkHeader(path))
}

func TestDoctor_StuckSessionDeletedUnderDefaultPolicy(t *testing.T) {
	db, path := newTestDBFile(t)

	s := models.Session{Name: "stuck-one", WorkspacePath: "/w"}
	require.NoError(t, store.CreateSession(db, &s))

	report, err := Doctor(context.Background(), db, path, nil, nil)
	require.NoError(t, err)
	require.Contains(t, report.StuckSessions, "stuck-one")
	require.True(t, report.StuckDeleted)

	_, err = store.GetSession(db, "stuck-one")
	require.Error(t, err)
}

func TestDoctor_DetectsMissingWorkspaceDrift(t *testing.T) {
	db, path := newTestDBFile(t)

	s := models.Session{Name: "feature-a", WorkspacePath: "/w"}
	require.NoError(t, store.CreateSession(db, &s))
	require.NoError(t, store.TransitionSession(db, "feature-a", models.WorkspaceStateSyncing))
	require.NoError(t, store.TransitionSession(db, "feature-a", models.WorkspaceStateReady))

	sc := adapters.NewFakeSourceControl("/repo")
	beads := adapters.NewFakeBeadTracker()

	report, err := Doctor(context.Background(), db, path, sc, beads)
	require.NoError(t, err)
	require.Contains(t, report.DriftedWorkspaces, "feature-a")
}

func TestDoctor_NoDriftWhenWorkspaceLive(t *testing.T) {
	db, path := newTestDBFile(t)

	s := models.Session{Name: "feature-a", WorkspacePath: "/w"}
	require.NoError(t, store.CreateSession(db, &s))
	require.NoError(t, store.TransitionSession(db, "feature-a", models.WorkspaceStateSyncing))
	require.NoError(t, store.TransitionSession(db, "feature-a", models.WorkspaceStateReady))

	sc := adapters.NewFakeSourceControl("/repo")
	_, err := sc.WorkspaceCreate(context.Background(), "feature-a", "main")
	require.NoError(t, err)
	beads := adapters.NewFakeBeadTracker()

	report, err := Doctor(context.Background(), db, path, sc, beads)
	require.NoError(t, err)
	require.NotContains(t, report.DriftedWorkspaces, "feature-a")
}
