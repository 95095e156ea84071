package cleaner

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentrain/mergetrain/internal/adapters"
	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.InitDBWithPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createReadySession(t *testing.T, db *sql.DB, name string) {
	t.Helper()
	s := models.Session{Name: name, WorkspacePath: "/w/" + name}
	require.NoError(t, store.CreateSession(db, &s))
	require.NoError(t, store.TransitionSession(db, name, models.WorkspaceStateSyncing))
	require.NoError(t, store.TransitionSession(db, name, models.WorkspaceStateReady))
}

// backdateSession rewrites a session's updated_at directly, simulating age
// without sleeping in the test.
func backdateSession(db *sql.DB, name string, age time.Duration) error {
	_, err := db.Exec(`UPDATE sessions SET updated_at = ? WHERE name = ?`,
		time.Now().UTC().Add(-age), name)
	return err
}

func TestSweep_MissingWorkspaceIsCleanedEvenIfRecent(t *testing.T) {
	db := newTestDB(t)
	createReadySession(t, db, "feature-a")

	sc := adapters.NewFakeSourceControl("/repo")
	cfg := DefaultConfig()

	report, err := Sweep(context.Background(), db, sc, nil, cfg)
	require.NoError(t, err)
	require.Contains(t, report.CleanedSessions, "feature-a")

	_, err = store.GetSession(db, "feature-a")
	require.Error(t, err)
}

func TestSweep_SkipsActiveBead(t *testing.T) {
	db := newTestDB(t)
	s := models.Session{Name: "feature-a", WorkspacePath: "/w", Metadata: models.SessionMeta{BeadID: "bd-1"}}
	require.NoError(t, store.CreateSession(db, &s))
	require.NoError(t, store.TransitionSession(db, "feature-a", models.WorkspaceStateSyncing))
	require.NoError(t, store.TransitionSession(db, "feature-a", models.WorkspaceStateReady))

	// The workspace IS registered (present, not missing) and recently
	// touched, so the only reason this is a candidate at all is the
	// backdated updated_at below; an active bead must still skip it even
	// though the workspace exists, per the literal busy(age, active bead)
	// case in scenario S6.
	sc := adapters.NewFakeSourceControl("/repo")
	_, err := sc.WorkspaceCreate(context.Background(), "feature-a", "main")
	require.NoError(t, err)
	require.NoError(t, backdateSession(db, "feature-a", 3*time.Hour))

	beads := adapters.NewFakeBeadTracker("bd-1")
	require.NoError(t, beads.SetStatus(context.Background(), "bd-1", adapters.BeadStatusInProgress))

	cfg := DefaultConfig()
	cfg.OrphanAge = 2 * time.Hour

	report, err := Sweep(context.Background(), db, sc, beads, cfg)
	require.NoError(t, err)
	require.Empty(t, report.CleanedSessions)
	require.Equal(t, SkipReasonActiveBead, report.SkippedSessions["feature-a"])
}

// TestSweep_S6Classification reproduces the literal orphan-cleanup scenario:
// four sessions (recent/untouched, old/cleanable, missing/cleanable,
// busy/skipped) swept together with age_threshold=2h.
func TestSweep_S6Classification(t *testing.T) {
	db := newTestDB(t)

	createReadySession(t, db, "recent")
	createReadySession(t, db, "old")
	require.NoError(t, backdateSession(db, "old", 3*time.Hour))
	createReadySession(t, db, "missing")
	require.NoError(t, backdateSession(db, "missing", time.Hour))
	busy := models.Session{Name: "busy", WorkspacePath: "/w/busy", Metadata: models.SessionMeta{BeadID: "bd-1"}}
	require.NoError(t, store.CreateSession(db, &busy))
	require.NoError(t, store.TransitionSession(db, "busy", models.WorkspaceStateSyncing))
	require.NoError(t, store.TransitionSession(db, "busy", models.WorkspaceStateReady))
	require.NoError(t, backdateSession(db, "busy", 3*time.Hour))

	sc := adapters.NewFakeSourceControl("/repo")
	for _, name := range []string{"recent", "old", "busy"} {
		_, err := sc.WorkspaceCreate(context.Background(), name, "main")
		require.NoError(t, err)
	}
	// "missing" is deliberately never created in sc, so it reads as absent.

	beads := adapters.NewFakeBeadTracker("bd-1")
	require.NoError(t, beads.SetStatus(context.Background(), "bd-1", adapters.BeadStatusInProgress))

	cfg := DefaultConfig()
	cfg.OrphanAge = 2 * time.Hour

	report, err := Sweep(context.Background(), db, sc, beads, cfg)
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"old", "missing"}, report.CleanedSessions)
	require.Equal(t, SkipReasonActiveBead, report.SkippedSessions["busy"])
	require.NotContains(t, report.SkippedSessions, "recent")
	require.NotContains(t, report.CleanedSessions, "recent")
}

func TestSweep_DryRunDoesNotDelete(t *testing.T) {
	db := newTestDB(t)
	createReadySession(t, db, "feature-a")

	sc := adapters.NewFakeSourceControl("/repo")
	cfg := DefaultConfig()
	cfg.DryRun = true

	report, err := Sweep(context.Background(), db, sc, nil, cfg)
	require.NoError(t, err)
	require.Contains(t, report.CleanedSessions, "feature-a")
	require.True(t, report.DryRun)

	_, err = store.GetSession(db, "feature-a")
	require.NoError(t, err, "dry run must not actually delete the session")
}

func TestSweep_RemovesStaleQueueEntriesAndAgents(t *testing.T) {
	db := newTestDB(t)
	createReadySession(t, db, "feature-a") // queue_entries.session_name references sessions(name)
	e := models.QueueEntry{SessionName: "feature-a", HeadSHA: "s1", DedupeKey: "feature-a"}
	require.NoError(t, store.SubmitQueueEntry(db, &e))
	require.NoError(t, store.TransitionQueueEntry(db, e.ID, models.QueueStatusMerged))
	require.NoError(t, store.RegisterAgent(db, "agent-old"))

	cfg := DefaultConfig()
	cfg.QueueMaxAge = -time.Second
	cfg.AgentMaxAge = -time.Second

	report, err := Sweep(context.Background(), db, nil, nil, cfg)
	require.NoError(t, err)
	require.EqualValues(t, 1, report.RemovedQueueEntries)
	require.Equal(t, 1, report.RemovedStaleAgents)
}

func TestNewScheduler_StartAndStop(t *testing.T) {
	db := newTestDB(t)
	sched := NewScheduler(db, nil, nil, DefaultConfig())

	require.NoError(t, sched.Start("@every 1h"))
	sched.Stop()
}
