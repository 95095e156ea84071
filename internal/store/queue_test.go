package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentrain/mergetrain/internal/models"
)

func TestSubmitQueueEntry_DedupeRejectsDuplicate(t *testing.T) {
	db := newTestDB(t)
	// queue_entries.session_name references sessions(name), so the session
	// row has to exist before an entry for it can be inserted.
	require.NoError(t, CreateSession(db, &models.Session{Name: "feature-a", WorkspacePath: "/w"}))

	e := models.QueueEntry{SessionName: "feature-a", HeadSHA: "sha1", DedupeKey: "feature-a"}
	require.NoError(t, SubmitQueueEntry(db, &e))
	require.NotZero(t, e.ID)
	require.Equal(t, models.QueueStatusPending, e.Status)

	dup := models.QueueEntry{SessionName: "feature-a", HeadSHA: "sha2", DedupeKey: "feature-a"}
	err := SubmitQueueEntry(db, &dup)
	require.ErrorIs(t, err, ErrDuplicateSubmission)
}

func TestSubmitQueueEntry_ValidatesNameHeadSHAAndPriority(t *testing.T) {
	db := newTestDB(t)

	cases := []models.QueueEntry{
		{SessionName: "", HeadSHA: "deadbeef", DedupeKey: "d1"},
		{SessionName: "../traversal", HeadSHA: "deadbeef", DedupeKey: "d2"},
		{SessionName: "feature-a", HeadSHA: "ab", DedupeKey: "d3"},
		{SessionName: "feature-a", HeadSHA: "deadbeef", DedupeKey: "d4", Priority: -1},
		{SessionName: "feature-a", HeadSHA: "deadbeef", DedupeKey: "d5", Priority: 1001},
	}
	for _, e := range cases {
		err := SubmitQueueEntry(db, &e)
		require.Error(t, err, "%+v should be rejected", e)
		var validation *ValidationError
		require.ErrorAs(t, err, &validation, "%+v", e)
	}
}

func TestNextWithLock_ClaimsLowestPriorityValueOldest(t *testing.T) {
	db := newTestDB(t)

	// Lower Priority wins: 0 is highest, so "high" (Priority 1) is claimed
	// before "low" (Priority 10).
	require.NoError(t, CreateSession(db, &models.Session{Name: "high", WorkspacePath: "/w/high"}))
	require.NoError(t, CreateSession(db, &models.Session{Name: "low", WorkspacePath: "/w/low"}))
	high := models.QueueEntry{SessionName: "high", HeadSHA: "s1", DedupeKey: "high", Priority: 1}
	low := models.QueueEntry{SessionName: "low", HeadSHA: "s2", DedupeKey: "low", Priority: 10}
	require.NoError(t, SubmitQueueEntry(db, &high))
	require.NoError(t, SubmitQueueEntry(db, &low))

	claimed, err := NextWithLock(db, "agent-a")
	require.NoError(t, err)
	require.Equal(t, "high", claimed.SessionName)
	require.Equal(t, models.QueueStatusClaimed, claimed.Status)
	require.Equal(t, "agent-a", claimed.HoldingAgentID)

	_, err = NextWithLock(db, "agent-a")
	require.NoError(t, err)
}

func TestNextWithLock_EmptyQueue(t *testing.T) {
	db := newTestDB(t)
	_, err := NextWithLock(db, "agent-a")
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestTransitionQueueEntry_RejectsLeavingTerminal(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, CreateSession(db, &models.Session{Name: "feature-a", WorkspacePath: "/w"}))
	e := models.QueueEntry{SessionName: "feature-a", HeadSHA: "s1", DedupeKey: "feature-a"}
	require.NoError(t, SubmitQueueEntry(db, &e))

	require.NoError(t, TransitionQueueEntry(db, e.ID, models.QueueStatusMerged))

	err := TransitionQueueEntry(db, e.ID, models.QueueStatusPending)
	require.Error(t, err)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestReleaseProcessingSlot(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, CreateSession(db, &models.Session{Name: "feature-a", WorkspacePath: "/w"}))
	e := models.QueueEntry{SessionName: "feature-a", HeadSHA: "s1", DedupeKey: "feature-a"}
	require.NoError(t, SubmitQueueEntry(db, &e))

	claimed, err := NextWithLock(db, "agent-a")
	require.NoError(t, err)

	require.NoError(t, ReleaseProcessingSlot(db, claimed.ID, "agent-a"))

	got, err := GetQueueEntry(db, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, models.QueueStatusPending, got.Status)
	require.Empty(t, got.HoldingAgentID)
}

func TestReleaseProcessingSlot_WrongAgentIsNoop(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, CreateSession(db, &models.Session{Name: "feature-a", WorkspacePath: "/w"}))
	e := models.QueueEntry{SessionName: "feature-a", HeadSHA: "s1", DedupeKey: "feature-a"}
	require.NoError(t, SubmitQueueEntry(db, &e))
	claimed, err := NextWithLock(db, "agent-a")
	require.NoError(t, err)

	require.NoError(t, ReleaseProcessingSlot(db, claimed.ID, "agent-b"))

	got, err := GetQueueEntry(db, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, models.QueueStatusClaimed, got.Status, "a different agent cannot release a slot it doesn't hold")
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, CreateSession(db, &models.Session{Name: "a", WorkspacePath: "/w/a"}))
	require.NoError(t, CreateSession(db, &models.Session{Name: "b", WorkspacePath: "/w/b"}))
	require.NoError(t, SubmitQueueEntry(db, &models.QueueEntry{SessionName: "a", HeadSHA: "s1", DedupeKey: "a"}))
	require.NoError(t, SubmitQueueEntry(db, &models.QueueEntry{SessionName: "b", HeadSHA: "s2", DedupeKey: "b"}))

	stats, err := Stats(db)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Counts[models.QueueStatusPending])
}

func TestCleanupQueueEntries(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, CreateSession(db, &models.Session{Name: "a", WorkspacePath: "/w/a"}))
	e := models.QueueEntry{SessionName: "a", HeadSHA: "s1", DedupeKey: "a"}
	require.NoError(t, SubmitQueueEntry(db, &e))
	require.NoError(t, TransitionQueueEntry(db, e.ID, models.QueueStatusMerged))

	removed, err := CleanupQueueEntries(db, -time.Second) // everything is now "older" than -1s
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	entries, err := ListQueueEntries(db)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGetQueueEntryByWorkspace(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, CreateSession(db, &models.Session{Name: "feature-a", WorkspacePath: "/w"}))
	e := models.QueueEntry{SessionName: "feature-a", HeadSHA: "s1", DedupeKey: "feature-a"}
	require.NoError(t, SubmitQueueEntry(db, &e))

	got, err := GetQueueEntryByWorkspace(db, "feature-a")
	require.NoError(t, err)
	require.Equal(t, e.ID, got.ID)
}
