// Package queue implements the merge-train priority queue: submission with
// dedupe, claiming the head entry under the singleton processing lock, and
// the status transitions that drive an entry from Pending through to a
// terminal state.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/agentrain/mergetrain/internal/locks"
	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/store"
)

// Submit enqueues a new entry. Returns store.ErrDuplicateSubmission if a
// non-terminal entry already exists for the same dedupe key; the existing
// entry is left unchanged. A dedupe key whose entries are all terminal gets
// a new Pending entry with its own id; terminal entries are not reset.
func Submit(db *sql.DB, e *models.QueueEntry) error {
	return store.SubmitQueueEntry(db, e)
}

// processingLockTTL bounds how long one agent may hold the singleton
// processing lock before ReapExpired frees it for another claimant.
const processingLockTTL = 30 * time.Second

// Next acquires the singleton processing lock (models.ProcessingLockKey)
// and, while holding it, claims the head Pending entry. The lock is
// released before returning in all cases — success, empty queue, or error
// — since a held claim is recorded on the entry itself via holding_agent_id,
// not by keeping the processing lock.
func Next(db *sql.DB, agentID string) (*models.QueueEntry, error) {
	if _, err := locks.Lock(context.Background(), db, models.ProcessingLockKey, agentID, processingLockTTL); err != nil {
		return nil, err
	}
	defer func() { _ = locks.Unlock(db, models.ProcessingLockKey, agentID) }()

	entry, err := store.NextWithLock(db, agentID)
	if errors.Is(err, store.ErrQueueEmpty) {
		return nil, nil
	}
	return entry, err
}

// NextWithLockBounded wraps Next with bounded exponential-backoff retry so
// callers never hand-roll their own spin loop while waiting for the
// processing lock to free up (the Open Question 3 resolution): it retries
// only on lock contention, not on an empty queue or a domain error.
func NextWithLockBounded(ctx context.Context, db *sql.DB, agentID string, maxWait time.Duration) (*models.QueueEntry, error) {
	b := backoffPolicy(maxWait)
	deadline := time.Now().Add(maxWait)

	for {
		entry, err := tryNext(db, agentID)
		if err == nil {
			return entry, nil
		}

		var contention *store.LockContentionError
		if !errors.As(err, &contention) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.next()):
		}
	}
}

func tryNext(db *sql.DB, agentID string) (*models.QueueEntry, error) {
	if _, err := locks.Lock(context.Background(), db, models.ProcessingLockKey, agentID, processingLockTTL); err != nil {
		return nil, err
	}
	defer func() { _ = locks.Unlock(db, models.ProcessingLockKey, agentID) }()

	entry, err := store.NextWithLock(db, agentID)
	if errors.Is(err, store.ErrQueueEmpty) {
		return nil, nil
	}
	return entry, err
}

// backoffState is a minimal exponential backoff sequence; intentionally
// simple since the full cenkalti/backoff.ExponentialBackOff lives in
// internal/store.RetryWithBackoff for the database retry path — this one
// only paces lock-acquisition polling.
type backoffState struct {
	current time.Duration
	max     time.Duration
}

func backoffPolicy(maxWait time.Duration) *backoffState {
	return &backoffState{current: 25 * time.Millisecond, max: maxWait}
}

func (b *backoffState) next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > 500*time.Millisecond {
		b.current = 500 * time.Millisecond
	}
	return d
}

// Transition moves an entry to a new status.
func Transition(db *sql.DB, id int64, to models.QueueStatus) error {
	return store.TransitionQueueEntry(db, id, to)
}

// MarkProcessing transitions a Claimed entry to Processing.
func MarkProcessing(db *sql.DB, id int64) error {
	return store.TransitionQueueEntry(db, id, models.QueueStatusProcessing)
}

// MarkCompleted transitions an entry to the generic Completed terminal.
func MarkCompleted(db *sql.DB, id int64) error {
	return store.TransitionQueueEntry(db, id, models.QueueStatusCompleted)
}

// MarkMerged transitions an entry to the Merged terminal (completed via an
// actual merge).
func MarkMerged(db *sql.DB, id int64) error {
	return store.TransitionQueueEntry(db, id, models.QueueStatusMerged)
}

// MarkFailed transitions an entry to Failed (retryable) or, once the
// caller has exhausted its attempt budget, to FailedTerminal.
func MarkFailed(db *sql.DB, id int64, terminal bool) error {
	status := models.QueueStatusFailed
	if terminal {
		status = models.QueueStatusFailedTerminal
	}
	return store.TransitionQueueEntry(db, id, status)
}

// ReleaseProcessingLock returns a Claimed/Processing entry held by agentID
// back to Pending, used on crash recovery or signal-driven shutdown.
func ReleaseProcessingLock(db *sql.DB, id int64, agentID string) error {
	return store.ReleaseProcessingSlot(db, id, agentID)
}

// List returns every queue entry.
func List(db *sql.DB) ([]models.QueueEntry, error) {
	return store.ListQueueEntries(db)
}

// GetByWorkspace returns the active entry for a session name, if any.
func GetByWorkspace(db *sql.DB, sessionName string) (*models.QueueEntry, error) {
	return store.GetQueueEntryByWorkspace(db, sessionName)
}

// Stats summarizes queue entry counts by status.
func Stats(db *sql.DB) (store.QueueStats, error) {
	return store.Stats(db)
}

// Cleanup deletes terminal entries older than maxAge.
func Cleanup(db *sql.DB, maxAge time.Duration) (int64, error) {
	return store.CleanupQueueEntries(db, maxAge)
}
