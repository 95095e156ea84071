// Package locks provides the agent-scoped, time-bounded advisory lock used
// to gate exclusive access to a session name or the singleton merge-queue
// processing slot.
package locks

import (
	"context"
	"database/sql"
	"time"

	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/store"
)

// Outcome reports whether a Lock call newly granted the lock or found it
// already held by the requesting agent (an idempotent re-acquire).
type Outcome int

const (
	// Granted means the lock was free (or expired) and is now held by the
	// requesting agent.
	Granted Outcome = iota
	// Held means the requesting agent already held the lock; the TTL was
	// refreshed.
	Held
)

// Lock attempts to acquire key for agentID for the given ttl. Returns
// *store.LockContentionError if another agent holds a live lock on key.
func Lock(ctx context.Context, db *sql.DB, key, agentID string, ttl time.Duration) (Outcome, error) {
	held, err := isHeldBy(db, key, agentID)
	if err != nil {
		return Granted, err
	}

	if err := store.AcquireLock(db, key, agentID, ttl); err != nil {
		return Granted, err
	}

	if held {
		return Held, nil
	}
	return Granted, nil
}

func isHeldBy(db *sql.DB, key, agentID string) (bool, error) {
	all, err := store.AllLocks(db)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	for _, l := range all {
		if l.Key == key && l.HoldingAgentID == agentID && l.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// Unlock releases key held by agentID. Returns *store.LockNotHolderError if
// agentID does not currently hold it.
func Unlock(db *sql.DB, key, agentID string) error {
	return store.ReleaseLock(db, key, agentID)
}

// AllLocks returns every lock row, live or expired, as models.Lock values.
func AllLocks(db *sql.DB) ([]models.Lock, error) {
	rows, err := store.AllLocks(db)
	if err != nil {
		return nil, err
	}
	out := make([]models.Lock, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Lock{
			Key:            r.Key,
			HoldingAgentID: r.HoldingAgentID,
			AcquiredAt:     r.AcquiredAt,
			ExpiresAt:      r.ExpiresAt,
		})
	}
	return out, nil
}

// ReapExpired deletes every lock whose TTL has passed and returns the count
// reaped.
func ReapExpired(db *sql.DB) (int64, error) {
	return store.ReapExpiredLocks(db)
}
