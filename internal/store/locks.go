package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrLockContention is returned when a lock is already held by another agent.
var ErrLockContention = errors.New("lock held by another agent")

// ErrLockNotHolder is returned when an agent attempts to release a lock it
// does not currently hold.
var ErrLockNotHolder = errors.New("lock is not held by this agent")

// LockRow is a single row of the locks table.
type LockRow struct {
	Key            string
	HoldingAgentID string
	AcquiredAt     time.Time
	ExpiresAt      time.Time
}

// AcquireLock grants the named lock to agentID for the given ttl, reaping
// any expired prior holder first. Returns *LockContentionError if the key
// is currently held by a different agent and has not yet expired.
//
// Implemented as an INSERT OR IGNORE followed by a conditional UPDATE
// guarded by expires_at, all inside one Transact call — SQLite's
// single-writer semantics make this atomic without an app-level mutex,
// the same way ClaimNextTaskTx gets atomicity from a version-gated UPDATE.
func AcquireLock(db *sql.DB, key, agentID string, ttl time.Duration) error {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT OR IGNORE INTO locks (key, holding_agent_id, acquired_at, expires_at)
			VALUES (?, ?, ?, ?)
		`, key, agentID, now, expiresAt)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(context.Background(), `
			UPDATE locks
			SET holding_agent_id = ?, acquired_at = ?, expires_at = ?
			WHERE key = ? AND (holding_agent_id = ? OR expires_at <= ?)
		`, agentID, now, expiresAt, key, agentID, now)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var currentOwner string
			_ = tx.QueryRowContext(context.Background(),
				`SELECT holding_agent_id FROM locks WHERE key = ?`, key,
			).Scan(&currentOwner)
			return &LockContentionError{Key: key, CurrentOwner: currentOwner, RequestedBy: agentID}
		}

		return nil
	})
}

// ReleaseLock releases the named lock held by agentID. Returns
// *LockNotHolderError if the lock is held by a different agent or does not
// exist.
func ReleaseLock(db *sql.DB, key, agentID string) error {
	return Transact(db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), `
			DELETE FROM locks WHERE key = ? AND holding_agent_id = ?
		`, key, agentID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &LockNotHolderError{Key: key, RequestedBy: agentID}
		}
		return nil
	})
}

// AllLocks returns every currently held lock row, including expired ones
// (callers wanting only live locks should pair this with ReapExpiredLocks).
func AllLocks(db *sql.DB) ([]LockRow, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT key, holding_agent_id, acquired_at, expires_at FROM locks ORDER BY key
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []LockRow
	for rows.Next() {
		var l LockRow
		if err := rows.Scan(&l.Key, &l.HoldingAgentID, &l.AcquiredAt, &l.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReapExpiredLocks deletes every lock row whose expires_at has passed and
// returns the number of locks reaped.
func ReapExpiredLocks(db *sql.DB) (int64, error) {
	var reaped int64
	err := Transact(db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(),
			`DELETE FROM locks WHERE expires_at <= ?`, time.Now().UTC(),
		)
		if err != nil {
			return err
		}
		reaped, err = res.RowsAffected()
		return err
	})
	return reaped, err
}
