package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agentrain/mergetrain/internal/models"
)

// ErrDuplicateSubmission is returned when a dedupe_key already has a
// non-terminal queue entry.
var ErrDuplicateSubmission = errors.New("a non-terminal entry already exists for this dedupe key")

// ErrQueueEmpty is returned by NextWithLock when there is no claimable entry.
var ErrQueueEmpty = errors.New("no claimable queue entry")

// SubmitQueueEntry inserts a new Pending entry, enforcing "at most one
// non-terminal row per dedupe_key" by counting the key's non-terminal rows
// and inserting only when there are none, both inside one transaction; a
// key whose rows are all terminal gets a new row with a new id. Before that, it
// validates the session name (format and path-traversal freedom), the head
// SHA's minimum length, and the priority range, returning a *ValidationError
// for the first violation found.
func SubmitQueueEntry(db *sql.DB, e *models.QueueEntry) error {
	if e.SessionName == "" {
		return &ValidationError{Field: "session_name", Reason: "must not be empty"}
	}
	if err := ValidateSessionName(e.SessionName); err != nil {
		return err
	}
	if err := ValidateHeadSHA(e.HeadSHA); err != nil {
		return err
	}
	if err := ValidatePriority(e.Priority); err != nil {
		return err
	}

	now := time.Now().UTC()
	return Transact(db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(context.Background(), `
			SELECT COUNT(*) FROM queue_entries
			WHERE dedupe_key = ? AND status NOT IN ('completed', 'failed_terminal', 'merged', 'cancelled')
		`, e.DedupeKey).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrDuplicateSubmission
		}

		res, err := tx.ExecContext(context.Background(), `
			INSERT INTO queue_entries (
				session_name, bead_id, priority, status, dedupe_key, head_sha,
				tested_against_sha, attempt_count, rebase_count, parent_workspace,
				stack_depth, stack_root, stack_merge_state, holding_agent_id,
				submission_type, version, added_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?, NULL, ?, 1, ?, ?)
		`, e.SessionName, nullIfEmpty(e.BeadID), e.Priority, models.QueueStatusPending,
			e.DedupeKey, e.HeadSHA, nullIfEmpty(e.TestedAgainstSHA), nullIfEmpty(e.ParentWorkspace),
			e.StackDepth, nullIfEmpty(e.StackRoot), nullIfEmpty(string(e.StackMergeState)),
			nullIfEmpty(e.SubmissionType), now, now)
		if err != nil {
			return fmt.Errorf("insert queue entry: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		e.ID = id
		e.Status = models.QueueStatusPending
		e.Version = 1
		e.AddedAt = now
		e.UpdatedAt = now
		return nil
	})
}

// NextWithLock claims the highest-priority, oldest Pending entry under the
// singleton processing lock (models.ProcessingLockKey), transitioning it to
// Claimed. Returns ErrQueueEmpty if nothing is claimable. Callers must hold
// the processing lock themselves (see internal/queue.NextWithLockBounded)
// before calling this — NextWithLock only performs the row claim, not lock
// acquisition, mirroring how ClaimNextTaskTx only claims a row inside a
// transaction its caller already opened.
func NextWithLock(db *sql.DB, agentID string) (*models.QueueEntry, error) {
	var result *models.QueueEntry
	err := Transact(db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(context.Background(), `
			SELECT id, version FROM queue_entries
			WHERE status = ?
			ORDER BY priority ASC, added_at ASC
			LIMIT 1
		`, models.QueueStatusPending)

		var id int64
		var version int
		err := row.Scan(&id, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQueueEmpty
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(context.Background(), `
			UPDATE queue_entries
			SET status = ?, holding_agent_id = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`, models.QueueStatusClaimed, agentID, now, id, version)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &VersionConflictError{Entity: "queue_entry", ID: fmt.Sprintf("%d", id), Version: version}
		}

		e, err := getQueueEntryTx(tx, id)
		if err != nil {
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TransitionQueueEntry moves a queue entry to `to`, incrementing version.
// Terminal statuses cannot be left once entered.
func TransitionQueueEntry(db *sql.DB, id int64, to models.QueueStatus) error {
	return Transact(db, func(tx *sql.Tx) error {
		var from models.QueueStatus
		var version int
		err := tx.QueryRowContext(context.Background(),
			`SELECT status, version FROM queue_entries WHERE id = ?`, id,
		).Scan(&from, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("queue entry %d not found", id)
		}
		if err != nil {
			return err
		}
		if from.IsTerminal() {
			return &InvalidTransitionError{Entity: "queue_entry", ID: fmt.Sprintf("%d", id), From: string(from), To: string(to)}
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(context.Background(), `
			UPDATE queue_entries SET status = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`, to, now, id, version)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &VersionConflictError{Entity: "queue_entry", ID: fmt.Sprintf("%d", id), Version: version}
		}
		return nil
	})
}

// ReleaseProcessingSlot transitions an in-flight (Claimed/Processing) entry
// back to Pending, used when an agent crashes or a signal interrupts it
// mid-merge. Entries already in a terminal status, or held by a different
// agent, are left untouched.
func ReleaseProcessingSlot(db *sql.DB, id int64, agentID string) error {
	return Transact(db, func(tx *sql.Tx) error {
		var status models.QueueStatus
		var holder sql.NullString
		var version int
		err := tx.QueryRowContext(context.Background(),
			`SELECT status, holding_agent_id, version FROM queue_entries WHERE id = ?`, id,
		).Scan(&status, &holder, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if status.IsTerminal() || holder.String != agentID {
			return nil
		}

		_, err = tx.ExecContext(context.Background(), `
			UPDATE queue_entries
			SET status = ?, holding_agent_id = NULL, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`, models.QueueStatusPending, time.Now().UTC(), id, version)
		return err
	})
}

// GetQueueEntry loads one entry by id.
func GetQueueEntry(db *sql.DB, id int64) (*models.QueueEntry, error) {
	return getQueueEntryTx(db, id)
}

// GetQueueEntryByWorkspace loads the most recent non-terminal entry for a
// session name, or sql.ErrNoRows if none exists.
func GetQueueEntryByWorkspace(db *sql.DB, sessionName string) (*models.QueueEntry, error) {
	row := db.QueryRowContext(context.Background(), `
		SELECT id FROM queue_entries
		WHERE session_name = ? AND status NOT IN ('completed', 'failed_terminal', 'merged', 'cancelled')
		ORDER BY added_at DESC LIMIT 1
	`, sessionName)
	var id int64
	if err := row.Scan(&id); err != nil {
		return nil, err
	}
	return getQueueEntryTx(db, id)
}

// ListQueueEntries returns every entry, ordered by priority then age.
func ListQueueEntries(db *sql.DB) ([]models.QueueEntry, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, session_name, COALESCE(bead_id, ''), priority, status, dedupe_key,
		       head_sha, COALESCE(tested_against_sha, ''), attempt_count, rebase_count,
		       COALESCE(parent_workspace, ''), stack_depth, COALESCE(stack_root, ''),
		       COALESCE(stack_merge_state, ''), COALESCE(holding_agent_id, ''),
		       COALESCE(submission_type, ''), version, added_at, updated_at
		FROM queue_entries ORDER BY priority ASC, added_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// QueueStats summarizes entry counts by status.
type QueueStats struct {
	Counts map[models.QueueStatus]int
}

// Stats returns per-status counts across the whole queue.
func Stats(db *sql.DB) (QueueStats, error) {
	rows, err := db.QueryContext(context.Background(),
		`SELECT status, COUNT(*) FROM queue_entries GROUP BY status`)
	if err != nil {
		return QueueStats{}, err
	}
	defer func() { _ = rows.Close() }()

	counts := map[models.QueueStatus]int{}
	for rows.Next() {
		var status models.QueueStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return QueueStats{}, err
		}
		counts[status] = n
	}
	return QueueStats{Counts: counts}, rows.Err()
}

// CleanupQueueEntries deletes terminal entries older than maxAge and
// returns the count removed.
func CleanupQueueEntries(db *sql.DB, maxAge time.Duration) (int64, error) {
	var removed int64
	err := Transact(db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), `
			DELETE FROM queue_entries
			WHERE status IN ('completed', 'failed_terminal', 'merged', 'cancelled')
			  AND updated_at <= ?
		`, time.Now().UTC().Add(-maxAge))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getQueueEntryTx(q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id int64) (*models.QueueEntry, error) {
	row := q.QueryRowContext(context.Background(), `
		SELECT id, session_name, COALESCE(bead_id, ''), priority, status, dedupe_key,
		       head_sha, COALESCE(tested_against_sha, ''), attempt_count, rebase_count,
		       COALESCE(parent_workspace, ''), stack_depth, COALESCE(stack_root, ''),
		       COALESCE(stack_merge_state, ''), COALESCE(holding_agent_id, ''),
		       COALESCE(submission_type, ''), version, added_at, updated_at
		FROM queue_entries WHERE id = ?
	`, id)
	return scanQueueEntry(row)
}

func scanQueueEntry(row rowScanner) (*models.QueueEntry, error) {
	var e models.QueueEntry
	var stackMergeState string
	if err := row.Scan(
		&e.ID, &e.SessionName, &e.BeadID, &e.Priority, &e.Status, &e.DedupeKey,
		&e.HeadSHA, &e.TestedAgainstSHA, &e.AttemptCount, &e.RebaseCount,
		&e.ParentWorkspace, &e.StackDepth, &e.StackRoot,
		&stackMergeState, &e.HoldingAgentID, &e.SubmissionType, &e.Version, &e.AddedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.StackMergeState = models.StackMergeState(stackMergeState)
	return &e, nil
}
