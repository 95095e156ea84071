package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentrain/mergetrain/internal/models"
)

// CreateSession inserts a new session row in SessionStatusCreating /
// WorkspaceStateCreated. Returns a *ValidationError if the name fails the
// name-format check, or a *AlreadyExistsError if the name is already taken.
func CreateSession(db *sql.DB, s *models.Session) error {
	if err := ValidateSessionName(s.Name); err != nil {
		return err
	}
	return Transact(db, func(tx *sql.Tx) error {
		metaJSON, err := s.Metadata.MarshalValue()
		if err != nil {
			return fmt.Errorf("marshal session metadata: %w", err)
		}
		now := time.Now().UTC()
		_, err = tx.ExecContext(context.Background(), `
			INSERT INTO sessions (
				name, workspace_path, branch_ref, status, workspace_state,
				parent_session, dedupe_key, metadata, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`, s.Name, s.WorkspacePath, nullIfEmpty(s.BranchRef), models.SessionStatusCreating,
			models.WorkspaceStateCreated, nullIfEmpty(s.ParentSession), nullIfEmpty(s.DedupeKey),
			nullIfEmpty(metaJSON), now, now)
		if err != nil {
			if isUniqueConstraintError(err) {
				return &AlreadyExistsError{Name: s.Name}
			}
			return fmt.Errorf("insert session: %w", err)
		}
		s.Status = models.SessionStatusCreating
		s.WorkspaceState = models.WorkspaceStateCreated
		s.Version = 1
		s.CreatedAt = now
		s.UpdatedAt = now
		return nil
	})
}

// GetSession loads one session by name.
func GetSession(db *sql.DB, name string) (*models.Session, error) {
	row := db.QueryRowContext(context.Background(), `
		SELECT name, workspace_path, branch_ref, status, workspace_state,
		       parent_session, dedupe_key, metadata, version, created_at, updated_at
		FROM sessions WHERE name = ?
	`, name)
	return scanSession(row)
}

// ListSessions returns every session, ordered by creation time.
func ListSessions(db *sql.DB) ([]models.Session, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT name, workspace_path, branch_ref, status, workspace_state,
		       parent_session, dedupe_key, metadata, version, created_at, updated_at
		FROM sessions ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// TransitionSession moves a session's workspace state from its current
// value to `to`, validating against models.CanTransitionWorkspace and
// appending a row to session_transitions. Uses optimistic CAS on version.
// Reaching Ready promotes a session still in SessionStatusCreating to
// SessionStatusActive: its workspace has materialized.
func TransitionSession(db *sql.DB, name string, to models.WorkspaceState) error {
	return Transact(db, func(tx *sql.Tx) error {
		var from models.WorkspaceState
		var status models.SessionStatus
		var version int
		err := tx.QueryRowContext(context.Background(),
			`SELECT workspace_state, status, version FROM sessions WHERE name = ?`, name,
		).Scan(&from, &status, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session %q not found", name)
		}
		if err != nil {
			return err
		}

		if !models.CanTransitionWorkspace(from, to) {
			return &InvalidTransitionError{Entity: "session", ID: name, From: string(from), To: string(to)}
		}

		if to == models.WorkspaceStateReady && status == models.SessionStatusCreating {
			status = models.SessionStatusActive
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(context.Background(), `
			UPDATE sessions
			SET workspace_state = ?, status = ?, version = version + 1, updated_at = ?
			WHERE name = ? AND version = ?
		`, to, status, now, name, version)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &VersionConflictError{Entity: "session", ID: name, Version: version}
		}

		_, err = tx.ExecContext(context.Background(), `
			INSERT INTO session_transitions (session_name, from_state, to_state, created_at)
			VALUES (?, ?, ?, ?)
		`, name, from, to, now)
		return err
	})
}

// DeleteSession removes a session row and its transition history.
func DeleteSession(db *sql.DB, name string) error {
	return Transact(db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(context.Background(),
			`DELETE FROM session_transitions WHERE session_name = ?`, name); err != nil {
			return err
		}
		res, err := tx.ExecContext(context.Background(), `DELETE FROM sessions WHERE name = ?`, name)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("session %q not found", name)
		}
		return nil
	})
}

// PruneOrphanedTransitions deletes session_transitions rows whose session
// no longer exists — a defensive sweep for rows left behind by any deletion
// path that predates DeleteSession's own transition cleanup. Returns the
// count removed.
func PruneOrphanedTransitions(db *sql.DB) (int64, error) {
	var removed int64
	err := Transact(db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), `
			DELETE FROM session_transitions
			WHERE session_name NOT IN (SELECT name FROM sessions)
		`)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

// StuckSessions returns the names of every session still in
// SessionStatusCreating: CreateSession inserts Creating, and only
// TransitionSession's first move to Ready promotes a session to Active, so
// a session whose workspace never reached Ready (a crash mid-spawn, or an
// added session not yet worked) is reported here.
func StuckSessions(db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(context.Background(),
		`SELECT name FROM sessions WHERE status = ?`, models.SessionStatusCreating)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SessionNodes returns the pure stack-graph projection of every session.
func SessionNodes(db *sql.DB) ([]models.SessionNode, error) {
	rows, err := db.QueryContext(context.Background(),
		`SELECT name, COALESCE(parent_session, '') FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.SessionNode
	for rows.Next() {
		var n models.SessionNode
		if err := rows.Scan(&n.Name, &n.Parent); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*models.Session, error) {
	s, err := scanSessionRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return s, err
}

func scanSessionRows(row scannable) (*models.Session, error) {
	var s models.Session
	var branchRef, parentSession, dedupeKey, metaJSON sql.NullString
	if err := row.Scan(
		&s.Name, &s.WorkspacePath, &branchRef, &s.Status, &s.WorkspaceState,
		&parentSession, &dedupeKey, &metaJSON, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.BranchRef = branchRef.String
	s.ParentSession = parentSession.String
	s.DedupeKey = dedupeKey.String
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}
	return &s, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
