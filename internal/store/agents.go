package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/agentrain/mergetrain/internal/models"
)

// RegisterAgent inserts or refreshes an agent's registration row.
func RegisterAgent(db *sql.DB, agentID string) error {
	now := time.Now().UTC()
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO agents (agent_id, registered_at, last_seen, actions_count)
			VALUES (?, ?, ?, 0)
			ON CONFLICT(agent_id) DO UPDATE SET last_seen = excluded.last_seen
		`, agentID, now, now)
		return err
	})
}

// HeartbeatAgent bumps last_seen and increments the action counter for
// agentID, registering the agent first if it has no row yet.
func HeartbeatAgent(db *sql.DB, agentID string) error {
	return Transact(db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(context.Background(), `
			UPDATE agents SET last_seen = ?, actions_count = actions_count + 1 WHERE agent_id = ?
		`, now, agentID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// Insert on this transaction: the pool holds one connection, so a
			// nested RegisterAgent(db, ...) would wait on it forever.
			_, err = tx.ExecContext(context.Background(), `
				INSERT INTO agents (agent_id, registered_at, last_seen, actions_count)
				VALUES (?, ?, ?, 0)
			`, agentID, now, now)
			return err
		}
		return nil
	})
}

// SetAgentCurrent records the session/command an agent is presently working
// on; pass "" to clear.
func SetAgentCurrent(db *sql.DB, agentID, session, command string) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE agents SET current_session = ?, current_command = ? WHERE agent_id = ?
		`, nullIfEmpty(session), nullIfEmpty(command), agentID)
		return err
	})
}

// PruneStaleAgents deletes agents whose last_seen exceeds maxAge and
// returns the count removed — the registry itself never deletes rows, per
// spec's note that only the Periodic Cleaner prunes on a retention window.
func PruneStaleAgents(db *sql.DB, maxAge time.Duration) (int64, error) {
	var removed int64
	err := Transact(db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(),
			`DELETE FROM agents WHERE last_seen <= ?`, time.Now().UTC().Add(-maxAge))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

// ListAgents returns the registered agents, omitting stale ones unless
// includeStale is set. Stale is computed at read time as
// now - last_seen > heartbeatTimeout, never stored.
func ListAgents(db *sql.DB, includeStale bool, heartbeatTimeout time.Duration) ([]models.Agent, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT agent_id, registered_at, last_seen,
		       COALESCE(current_session, ''), COALESCE(current_command, ''), actions_count
		FROM agents ORDER BY agent_id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	now := time.Now().UTC()
	var out []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.AgentID, &a.RegisteredAt, &a.LastSeen, &a.CurrentSession, &a.CurrentCommand, &a.ActionsCount); err != nil {
			return nil, err
		}
		a.Stale = now.Sub(a.LastSeen) > heartbeatTimeout
		if a.Stale && !includeStale {
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
