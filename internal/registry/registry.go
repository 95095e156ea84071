// Package registry tracks live coding agents by id, their heartbeats, and
// what each is currently working on. Staleness is a pure function of
// elapsed time computed at read time, never persisted.
package registry

import (
	"database/sql"
	"time"

	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/store"
)

// Register records a new agent id, or refreshes last_seen if it already
// exists.
func Register(db *sql.DB, agentID string) error {
	return store.RegisterAgent(db, agentID)
}

// Heartbeat bumps an agent's last_seen timestamp and action counter.
func Heartbeat(db *sql.DB, agentID string) error {
	return store.HeartbeatAgent(db, agentID)
}

// SetCurrent records the session/command an agent is presently working on.
func SetCurrent(db *sql.DB, agentID, session, command string) error {
	return store.SetAgentCurrent(db, agentID, session, command)
}

// List returns registered agents, optionally including stale ones (agents
// whose last_seen is older than heartbeatTimeout).
func List(db *sql.DB, includeStale bool, heartbeatTimeout time.Duration) ([]models.Agent, error) {
	return store.ListAgents(db, includeStale, heartbeatTimeout)
}
