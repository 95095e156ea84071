package models

import (
	"encoding/json"
	"time"
)

// ID Strategy:
// - Sessions are keyed by their validated name (caller-supplied, unique).
// - Queue entries, agents, locks, and checkpoints use store-generated IDs:
//   queue entries get an auto-increment int64 (ordering matters), agents and
//   locks are keyed by their natural identity (agent id / session name), and
//   checkpoints get a prefixed id (see internal/store/id.go).

// SessionStatus is the top-level lifecycle status of a session.
type SessionStatus string

const (
	SessionStatusCreating  SessionStatus = "creating"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// IsTerminal reports whether the status is sticky absent a controlled re-open.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// WorkspaceState is the workspace-materialization state machine, independent
// of the session's top-level status.
type WorkspaceState string

const (
	WorkspaceStateCreated   WorkspaceState = "created"
	WorkspaceStateSyncing   WorkspaceState = "syncing"
	WorkspaceStateReady     WorkspaceState = "ready"
	WorkspaceStateMerging   WorkspaceState = "merging"
	WorkspaceStateMerged    WorkspaceState = "merged"
	WorkspaceStateAbandoned WorkspaceState = "abandoned"
)

// IsTerminal reports whether the workspace state is one of the two sinks.
func (w WorkspaceState) IsTerminal() bool {
	return w == WorkspaceStateMerged || w == WorkspaceStateAbandoned
}

// workspaceTransitions enumerates the total transition table for workspace
// states. An entry not present here is rejected as InvalidTransition.
var workspaceTransitions = map[WorkspaceState]map[WorkspaceState]bool{
	WorkspaceStateCreated: {WorkspaceStateSyncing: true, WorkspaceStateAbandoned: true},
	WorkspaceStateSyncing: {WorkspaceStateReady: true, WorkspaceStateAbandoned: true},
	WorkspaceStateReady: {
		WorkspaceStateMerging:   true,
		WorkspaceStateSyncing:   true,
		WorkspaceStateAbandoned: true,
	},
	WorkspaceStateMerging: {
		WorkspaceStateMerged:    true,
		WorkspaceStateAbandoned: true,
	},
	WorkspaceStateMerged:    {},
	WorkspaceStateAbandoned: {},
}

// CanTransitionWorkspace reports whether from -> to is a legal workspace
// state transition.
func CanTransitionWorkspace(from, to WorkspaceState) bool {
	allowed, ok := workspaceTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Session is the core's record of a workspace plus its lifecycle metadata.
type Session struct {
	Name           string         `json:"name"`
	WorkspacePath  string         `json:"workspace_path"`
	BranchRef      string         `json:"branch_ref,omitempty"`
	Status         SessionStatus  `json:"status"`
	WorkspaceState WorkspaceState `json:"workspace_state"`
	ParentSession  string         `json:"parent_session,omitempty"`
	DedupeKey      string         `json:"dedupe_key,omitempty"`
	Metadata       SessionMeta    `json:"metadata,omitempty"`
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// SessionMeta is the optional metadata map attached to a session (bead id,
// agent id, and any caller-supplied extras), stored as a JSON blob.
type SessionMeta struct {
	BeadID  string `json:"bead_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
}

// MarshalValue returns the JSON-encoded form stored in the sessions table.
func (m SessionMeta) MarshalValue() (string, error) {
	if m.BeadID == "" && m.AgentID == "" {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// HasParent reports whether the session is stacked on another session.
func (s *Session) HasParent() bool {
	return s.ParentSession != ""
}

// IsActive reports whether the session is in the Active top-level status.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// SessionNode is the minimal projection of a Session used by the pure
// stack-graph functions: identity plus the single parent edge.
type SessionNode struct {
	Name   string
	Parent string // empty string means "no parent" (a root)
}

// QueueStatus is the canonical status set for a merge-queue entry.
//
// This repo resolves spec's Open Question 2 (Merged vs Completed vs
// FailedTerminal terminology) by keeping all three as distinct terminal
// states: Merged is reserved for entries that completed via an actual merge,
// Completed is the generic non-merge success terminal (e.g. an operator
// marking an entry done outside the merge path), and FailedTerminal is
// reserved for entries that exhausted their attempt budget.
type QueueStatus string

const (
	QueueStatusPending        QueueStatus = "pending"
	QueueStatusClaimed        QueueStatus = "claimed"
	QueueStatusProcessing     QueueStatus = "processing"
	QueueStatusCompleted      QueueStatus = "completed"
	QueueStatusFailed         QueueStatus = "failed"
	QueueStatusFailedTerminal QueueStatus = "failed_terminal"
	QueueStatusMerged         QueueStatus = "merged"
	QueueStatusCancelled      QueueStatus = "cancelled"
)

// IsTerminal reports whether the status is sticky (Merged, FailedTerminal,
// Cancelled) or the generic Completed sink.
func (s QueueStatus) IsTerminal() bool {
	switch s {
	case QueueStatusMerged, QueueStatusFailedTerminal, QueueStatusCancelled, QueueStatusCompleted:
		return true
	default:
		return false
	}
}

// StackMergeState reflects a queue entry's position relative to its stack.
type StackMergeState string

const (
	StackMergeStateIndependent StackMergeState = "independent"
	StackMergeStatePending     StackMergeState = "pending"
	StackMergeStateBlocked     StackMergeState = "blocked"
	StackMergeStateReady       StackMergeState = "ready"
)

// QueueEntry is a session's position in the merge train.
type QueueEntry struct {
	ID               int64           `json:"id"`
	SessionName      string          `json:"session_name"`
	BeadID           string          `json:"bead_id,omitempty"`
	Priority         int             `json:"priority"`
	Status           QueueStatus     `json:"status"`
	DedupeKey        string          `json:"dedupe_key"`
	HeadSHA          string          `json:"head_sha"`
	TestedAgainstSHA string          `json:"tested_against_sha,omitempty"`
	AttemptCount     int             `json:"attempt_count"`
	RebaseCount      int             `json:"rebase_count"`
	ParentWorkspace  string          `json:"parent_workspace,omitempty"`
	StackDepth       int             `json:"stack_depth"`
	StackRoot        string          `json:"stack_root,omitempty"`
	StackMergeState  StackMergeState `json:"stack_merge_state,omitempty"`
	HoldingAgentID   string          `json:"holding_agent_id,omitempty"`
	SubmissionType   string          `json:"submission_type,omitempty"`
	Version          int             `json:"version"`
	AddedAt          time.Time       `json:"added_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsNonTerminal reports whether the entry still occupies the active funnel.
func (q *QueueEntry) IsNonTerminal() bool {
	return !q.Status.IsTerminal()
}

// Agent tracks a live coding agent by id.
type Agent struct {
	AgentID        string    `json:"agent_id"`
	RegisteredAt   time.Time `json:"registered_at"`
	LastSeen       time.Time `json:"last_seen"`
	CurrentSession string    `json:"current_session,omitempty"`
	CurrentCommand string    `json:"current_command,omitempty"`
	ActionsCount   int64     `json:"actions_count"`
	Stale          bool      `json:"stale"`
}

// Lock is an advisory, time-bounded, agent-scoped lock on a session name
// (or the singleton processing key).
type Lock struct {
	Key            string    `json:"key"`
	HoldingAgentID string    `json:"holding_agent_id"`
	AcquiredAt     time.Time `json:"acquired_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ProcessingLockKey is the distinguished singleton key gating queue claims.
const ProcessingLockKey = "__processing__"

// Checkpoint is a point-in-time snapshot or metadata-only marker for a
// session.
type Checkpoint struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Description    string    `json:"description,omitempty"`
	SessionName    string    `json:"session_name,omitempty"`
	SnapshotPath   string    `json:"snapshot_path,omitempty"`
	MetadataOnly   bool      `json:"metadata_only"`
}

// MaxCheckpointSnapshotBytes is the post-compression cap beyond which a
// checkpoint is stored as a metadata-only marker instead of a full snapshot.
const MaxCheckpointSnapshotBytes = 100 * 1024 * 1024

// SessionTransition is one row of the append-only session state-transition
// log.
type SessionTransition struct {
	ID          int64     `json:"id"`
	SessionName string    `json:"session_name"`
	FromState   string    `json:"from_state"`
	ToState     string    `json:"to_state"`
	CreatedAt   time.Time `json:"created_at"`
}
