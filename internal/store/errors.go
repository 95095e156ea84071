package store

import (
	"strconv"

	"github.com/agentrain/mergetrain/internal/models"
)

// RecoverableError is an alias for models.RecoverableError, retained for
// callers that reference store.RecoverableError directly.
type RecoverableError = models.RecoverableError

// LockContentionError is returned when an agent fails to acquire a lock
// already held by another agent. Maps to exit code 5.
type LockContentionError struct {
	Key          string
	CurrentOwner string
	RequestedBy  string
}

func (e *LockContentionError) Error() string { return "lock held by another agent" }
func (e *LockContentionError) ErrorCode() string { return "LOCK_CONTENTION" }
func (e *LockContentionError) Context() map[string]string {
	return map[string]string{
		"key":           e.Key,
		"current_owner": e.CurrentOwner,
		"requested_by":  e.RequestedBy,
	}
}
func (e *LockContentionError) SuggestedAction() string {
	return "retry after the lock's TTL expires, or wait for the current holder to release it"
}
func (e *LockContentionError) Is(target error) bool { return target == ErrLockContention }

// LockNotHolderError is returned when an agent attempts to unlock a key it
// does not hold.
type LockNotHolderError struct {
	Key         string
	RequestedBy string
}

func (e *LockNotHolderError) Error() string { return "lock is not held by this agent" }
func (e *LockNotHolderError) ErrorCode() string { return "LOCK_NOT_HOLDER" }
func (e *LockNotHolderError) Context() map[string]string {
	return map[string]string{
		"key":          e.Key,
		"requested_by": e.RequestedBy,
	}
}
func (e *LockNotHolderError) SuggestedAction() string {
	return "only the current holder or a TTL expiry can release this lock"
}
func (e *LockNotHolderError) Is(target error) bool { return target == ErrLockNotHolder }

// VersionConflictError replaces ErrVersionConflict with structured context.
// Returned when optimistic concurrency (the version column CAS) fails on a
// session or queue entry update.
type VersionConflictError struct {
	Entity  string
	ID      string
	Version int
}

func (e *VersionConflictError) Error() string {
	return "version conflict: record was modified by another process"
}
func (e *VersionConflictError) ErrorCode() string { return "VERSION_CONFLICT" }
func (e *VersionConflictError) Context() map[string]string {
	return map[string]string{
		"entity":  e.Entity,
		"id":      e.ID,
		"version": strconv.Itoa(e.Version),
	}
}
func (e *VersionConflictError) SuggestedAction() string {
	return "reload the record and retry the operation"
}
func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// ValidationError is returned when caller-supplied input fails a structural
// check (name format, path traversal, SHA length, priority range) before it
// ever reaches a write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string     { return "validation failed for " + e.Field + ": " + e.Reason }
func (e *ValidationError) ErrorCode() string { return "VALIDATION" }
func (e *ValidationError) Context() map[string]string {
	return map[string]string{"field": e.Field, "reason": e.Reason}
}
func (e *ValidationError) SuggestedAction() string {
	return "fix the offending field and resubmit"
}

// AlreadyExistsError is returned when a session name is already taken.
type AlreadyExistsError struct {
	Name string
}

func (e *AlreadyExistsError) Error() string     { return "session already exists: " + e.Name }
func (e *AlreadyExistsError) ErrorCode() string { return "ALREADY_EXISTS" }
func (e *AlreadyExistsError) Context() map[string]string {
	return map[string]string{"name": e.Name}
}
func (e *AlreadyExistsError) SuggestedAction() string {
	return "choose a different session name, or remove the existing one first"
}

// InvalidTransitionError is returned when a session or queue-entry state
// transition is not in the total transition table.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition: " + e.From + " -> " + e.To
}
func (e *InvalidTransitionError) ErrorCode() string { return "INVALID_TRANSITION" }
func (e *InvalidTransitionError) Context() map[string]string {
	return map[string]string{
		"entity": e.Entity,
		"id":     e.ID,
		"from":   e.From,
		"to":     e.To,
	}
}
func (e *InvalidTransitionError) SuggestedAction() string {
	return "check the state machine's transition table before requesting this change"
}
