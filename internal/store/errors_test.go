package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRecoverableError_Is verifies each struct type matches its own sentinel
// via errors.Is and does not cross-match other sentinels.
func TestRecoverableError_Is(t *testing.T) {
	contention := &LockContentionError{Key: "s1", CurrentOwner: "agent-a", RequestedBy: "agent-b"}
	notHolder := &LockNotHolderError{Key: "s1", RequestedBy: "agent-b"}
	version := &VersionConflictError{Entity: "session", ID: "s1", Version: 3}

	assert.ErrorIs(t, contention, ErrLockContention)
	assert.ErrorIs(t, notHolder, ErrLockNotHolder)
	assert.ErrorIs(t, version, ErrVersionConflict)

	assert.False(t, errors.Is(contention, ErrLockNotHolder))
	assert.False(t, errors.Is(contention, ErrVersionConflict))
	assert.False(t, errors.Is(notHolder, ErrLockContention))
	assert.False(t, errors.Is(notHolder, ErrVersionConflict))
	assert.False(t, errors.Is(version, ErrLockContention))
	assert.False(t, errors.Is(version, ErrLockNotHolder))
}

// TestRecoverableError_ErrorCode verifies each struct returns the correct code string.
func TestRecoverableError_ErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      RecoverableError
		wantCode string
	}{
		{
			name:     "LockContentionError",
			err:      &LockContentionError{Key: "s1", CurrentOwner: "agent-a", RequestedBy: "agent-b"},
			wantCode: "LOCK_CONTENTION",
		},
		{
			name:     "LockNotHolderError",
			err:      &LockNotHolderError{Key: "s1", RequestedBy: "agent-b"},
			wantCode: "LOCK_NOT_HOLDER",
		},
		{
			name:     "VersionConflictError",
			err:      &VersionConflictError{Entity: "session", ID: "s1", Version: 3},
			wantCode: "VERSION_CONFLICT",
		},
		{
			name:     "InvalidTransitionError",
			err:      &InvalidTransitionError{Entity: "session", ID: "s1", From: "ready", To: "merged"},
			wantCode: "INVALID_TRANSITION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.ErrorCode())
			assert.NotEmpty(t, tt.err.SuggestedAction())
			assert.NotEmpty(t, tt.err.Context())
		})
	}
}
