package cli

import (
	"database/sql"
	"errors"

	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/stackgraph"
	"github.com/agentrain/mergetrain/internal/store"
)

// Exit codes per the canonical CLI surface.
const (
	ExitOK                  = 0
	ExitValidation          = 1
	ExitNotFound            = 2
	ExitSystem              = 3
	ExitExternalCommand     = 4
	ExitLockContention      = 5
	ExitCancelled           = 130
)

// exitCoder is implemented by errors (e.g. a signal-driven cancellation)
// that know their own exit code rather than falling through classification.
type exitCoder interface {
	ExitCode() int
}

// ExitCodeFor classifies an error into one of the canonical exit codes.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}

	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}

	var lockErr *store.LockContentionError
	if errors.As(err, &lockErr) {
		return ExitLockContention
	}
	var notHolder *store.LockNotHolderError
	if errors.As(err, &notHolder) {
		return ExitLockContention
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ExitNotFound
	}

	var cycle *stackgraph.CycleDetected
	if errors.As(err, &cycle) {
		return ExitValidation
	}
	var parentNotFound *stackgraph.ParentNotFound
	if errors.As(err, &parentNotFound) {
		return ExitNotFound
	}
	var depthExceeded *stackgraph.DepthExceeded
	if errors.As(err, &depthExceeded) {
		return ExitValidation
	}

	var invalidTransition *store.InvalidTransitionError
	if errors.As(err, &invalidTransition) {
		return ExitValidation
	}
	var versionConflict *store.VersionConflictError
	if errors.As(err, &versionConflict) {
		return ExitSystem
	}

	var validation *store.ValidationError
	if errors.As(err, &validation) {
		return ExitValidation
	}
	var cliValidation validationError
	if errors.As(err, &cliValidation) {
		return ExitValidation
	}
	var alreadyExists *store.AlreadyExistsError
	if errors.As(err, &alreadyExists) {
		return ExitValidation
	}

	var recoverable models.RecoverableError
	if errors.As(err, &recoverable) {
		return ExitSystem
	}

	return ExitSystem
}
