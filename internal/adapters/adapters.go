// Package adapters defines the thin external-collaborator interfaces the
// coordination core invokes but never implements directly: source control,
// the bead/issue tracker, process spawning, and the terminal multiplexer.
// Production wiring lives elsewhere (a real jj/git shell-out, a real bead
// store); Fake implementations here back the test suite.
package adapters

import "context"

// RebaseResult reports the outcome of a rebase attempt.
type RebaseResult struct {
	OK        bool
	Conflicts []string
}

// SourceControl is the minimal surface the core needs from the underlying
// VCS. The core treats every VCS internal as opaque and relies only on exit
// status and these small textual outputs.
type SourceControl interface {
	WorkspaceCreate(ctx context.Context, name, base string) (path string, err error)
	WorkspaceAbandon(ctx context.Context, name string) error
	WorkspaceList(ctx context.Context) ([]string, error)
	Rebase(ctx context.Context, workspace, onto string) (RebaseResult, error)
	Root(ctx context.Context) (string, error)
}

// BeadStatus is the status field on a bead/issue as seen by the core.
type BeadStatus string

const (
	BeadStatusOpen       BeadStatus = "open"
	BeadStatusInProgress BeadStatus = "in_progress"
	BeadStatusDone       BeadStatus = "done"
)

// Bead is the subset of issue-tracker fields the core reads.
type Bead struct {
	ID     string
	Status BeadStatus
}

// BeadTracker is the external issue store the core reads/writes by id. IDs
// are opaque strings matching [a-z]{2}-[0-9a-f]+.
type BeadTracker interface {
	Get(ctx context.Context, id string) (Bead, error)
	SetStatus(ctx context.Context, id string, status BeadStatus) error
	ListReady(ctx context.Context) ([]string, error)
}

// ProcessSpawner launches an agent process with a working directory and
// environment, and supports graceful (SIGTERM) then forceful (SIGKILL)
// termination.
type ProcessSpawner interface {
	Spawn(ctx context.Context, dir string, env []string, args []string) (pid int, err error)
	Terminate(ctx context.Context, pid int, grace bool) error
}

// TerminalMultiplexer is a thin, best-effort adapter; its failures are
// never fatal to a spawn or merge operation.
type TerminalMultiplexer interface {
	NewTab(name, cwd string) error
	FocusTab(name string) error
}
