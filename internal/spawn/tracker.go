// Package spawn implements the transactional spawn pipeline: it records the
// ordered phases of bringing up a new agent workspace and, on failure or
// shutdown signal, rolls them back in reverse order.
package spawn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentrain/mergetrain/internal/adapters"
)

// terminateGrace is how long Rollback waits after a graceful terminate
// request before forcing the agent process down. A var, not a const, so
// tests can shrink it rather than sleeping a real 500ms per case.
var terminateGrace = 500 * time.Millisecond

// Phase identifies one completed step of a spawn transaction.
type Phase int

const (
	PhaseWorkspaceCreated Phase = iota
	PhaseBeadStatusUpdated
	PhaseAgentSpawned
)

// Tracker owns the rollback state for exactly one spawn transaction. A
// Tracker value must not be shared across concurrent spawns: phase marking
// is an unsynchronized struct-field update, valid only because a single
// goroutine owns the Tracker for the lifetime of its spawn.
type Tracker struct {
	sessionName string
	beadID      string
	workspace   string

	completed map[Phase]bool
	agentPID  int

	sc    adapters.SourceControl
	beads adapters.BeadTracker
	proc  adapters.ProcessSpawner
}

// NewTracker returns a Tracker for the named session, wired to the given
// adapters.
func NewTracker(sessionName, beadID string, sc adapters.SourceControl, beads adapters.BeadTracker, proc adapters.ProcessSpawner) *Tracker {
	return &Tracker{
		sessionName: sessionName,
		beadID:      beadID,
		completed:   map[Phase]bool{},
		sc:          sc,
		beads:       beads,
		proc:        proc,
	}
}

// MarkWorkspaceCreated records that the workspace now exists at path.
func (t *Tracker) MarkWorkspaceCreated(path string) {
	t.workspace = path
	t.completed[PhaseWorkspaceCreated] = true
}

// MarkBeadStatusUpdated records that the bead was flipped to in_progress.
func (t *Tracker) MarkBeadStatusUpdated() {
	t.completed[PhaseBeadStatusUpdated] = true
}

// MarkAgentSpawned records the spawned agent's pid.
func (t *Tracker) MarkAgentSpawned(pid int) {
	t.agentPID = pid
	t.completed[PhaseAgentSpawned] = true
}

// NeedsRollback reports whether any phase has completed.
func (t *Tracker) NeedsRollback() bool {
	return len(t.completed) > 0
}

// CompletedPhases returns the set of phases marked so far.
func (t *Tracker) CompletedPhases() map[Phase]bool {
	out := make(map[Phase]bool, len(t.completed))
	for k, v := range t.completed {
		out[k] = v
	}
	return out
}

// Rollback undoes completed phases in reverse order: the agent process is
// always terminated first, and synchronously, since a live process could
// re-touch the workspace while the bead reset or workspace abandon are
// still running. Each compensation is best-effort: a failure is logged but
// never skips the remaining compensations. The bead reset and workspace
// abandon are independent of each other and run concurrently via errgroup.
func (t *Tracker) Rollback(ctx context.Context) error {
	if !t.NeedsRollback() {
		return nil
	}

	var termErr error
	if t.completed[PhaseAgentSpawned] {
		if err := t.terminateAgent(ctx); err != nil {
			termErr = fmt.Errorf("terminate agent pid %d: %w", t.agentPID, err)
			slog.Error("rollback: agent terminate failed, continuing with remaining compensations",
				"pid", t.agentPID, "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if t.completed[PhaseBeadStatusUpdated] {
		g.Go(func() error {
			if err := t.beads.SetStatus(gctx, t.beadID, adapters.BeadStatusOpen); err != nil {
				slog.Error("rollback: bead reset failed", "bead_id", t.beadID, "error", err)
				return fmt.Errorf("reset bead %s status: %w", t.beadID, err)
			}
			return nil
		})
	}

	if t.completed[PhaseWorkspaceCreated] {
		g.Go(func() error {
			if err := t.sc.WorkspaceAbandon(gctx, t.sessionName); err != nil {
				slog.Error("rollback: workspace abandon failed", "session", t.sessionName, "error", err)
				return fmt.Errorf("abandon workspace %s: %w", t.sessionName, err)
			}
			return nil
		})
	}

	return errors.Join(termErr, g.Wait())
}

// terminateAgent sends a graceful terminate request, waits briefly for the
// process to exit on its own, then forces it down regardless of whether the
// graceful request succeeded.
func (t *Tracker) terminateAgent(ctx context.Context) error {
	graceErr := t.proc.Terminate(ctx, t.agentPID, true)
	if graceErr != nil {
		slog.Warn("rollback: graceful terminate failed, waiting before forceful terminate",
			"pid", t.agentPID, "error", graceErr)
	}

	select {
	case <-ctx.Done():
	case <-time.After(terminateGrace):
	}

	if err := t.proc.Terminate(ctx, t.agentPID, false); err != nil {
		return err
	}
	return nil
}
