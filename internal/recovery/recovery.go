// Package recovery implements startup and on-demand integrity checks: the
// store's header/size, in-flight Creating sessions left behind by a crash
// mid-spawn, and workspace/bead drift against the external adapters. It
// applies the configured fail_fast/warn/silent recovery policy to each
// finding. A failed header/size check under warn or silent sets
// Report.Repaired, but the store file itself is not rewritten or rebuilt,
// and nothing is written to the recovery log.
package recovery

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/agentrain/mergetrain/internal/adapters"
	"github.com/agentrain/mergetrain/internal/app"
	"github.com/agentrain/mergetrain/internal/store"
)

// minValidDBSize is the smallest a SQLite file can be and still contain a
// valid header (one page).
const minValidDBSize = 512

// Report summarizes one Doctor run.
type Report struct {
	Policy             app.RecoveryPolicy `json:"policy"`
	CorruptionDetected bool               `json:"corruption_detected"`
	// Repaired is set when corruption is found under the warn or silent
	// policy; Doctor does not modify the store file.
	Repaired           bool               `json:"repaired"`
	StuckSessions      []string           `json:"stuck_sessions"`
	StuckDeleted       bool               `json:"stuck_deleted"`
	DriftedWorkspaces  []string           `json:"drifted_workspaces"`
	Warnings           []string           `json:"warnings,omitempty"`
}

// ErrCorrupt is returned under the fail_fast policy when the store's header
// or size check fails.
type ErrCorrupt struct {
	Path string
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("store file %q failed header/size validation", e.Path)
}

// ErrStuckSessions is returned under the fail_fast policy when in-flight
// Creating sessions are found.
type ErrStuckSessions struct {
	Names []string
}

func (e *ErrStuckSessions) Error() string {
	return fmt.Sprintf("%d session(s) stuck in creating state", len(e.Names))
}

// Doctor runs the full integrity sweep against dbPath/db. sc and beads are
// optional (nil skips drift detection) — the adapters a live spawn pipeline
// would otherwise supply.
func Doctor(ctx context.Context, db *sql.DB, dbPath string, sc adapters.SourceControl, beads adapters.BeadTracker) (*Report, error) {
	cfg := app.EffectiveConfig()
	report := &Report{Policy: cfg.RecoveryPolicy}

	if err := checkHeader(dbPath); err != nil {
		report.CorruptionDetected = true
		switch cfg.RecoveryPolicy {
		case app.RecoveryPolicyFailFast:
			return report, &ErrCorrupt{Path: dbPath}
		case app.RecoveryPolicyWarn:
			report.Warnings = append(report.Warnings, err.Error())
			report.Repaired = true
		case app.RecoveryPolicySilent:
			report.Repaired = true
		}
	}

	stuck, err := store.StuckSessions(db)
	if err != nil {
		return report, err
	}
	report.StuckSessions = stuck
	if len(stuck) > 0 {
		switch cfg.RecoveryPolicy {
		case app.RecoveryPolicyFailFast:
			return report, &ErrStuckSessions{Names: stuck}
		case app.RecoveryPolicyWarn:
			report.Warnings = append(report.Warnings, fmt.Sprintf("deleting %d stuck session(s)", len(stuck)))
			if err := deleteStuck(db, stuck); err != nil {
				return report, err
			}
			report.StuckDeleted = true
		case app.RecoveryPolicySilent:
			if err := deleteStuck(db, stuck); err != nil {
				return report, err
			}
			report.StuckDeleted = true
		}
	}

	if sc != nil && beads != nil {
		drifted, err := detectDrift(ctx, db, sc, beads)
		if err != nil {
			return report, err
		}
		report.DriftedWorkspaces = drifted
	}

	return report, nil
}

func deleteStuck(db *sql.DB, names []string) error {
	for _, name := range names {
		if err := store.DeleteSession(db, name); err != nil {
			return err
		}
	}
	return nil
}

// detectDrift flags sessions whose workspace no longer exists under the
// source-control adapter, or whose bead has moved to Done behind the
// store's back.
func detectDrift(ctx context.Context, db *sql.DB, sc adapters.SourceControl, beads adapters.BeadTracker) ([]string, error) {
	sessions, err := store.ListSessions(db)
	if err != nil {
		return nil, err
	}

	live, err := sc.WorkspaceList(ctx)
	if err != nil {
		return nil, err
	}
	liveSet := make(map[string]bool, len(live))
	for _, w := range live {
		liveSet[w] = true
	}

	var drifted []string
	for _, s := range sessions {
		if s.WorkspaceState.IsTerminal() {
			continue
		}
		if !liveSet[s.Name] {
			drifted = append(drifted, s.Name)
			continue
		}
		if s.Metadata.BeadID == "" {
			continue
		}
		bead, err := beads.Get(ctx, s.Metadata.BeadID)
		if err != nil {
			continue
		}
		if bead.Status == adapters.BeadStatusDone {
			drifted = append(drifted, s.Name)
		}
	}
	return drifted, nil
}

func checkHeader(dbPath string) error {
	info, err := os.Stat(dbPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dbPath, err)
	}
	if info.Size() < minValidDBSize {
		return fmt.Errorf("%s is %d bytes, below the minimum valid SQLite page size", dbPath, info.Size())
	}

	f, err := os.Open(dbPath) //nolint:gosec // G304: dbPath is the caller's own configured store path
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, 16)
	if _, err := f.Read(header); err != nil {
		return fmt.Errorf("read header of %s: %w", dbPath, err)
	}
	if string(header) != "SQLite format 3\x00" {
		return fmt.Errorf("%s does not carry the SQLite magic header", dbPath)
	}
	return nil
}
