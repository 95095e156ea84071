// Package cleaner runs the Periodic Cleaner: a cooperative background sweep
// that detects orphaned sessions and stale queue entries and deletes them
// per policy, scheduled by robfig/cron/v3 on a configurable interval.
package cleaner

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentrain/mergetrain/internal/adapters"
	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/store"
)

// DefaultInterval is the cleaner's default sweep cadence.
const DefaultInterval = time.Hour

// Config controls one sweep.
type Config struct {
	DryRun      bool
	OrphanAge   time.Duration // default 24h
	QueueMaxAge time.Duration // default 72h
	AgentMaxAge time.Duration // default 7 * 24h, registry retention
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		OrphanAge:   24 * time.Hour,
		QueueMaxAge: 72 * time.Hour,
		AgentMaxAge: 7 * 24 * time.Hour,
	}
}

// SkipReason explains why a candidate orphan was left alone.
type SkipReason string

const (
	SkipReasonActiveBead SkipReason = "active_bead"
)

// Report is the structured result of one sweep.
type Report struct {
	CleanedSessions     []string              `json:"cleaned_sessions"`
	SkippedSessions     map[string]SkipReason `json:"skipped_sessions,omitempty"`
	RemovedQueueEntries int64                 `json:"removed_queue_entries"`
	RemovedStaleAgents  int                   `json:"removed_stale_agents"`
	DryRun              bool                  `json:"dry_run"`
}

// Sweep runs one cleaning pass. sc is optional; a nil adapter treats every
// session as having a live workspace (missing-workspace orphans can't be
// detected without it), matching how Doctor's drift detection degrades.
func Sweep(ctx context.Context, db *sql.DB, sc adapters.SourceControl, beads adapters.BeadTracker, cfg Config) (*Report, error) {
	report := &Report{
		SkippedSessions: map[string]SkipReason{},
		DryRun:          cfg.DryRun,
	}

	sessions, err := store.ListSessions(db)
	if err != nil {
		return nil, err
	}

	liveSet := map[string]bool{}
	if sc != nil {
		live, err := sc.WorkspaceList(ctx)
		if err != nil {
			slog.Error("cleaner: workspace list failed", "error", err)
		} else {
			for _, w := range live {
				liveSet[w] = true
			}
		}
	}

	if stats, err := store.Stats(db); err != nil {
		slog.Error("cleaner: queue stats failed", "error", err)
	} else {
		depth := 0
		for status, n := range stats.Counts {
			if !status.IsTerminal() {
				depth += n
			}
		}
		QueueDepth.Set(float64(depth))
	}

	now := time.Now().UTC()
	for _, s := range sessions {
		if s.WorkspaceState.IsTerminal() {
			continue
		}

		missing := sc != nil && !liveSet[s.Name]
		age := now.Sub(s.UpdatedAt)
		activeBead := hasActiveBead(ctx, s, beads)

		// A session is a cleanup candidate if its workspace is gone or it's
		// simply stale; a session that is neither is untouched, not
		// reported at all. Among candidates: an active bead always wins
		// and skips the session; otherwise it's cleanable (whether the
		// reason was a missing workspace or just old age).
		candidate := missing || age > cfg.OrphanAge
		if !candidate {
			continue
		}

		switch {
		case activeBead:
			report.SkippedSessions[s.Name] = SkipReasonActiveBead
		default:
			if !cfg.DryRun {
				if err := store.DeleteSession(db, s.Name); err != nil {
					slog.Error("cleaner: delete orphan session failed", "session", s.Name, "error", err)
					continue
				}
				OrphansCleanedTotal.Inc()
			}
			report.CleanedSessions = append(report.CleanedSessions, s.Name)
		}
	}

	if !cfg.DryRun {
		removed, err := store.CleanupQueueEntries(db, cfg.QueueMaxAge)
		if err != nil {
			return report, err
		}
		report.RemovedQueueEntries = removed

		removedAgents, err := store.PruneStaleAgents(db, cfg.AgentMaxAge)
		if err != nil {
			return report, err
		}
		report.RemovedStaleAgents = int(removedAgents)

		if _, err := store.PruneOrphanedTransitions(db); err != nil {
			return report, err
		}
	}

	return report, nil
}

func hasActiveBead(ctx context.Context, s models.Session, beads adapters.BeadTracker) bool {
	if s.Metadata.BeadID == "" {
		return false
	}
	if beads == nil {
		return true
	}
	bead, err := beads.Get(ctx, s.Metadata.BeadID)
	if err != nil {
		return true
	}
	return bead.Status == adapters.BeadStatusInProgress
}

// Scheduler drives Sweep on a robfig/cron schedule, the way
// r3e-network-service_layer's automation service schedules its background
// jobs instead of a hand-rolled time.Ticker loop.
type Scheduler struct {
	cron   *cron.Cron
	db     *sql.DB
	sc     adapters.SourceControl
	beads  adapters.BeadTracker
	cfg    Config
}

// NewScheduler builds a Scheduler that runs Sweep against db with the given
// adapters and cfg; the cron expression is passed to Start.
func NewScheduler(db *sql.DB, sc adapters.SourceControl, beads adapters.BeadTracker, cfg Config) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		db:    db,
		sc:    sc,
		beads: beads,
		cfg:   cfg,
	}
}

// Start schedules the sweep at spec (e.g. "@hourly") and begins running it.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		report, err := Sweep(context.Background(), s.db, s.sc, s.beads, s.cfg)
		if err != nil {
			slog.Error("cleaner: sweep failed", "error", err)
			return
		}
		slog.Info("cleaner: sweep complete",
			"cleaned", len(report.CleanedSessions),
			"skipped", len(report.SkippedSessions),
			"removed_queue_entries", report.RemovedQueueEntries,
		)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
