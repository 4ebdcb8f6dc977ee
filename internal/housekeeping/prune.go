// Package housekeeping schedules background maintenance against a
// running Nexus coordinator: pruning escalation checkpoint branches that
// have aged past their retention window.
package housekeeping

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexusdev/nexus/internal/hostgit"
)

// DefaultRetention is how long a checkpoint branch survives before
// CheckpointPruner deletes it.
const DefaultRetention = 7 * 24 * time.Hour

// CheckpointPruner periodically deletes checkpoint branches older than
// Retention.
type CheckpointPruner struct {
	Host      *hostgit.Host
	Retention time.Duration
	Logger    *log.Logger
}

// NewCheckpointPruner builds a pruner with DefaultRetention.
func NewCheckpointPruner(host *hostgit.Host, logger *log.Logger) *CheckpointPruner {
	return &CheckpointPruner{Host: host, Retention: DefaultRetention, Logger: logger}
}

// Prune deletes every checkpoint branch older than p.Retention.
func (p *CheckpointPruner) Prune(ctx context.Context) error {
	checkpoints, err := p.Host.ListCheckpoints(ctx)
	if err != nil {
		return fmt.Errorf("housekeeping: list checkpoints: %w", err)
	}
	cutoff := time.Now().Add(-p.Retention)
	for _, cp := range checkpoints {
		if cp.CreatedAt.IsZero() || cp.CreatedAt.After(cutoff) {
			continue
		}
		if err := p.Host.DeleteCheckpoint(ctx, cp.BranchName); err != nil {
			p.logf("prune checkpoint %s: %v", cp.BranchName, err)
			continue
		}
		p.logf("pruned checkpoint %s (created %s)", cp.BranchName, cp.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func (p *CheckpointPruner) logf(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}

// Scheduler runs CheckpointPruner on a cron schedule until Stop is called.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler builds a Scheduler that runs pruner.Prune on spec (standard
// 5-field cron syntax, e.g. "0 3 * * *" for daily at 03:00).
func NewScheduler(spec string, pruner *CheckpointPruner) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := pruner.Prune(context.Background()); err != nil {
			pruner.logf("scheduled prune failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("housekeeping: invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c}, nil
}

// Start begins running the scheduled job in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight run to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
