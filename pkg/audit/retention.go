package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/ganymede/pkg/config"
)

// Pruner removes audit records past the retention policy.
type Pruner struct {
	store  *Store
	policy config.RetentionConfig
	logger *slog.Logger
}

// NewPruner creates a pruner applying policy against store.
func NewPruner(store *Store, policy config.RetentionConfig, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{store: store, policy: policy, logger: logger}
}

// Prune applies age-based and count-based pruning and returns the total
// number of records removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.policy.Days > 0 {
		cutoff := time.Now().AddDate(0, 0, -p.policy.Days)
		removed, err := p.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return total, err
		}
		total += removed
	}

	if p.policy.MaxRecords > 0 {
		removed, err := p.store.DeleteOldestBeyond(ctx, p.policy.MaxRecords)
		if err != nil {
			return total, err
		}
		total += removed
	}

	if total > 0 {
		p.logger.Info("audit records pruned",
			"removed", total,
			"retention_days", p.policy.Days,
			"max_records", p.policy.MaxRecords)
	}
	return total, nil
}

// Scheduler runs the pruner on a cron schedule.
type Scheduler struct {
	pruner   *Pruner
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewScheduler creates a scheduler for pruner on the given cron schedule.
func NewScheduler(pruner *Pruner, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pruner:   pruner,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start begins scheduled pruning. An empty schedule disables it.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.schedule == "" {
		s.logger.Info("audit retention schedule not configured, pruning disabled")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.pruner.Prune(ctx); err != nil {
			s.logger.Error("scheduled audit pruning failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule audit pruning: %w", err)
	}

	s.cron.Start()
	s.logger.Info("audit retention scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts scheduled pruning, waiting for a running prune to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
