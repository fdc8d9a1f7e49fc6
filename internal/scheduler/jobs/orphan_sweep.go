// Package jobs - 유지보수 작업 구현
package jobs

import (
	"context"

	"github.com/wonny/guardian/internal/exitengine"
	"github.com/wonny/guardian/pkg/logger"
)

// OrphanSweepJob deletes persisted rules that the engine no longer tracks.
// 사이클 내 reconcile의 안전망: 크래시 타이밍에 따라 DB에만 남은 규칙을 정리.
type OrphanSweepJob struct {
	engine *exitengine.Engine
	repo   exitengine.RuleRepository
	logger *logger.Logger
}

// NewOrphanSweepJob creates a new orphan sweep job
func NewOrphanSweepJob(engine *exitengine.Engine, repo exitengine.RuleRepository, log *logger.Logger) *OrphanSweepJob {
	return &OrphanSweepJob{
		engine: engine,
		repo:   repo,
		logger: log,
	}
}

// Name returns the job name
func (j *OrphanSweepJob) Name() string {
	return "orphan_sweep"
}

// Schedule returns the cron schedule (hourly)
func (j *OrphanSweepJob) Schedule() string {
	return "0 0 * * * *"
}

// Run deletes persisted rules with no in-memory counterpart
func (j *OrphanSweepJob) Run(ctx context.Context) error {
	persisted, err := j.repo.LoadRules(ctx)
	if err != nil {
		return err
	}

	removed := 0
	for _, rule := range persisted {
		if j.engine.Rule(rule.Ticket) != nil {
			continue
		}
		if err := j.repo.DeleteRule(ctx, rule.Ticket); err != nil {
			j.logger.WithError(err).WithField("ticket", rule.Ticket).Warn("Failed to delete orphaned rule record")
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.WithField("removed", removed).Info("Orphaned rule records swept")
	}
	return nil
}
