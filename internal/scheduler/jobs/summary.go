package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/internal/exitengine"
	"github.com/wonny/guardian/internal/notify"
	"github.com/wonny/guardian/pkg/logger"
)

// DailySummaryJob reports the day's committed actions to the user.
// 개별 액션 알림과 달리 하루 한 번의 집계 뷰.
type DailySummaryJob struct {
	engine   *exitengine.Engine
	repo     exitengine.RuleRepository
	notifier notify.TextNotifier
	logger   *logger.Logger
}

// NewDailySummaryJob creates a new daily summary job
func NewDailySummaryJob(engine *exitengine.Engine, repo exitengine.RuleRepository, notifier notify.TextNotifier, log *logger.Logger) *DailySummaryJob {
	return &DailySummaryJob{
		engine:   engine,
		repo:     repo,
		notifier: notifier,
		logger:   log,
	}
}

// Name returns the job name
func (j *DailySummaryJob) Name() string {
	return "daily_summary"
}

// Schedule returns the cron schedule (22:00 daily)
func (j *DailySummaryJob) Schedule() string {
	return "0 0 22 * * *"
}

// Run sends the aggregated action summary.
// 최근 24시간 기준: limit 기반 조회는 조용한 날 전날 액션까지 다시 세게 됨.
func (j *DailySummaryJob) Run(ctx context.Context) error {
	actions, err := j.repo.ActionsSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}

	counts := make(map[contracts.ActionType]int)
	for _, a := range actions {
		counts[a.Action]++
	}

	status := j.engine.Status()
	msg := fmt.Sprintf(
		"📋 일일 보호 요약\n활성 규칙: %d\n본전 이동: %d\n부분 익절: %d\n트레일링: %d\n조임: %d\n긴급 청산: %d",
		status.ActiveRules,
		counts[contracts.ActionBreakeven],
		counts[contracts.ActionPartialClose],
		counts[contracts.ActionTrail],
		counts[contracts.ActionTighten],
		counts[contracts.ActionCriticalExit],
	)

	if err := j.notifier.SendText(ctx, msg); err != nil {
		return err
	}

	j.logger.WithField("actions", len(actions)).Info("Daily summary sent")
	return nil
}
