package exitengine

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/guardian/internal/contracts"
)

// RuleRepository persists exit rules and committed actions.
// 인터페이스로 분리: 엔진 테스트는 인메모리 구현을 씀.
type RuleRepository interface {
	SaveRule(ctx context.Context, rule *contracts.ExitRule) error
	LoadRules(ctx context.Context) ([]*contracts.ExitRule, error)
	DeleteRule(ctx context.Context, ticket int64) error
	SaveAction(ctx context.Context, event *contracts.ActionEvent) error
	RecentActions(ctx context.Context, limit int) ([]contracts.ActionEvent, error)
	ActionsSince(ctx context.Context, since time.Time) ([]contracts.ActionEvent, error)
}

// Repository is the PostgreSQL-backed rule repository
// ⭐ SSOT: 보호 규칙 영속화는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new exit rule repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveRule upserts a rule keyed by ticket.
// 베뉴 응답 확인 후에만 호출됨 (성공 확정 전 영속화 금지).
func (r *Repository) SaveRule(ctx context.Context, rule *contracts.ExitRule) error {
	query := `
		INSERT INTO guardian.exit_rules (
			ticket, symbol, direction, entry_price, initial_stop, initial_target,
			opened_volume, potential_profit, risk, risk_reward,
			breakeven_trigger_pct, partial_trigger_pct, partial_close_fraction,
			min_partial_volume, trailing_atr_multiple, min_trail_step_pct,
			breakeven_triggered, trailing_active, last_trailing_stop, last_tighten_time,
			hybrid_adjusted, hybrid_stop_target, partial_done, partial_skip_reason,
			disallowed_streak, disallowed_notified, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28
		)
		ON CONFLICT (ticket) DO UPDATE SET
			breakeven_triggered = EXCLUDED.breakeven_triggered,
			trailing_active = EXCLUDED.trailing_active,
			last_trailing_stop = EXCLUDED.last_trailing_stop,
			last_tighten_time = EXCLUDED.last_tighten_time,
			hybrid_adjusted = EXCLUDED.hybrid_adjusted,
			partial_done = EXCLUDED.partial_done,
			partial_skip_reason = EXCLUDED.partial_skip_reason,
			disallowed_streak = EXCLUDED.disallowed_streak,
			disallowed_notified = EXCLUDED.disallowed_notified,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		rule.Ticket, rule.Symbol, rule.Direction, rule.EntryPrice, rule.InitialStop, rule.InitialTarget,
		rule.OpenedVolume, rule.PotentialProfit, rule.Risk, rule.RiskReward,
		rule.Config.BreakevenTriggerPct, rule.Config.PartialTriggerPct, rule.Config.PartialCloseFraction,
		rule.Config.MinPartialVolume, rule.Config.TrailingATRMultiple, rule.Config.MinTrailStepPct,
		rule.BreakevenTriggered, rule.TrailingActive, rule.LastTrailingStop, rule.LastTightenTime,
		rule.HybridAdjusted, rule.HybridStopTarget, rule.PartialDone, rule.PartialSkipReason,
		rule.DisallowedStreak, rule.DisallowedNotified, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save exit rule %d: %w", rule.Ticket, err)
	}
	return nil
}

// LoadRules loads all persisted rules (process start)
func (r *Repository) LoadRules(ctx context.Context) ([]*contracts.ExitRule, error) {
	query := `
		SELECT ticket, symbol, direction, entry_price, initial_stop, initial_target,
		       opened_volume, potential_profit, risk, risk_reward,
		       breakeven_trigger_pct, partial_trigger_pct, partial_close_fraction,
		       min_partial_volume, trailing_atr_multiple, min_trail_step_pct,
		       breakeven_triggered, trailing_active, last_trailing_stop, last_tighten_time,
		       hybrid_adjusted, hybrid_stop_target, partial_done, partial_skip_reason,
		       disallowed_streak, disallowed_notified, created_at, updated_at
		FROM guardian.exit_rules
		ORDER BY ticket ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load exit rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*contracts.ExitRule, 0)

	for rows.Next() {
		var rule contracts.ExitRule
		err := rows.Scan(
			&rule.Ticket, &rule.Symbol, &rule.Direction, &rule.EntryPrice, &rule.InitialStop, &rule.InitialTarget,
			&rule.OpenedVolume, &rule.PotentialProfit, &rule.Risk, &rule.RiskReward,
			&rule.Config.BreakevenTriggerPct, &rule.Config.PartialTriggerPct, &rule.Config.PartialCloseFraction,
			&rule.Config.MinPartialVolume, &rule.Config.TrailingATRMultiple, &rule.Config.MinTrailStepPct,
			&rule.BreakevenTriggered, &rule.TrailingActive, &rule.LastTrailingStop, &rule.LastTightenTime,
			&rule.HybridAdjusted, &rule.HybridStopTarget, &rule.PartialDone, &rule.PartialSkipReason,
			&rule.DisallowedStreak, &rule.DisallowedNotified, &rule.CreatedAt, &rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exit rule: %w", err)
		}
		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exit rules: %w", err)
	}
	return rules, nil
}

// DeleteRule removes the persisted rule for a ticket
func (r *Repository) DeleteRule(ctx context.Context, ticket int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM guardian.exit_rules WHERE ticket = $1`, ticket)
	if err != nil {
		return fmt.Errorf("failed to delete exit rule %d: %w", ticket, err)
	}
	return nil
}

// SaveAction appends a committed action to the audit trail
func (r *Repository) SaveAction(ctx context.Context, event *contracts.ActionEvent) error {
	query := `
		INSERT INTO guardian.exit_actions (
			id, ticket, symbol, action, old_value, new_value, price, factors, reason, committed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.Ticket, event.Symbol, event.Action,
		event.OldValue, event.NewValue, event.Price, event.Factors, event.Reason, event.At,
	)
	if err != nil {
		return fmt.Errorf("failed to save action %s: %w", event.ID, err)
	}
	return nil
}

// RecentActions returns the latest committed actions (newest first)
func (r *Repository) RecentActions(ctx context.Context, limit int) ([]contracts.ActionEvent, error) {
	query := `
		SELECT id, ticket, symbol, action, old_value, new_value, price, factors, reason, committed_at
		FROM guardian.exit_actions
		ORDER BY committed_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent actions: %w", err)
	}
	defer rows.Close()

	actions := make([]contracts.ActionEvent, 0, limit)

	for rows.Next() {
		var ev contracts.ActionEvent
		err := rows.Scan(
			&ev.ID, &ev.Ticket, &ev.Symbol, &ev.Action,
			&ev.OldValue, &ev.NewValue, &ev.Price, &ev.Factors, &ev.Reason, &ev.At,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate actions: %w", err)
	}
	return actions, nil
}

// ActionsSince returns actions committed at or after the given time,
// newest first. 일일 요약처럼 기간이 의미 있는 집계용 — limit 기반의
// RecentActions는 조용한 날에 전날 액션까지 끌어옴.
func (r *Repository) ActionsSince(ctx context.Context, since time.Time) ([]contracts.ActionEvent, error) {
	query := `
		SELECT id, ticket, symbol, action, old_value, new_value, price, factors, reason, committed_at
		FROM guardian.exit_actions
		WHERE committed_at >= $1
		ORDER BY committed_at DESC
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	actions := make([]contracts.ActionEvent, 0)

	for rows.Next() {
		var ev contracts.ActionEvent
		err := rows.Scan(
			&ev.ID, &ev.Ticket, &ev.Symbol, &ev.Action,
			&ev.OldValue, &ev.NewValue, &ev.Price, &ev.Factors, &ev.Reason, &ev.At,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate actions: %w", err)
	}
	return actions, nil
}
