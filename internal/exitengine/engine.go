package exitengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/internal/marketdata"
	"github.com/wonny/guardian/internal/notify"
	"github.com/wonny/guardian/internal/risk"
	"github.com/wonny/guardian/internal/venue"
	"github.com/wonny/guardian/pkg/config"
	"github.com/wonny/guardian/pkg/logger"
)

// 개별 규칙 평가에 허용되는 최대 시간.
// 외부 호출 하나가 멈춰도 나머지 포지션 보호가 지연되지 않도록 함.
const ruleEvalTimeout = 10 * time.Second

// recentEventsCap in-memory 최근 액션 링 크기 (상태 API용)
const recentEventsCap = 50

// Engine is the exit evaluation loop.
// ⭐ SSOT: 보호 상태 전이는 이 루프에서만 커밋됨
//
// 고정 주기(기본 30초)의 단일 반복 작업이 전체 규칙을 순회.
// 포지션당 고루틴이 아니라 사이클당 한 번의 동기 패스 — 사이클은 절대
// 겹치지 않음 (완료 후 재무장).
type Engine struct {
	cfg        config.EngineConfig
	ruleCfg    contracts.RuleConfig
	store      *RuleStore
	repo       RuleRepository
	dispatcher *Dispatcher
	data       marketdata.Provider
	stream     *marketdata.QuoteStream
	notifier   notify.Notifier
	metrics    *Metrics
	logger     *logger.Logger

	mu           sync.RWMutex
	running      bool
	cycleCount   int64
	lastCycleAt  time.Time
	lastCycleDur time.Duration
	recent       []*contracts.ActionEvent
}

// NewEngine wires the evaluation loop.
// 전역 싱글턴 없음: 프로세스 시작 시 한 번 구성해서 주입.
func NewEngine(
	cfg config.EngineConfig,
	ruleCfg contracts.RuleConfig,
	store *RuleStore,
	repo RuleRepository,
	dispatcher *Dispatcher,
	data marketdata.Provider,
	notifier notify.Notifier,
	metrics *Metrics,
	log *logger.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		ruleCfg:    ruleCfg,
		store:      store,
		repo:       repo,
		dispatcher: dispatcher,
		data:       data,
		notifier:   notifier,
		metrics:    metrics,
		logger:     log.WithComponent("exit_engine"),
		recent:     make([]*contracts.ActionEvent, 0, recentEventsCap),
	}
}

// SetQuoteStream attaches an optional live quote cache.
// 스냅샷 가격보다 신선한 호가가 있으면 그쪽을 우선함.
func (e *Engine) SetQuoteStream(stream *marketdata.QuoteStream) {
	e.stream = stream
}

// Restore loads persisted rules into the store.
// 재배포 중에도 보호 상태가 유실되지 않도록 시작 시 한 번 호출.
// 고아 규칙 정리는 첫 사이클의 포지션 스냅샷 대조에서 처리됨.
func (e *Engine) Restore(ctx context.Context) error {
	rules, err := e.repo.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore exit rules: %w", err)
	}

	e.store.Reload(rules)
	e.logger.WithField("rules", len(rules)).Info("Exit rules restored")
	return nil
}

// Run executes evaluation cycles until the context is cancelled.
// 취소 시 진행 중인 사이클을 끝까지 마친 뒤 재무장하지 않음 (graceful).
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.logger.WithFields(map[string]interface{}{
		"interval":       e.cfg.CycleInterval.String(),
		"atr_timeframe":  e.cfg.ATRTimeframe,
		"atr_period":     e.cfg.ATRPeriod,
		"tighten_cooldown": e.cfg.TightenCooldown.String(),
	}).Info("Starting exit engine")

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	// 첫 사이클은 기동 직후 바로 실행
	e.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			e.logger.Info("Exit engine stopped")
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle performs one bounded synchronous pass over all rules
func (e *Engine) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	positions, err := e.dispatcher.ListOpenPositions(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to fetch position snapshot, cycle skipped")
		return
	}

	byTicket := make(map[int64]contracts.Position, len(positions))
	live := make(map[int64]bool, len(positions))
	for _, pos := range positions {
		byTicket[pos.Ticket] = pos
		live[pos.Ticket] = true
	}

	// 신규 포지션 감지 → 규칙 생성
	for _, pos := range positions {
		if e.store.Get(pos.Ticket) == nil {
			e.adoptPosition(ctx, pos)
		}
	}

	// 베뉴에서 사라진 티켓 → 규칙 제거 (청산 확정)
	for _, ticket := range e.store.Reconcile(live) {
		if err := e.repo.DeleteRule(ctx, ticket); err != nil {
			e.logger.WithError(err).WithField("ticket", ticket).Error("Failed to delete orphaned rule")
		}
		e.logger.WithField("ticket", ticket).Info("Position closed at venue, rule removed")
	}

	// 규칙별 평가: 한 규칙의 오류가 다른 규칙을 막지 않음
	for _, rule := range e.store.All() {
		pos, ok := byTicket[rule.Ticket]
		if !ok {
			continue
		}

		ruleCtx, cancel := context.WithTimeout(ctx, ruleEvalTimeout)
		if err := e.evaluateRule(ruleCtx, rule, pos); err != nil {
			if e.metrics != nil {
				e.metrics.RuleEvalErrors.Inc()
			}
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"ticket": rule.Ticket,
				"symbol": rule.Symbol,
			}).Warn("Rule evaluation failed, deferred to next cycle")
		}
		cancel()

		if ctx.Err() != nil {
			break
		}
	}

	elapsed := time.Since(start)

	e.mu.Lock()
	e.cycleCount++
	e.lastCycleAt = start
	e.lastCycleDur = elapsed
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.CyclesTotal.Inc()
		e.metrics.CycleDuration.Observe(elapsed.Seconds())
		e.metrics.ActiveRules.Set(float64(e.store.Count()))
	}

	e.logger.WithFields(map[string]interface{}{
		"rules":   e.store.Count(),
		"elapsed": elapsed.String(),
	}).Debug("Cycle complete")
}

// adoptPosition creates a rule for a newly detected position.
// 설정 오류(손절/목표 미설정, 형식 위반)는 생성 시점에 거부 — 스토어에
// 절대 들어가지 않음.
func (e *Engine) adoptPosition(ctx context.Context, pos contracts.Position) {
	if pos.StopLoss == 0 || pos.TakeProfit == 0 {
		e.logger.WithFields(map[string]interface{}{
			"ticket": pos.Ticket,
			"symbol": pos.Symbol,
		}).Debug("Position has no stop/target, cannot protect")
		return
	}

	rule, err := contracts.NewExitRule(
		pos.Ticket, pos.Symbol, pos.Direction,
		pos.OpenPrice, pos.StopLoss, pos.TakeProfit, pos.Volume,
		e.ruleCfg,
	)
	if err != nil {
		e.logger.WithError(err).WithField("ticket", pos.Ticket).Error("Rejected malformed rule")
		return
	}

	// 변동성 급등 구간 진입분은 초기 손절을 한 번 완화할 수 있음 (one-shot)
	if fear, err := e.data.GetFearIndex(ctx); err == nil && fear >= e.cfg.FearIndexThreshold {
		widened := widenedStop(rule, e.cfg.HybridWidenFactor)
		rule.HybridStopTarget = &widened
		e.logger.WithFields(map[string]interface{}{
			"ticket":     rule.Ticket,
			"fear_index": fear,
			"widened_to": widened,
		}).Info("Elevated volatility at adoption, hybrid stop target set")
	}

	if err := e.store.Create(rule); err != nil {
		if !errors.Is(err, contracts.ErrDuplicateRule) {
			e.logger.WithError(err).WithField("ticket", rule.Ticket).Error("Failed to create rule")
		}
		return
	}
	if err := e.repo.SaveRule(ctx, rule); err != nil {
		e.logger.WithError(err).WithField("ticket", rule.Ticket).Error("Failed to persist new rule")
	}

	e.logger.WithFields(map[string]interface{}{
		"ticket":      rule.Ticket,
		"symbol":      rule.Symbol,
		"direction":   rule.Direction,
		"entry":       rule.EntryPrice,
		"stop":        rule.InitialStop,
		"target":      rule.InitialTarget,
		"volume":      rule.OpenedVolume,
		"risk_reward": rule.RiskReward,
	}).Info("Position adopted for protection")
}

// widenedStop computes the one-shot hybrid stop (initial risk × factor)
func widenedStop(rule *contracts.ExitRule, factor float64) float64 {
	if rule.Direction == contracts.DirectionBuy {
		return rule.EntryPrice - rule.Risk*factor
	}
	return rule.EntryPrice + rule.Risk*factor
}

// evaluateRule runs the per-rule state machine for one cycle.
// 우선순위: 긴급 청산 > 하이브리드 완화 > 부분 익절 > 본전 > 트레일 > 조임.
// 규칙당 사이클당 상태 변경 액션은 정확히 하나.
func (e *Engine) evaluateRule(ctx context.Context, rule *contracts.ExitRule, pos contracts.Position) error {
	price, spread := e.resolvePrice(rule, pos)
	if price <= 0 {
		return fmt.Errorf("no usable price for %s", rule.Symbol)
	}

	features, err := e.data.GetMarketQualityFeatures(ctx, rule.Symbol)
	if err != nil {
		// 피처 실패는 중립으로 강등: 기본 트리거로 계속 보호
		e.logger.WithError(err).WithField("symbol", rule.Symbol).Warn("Feature snapshot unavailable, using neutral")
		features = contracts.MarketQualityFeatures{
			Structure:       contracts.StructureRanging,
			Momentum:        contracts.MomentumGenuine,
			VolatilityState: contracts.VolatilityNormal,
			RelativeVolume:  1.0,
		}
	}

	warning := WarningScore(features)
	th := ComputeThresholds(features, rule.Config)
	progress := rule.ProgressPct(price)
	unrealizedR := rule.UnrealizedR(price)
	effectiveStop := rule.EffectiveStop(pos.StopLoss)

	// 1. 긴급 청산: 구조 붕괴 + 모멘텀 반전
	if warning >= e.cfg.CriticalWarningThreshold {
		return e.criticalExit(ctx, rule, pos, price, warning, "technical warning score exceeded", th.Factors)
	}

	// 1b. 손실 포지션 한정 시뮬레이터 veto (수익 중이면 절대 발동 안 함)
	if unrealizedR < 0 && warning >= e.cfg.VetoWarningThreshold {
		if atr, err := e.data.GetATR(ctx, rule.Symbol, e.cfg.ATRTimeframe, e.cfg.ATRPeriod); err == nil {
			out, simErr := risk.Simulate(rule.EntryPrice, rule.InitialStop, rule.InitialTarget, atr)
			if simErr == nil && out.VetoesContinuation(unrealizedR, e.cfg.VetoStopProbability) {
				reason := fmt.Sprintf("losing position with p_stop=%.2f and warning=%.2f", out.PStop, warning)
				return e.criticalExit(ctx, rule, pos, price, warning, reason, th.Factors)
			}
		}
	}

	// 2. 하이브리드 완화: breakeven 이전 단 한 번, 단조 가드의 유일한 예외
	if rule.HybridStopTarget != nil && !rule.HybridAdjusted && !rule.BreakevenTriggered {
		return e.hybridWiden(ctx, rule, price, effectiveStop)
	}

	// 3. 부분 익절
	if !rule.PartialDone && progress >= th.PartialPct {
		done, err := e.partialClose(ctx, rule, pos, price, th)
		if done || err != nil {
			return err
		}
		// 최소 볼륨 미달로 영구 스킵된 경우는 다음 우선순위로 진행
	}

	// 4. 본전 이동
	if !rule.BreakevenTriggered && progress >= th.BreakevenPct {
		return e.moveToBreakeven(ctx, rule, pos, price, spread, effectiveStop, th)
	}

	// 5~6. 트레일링 / 구조 조임 (둘 다 ATR 필요)
	if rule.TrailingActive {
		atr, err := e.data.GetATR(ctx, rule.Symbol, e.cfg.ATRTimeframe, e.cfg.ATRPeriod)
		if err != nil {
			if errors.Is(err, contracts.ErrInsufficientHistory) {
				// 기존 손절이 유효하므로 조용히 스킵 (에러 승격 없음)
				if e.metrics != nil {
					e.metrics.SkippedTrailing.Inc()
				}
				e.logger.WithField("symbol", rule.Symbol).Debug("ATR unavailable, trailing skipped")
				return nil
			}
			return fmt.Errorf("atr lookup failed: %w", err)
		}

		if candidate, ok := TrailingCandidate(rule, price, atr, effectiveStop); ok {
			return e.commitTrail(ctx, rule, price, effectiveStop, candidate, contracts.ActionTrail, nil)
		}

		if th.Mode == ModeTightened {
			return e.structureTighten(ctx, rule, price, atr, effectiveStop, th)
		}
	}

	// 7. no-op
	return nil
}

// criticalExit closes the full remaining position. Terminal.
func (e *Engine) criticalExit(ctx context.Context, rule *contracts.ExitRule, pos contracts.Position, price, warning float64, reason string, factors []string) error {
	e.logger.WithFields(map[string]interface{}{
		"ticket":  rule.Ticket,
		"symbol":  rule.Symbol,
		"warning": warning,
		"reason":  reason,
	}).Warn("Critical exit triggered")

	if err := e.dispatcher.CloseFull(ctx, rule.Ticket); err != nil {
		return e.handleVenueFailure(ctx, rule, "close_full", err)
	}

	event := contracts.NewActionEvent(rule.Ticket, rule.Symbol, contracts.ActionCriticalExit, pos.Volume, 0, price)
	event.Reason = reason
	event.Factors = factors

	e.store.Remove(rule.Ticket)
	if err := e.repo.DeleteRule(ctx, rule.Ticket); err != nil {
		e.logger.WithError(err).WithField("ticket", rule.Ticket).Error("Failed to delete rule after critical exit")
	}
	e.emit(ctx, event)
	return nil
}

// hybridWiden applies the one-shot pre-breakeven stop widening
func (e *Engine) hybridWiden(ctx context.Context, rule *contracts.ExitRule, price, effectiveStop float64) error {
	target := *rule.HybridStopTarget

	if err := e.dispatcher.ModifyStop(ctx, rule.Ticket, target); err != nil {
		return e.handleVenueFailure(ctx, rule, "modify_stop", err)
	}

	rule.HybridAdjusted = true
	event := contracts.NewActionEvent(rule.Ticket, rule.Symbol, contracts.ActionHybridWiden, effectiveStop, target, price)
	event.Reason = "elevated volatility at adoption"
	e.persistAndEmit(ctx, rule, event)
	return nil
}

// partialClose closes the configured fraction of the current volume.
// Returns done=true when a venue action was committed this cycle.
func (e *Engine) partialClose(ctx context.Context, rule *contracts.ExitRule, pos contracts.Position, price float64, th Thresholds) (bool, error) {
	closeVolume, ok := contracts.PartialVolume(pos.Volume, rule.Config.PartialCloseFraction, rule.Config.MinPartialVolume)
	if !ok {
		// 최소 단위 미달: 한 번만 기록하고 영구 스킵 (매 사이클 재시도 금지)
		rule.PartialDone = true
		rule.PartialSkipReason = fmt.Sprintf("close volume below venue minimum (open=%.2f fraction=%.2f min=%.2f)",
			pos.Volume, rule.Config.PartialCloseFraction, rule.Config.MinPartialVolume)
		e.commitRuleState(ctx, rule)
		e.logger.WithFields(map[string]interface{}{
			"ticket": rule.Ticket,
			"reason": rule.PartialSkipReason,
		}).Info("Partial close skipped permanently")
		return false, nil
	}

	if err := e.dispatcher.ClosePartial(ctx, rule.Ticket, closeVolume); err != nil {
		return false, e.handleVenueFailure(ctx, rule, "close_partial", err)
	}

	rule.PartialDone = true
	event := contracts.NewActionEvent(rule.Ticket, rule.Symbol, contracts.ActionPartialClose, pos.Volume, closeVolume, price)
	event.Factors = th.Factors
	event.Reason = fmt.Sprintf("profit progress reached %.0f%% trigger", th.PartialPct)
	e.persistAndEmit(ctx, rule, event)
	return true, nil
}

// moveToBreakeven moves the stop to entry (+spread buffer) and arms trailing
func (e *Engine) moveToBreakeven(ctx context.Context, rule *contracts.ExitRule, pos contracts.Position, price, spread, effectiveStop float64, th Thresholds) error {
	if spread == 0 {
		// 스트림 호가가 없으면 스냅샷 호가로 버퍼 계산 (실패 시 버퍼 0)
		if q, err := e.dispatcher.GetQuote(ctx, rule.Symbol); err == nil {
			spread = q.Spread()
		}
	}
	newStop := BreakevenStop(rule, spread)

	// 이미 본전 이상으로 잠겨 있으면 베뉴 호출 없이 플래그만 올림
	if rule.Direction.MoreFavorable(newStop, effectiveStop) {
		if err := e.dispatcher.ModifyStop(ctx, rule.Ticket, newStop); err != nil {
			return e.handleVenueFailure(ctx, rule, "modify_stop", err)
		}
	} else {
		newStop = effectiveStop
	}

	rule.BreakevenTriggered = true
	rule.TrailingActive = true
	event := contracts.NewActionEvent(rule.Ticket, rule.Symbol, contracts.ActionBreakeven, effectiveStop, newStop, price)
	event.Factors = th.Factors
	event.Reason = fmt.Sprintf("profit progress reached %.0f%% trigger", th.BreakevenPct)
	e.persistAndEmit(ctx, rule, event)
	return nil
}

// structureTighten applies a cooldown-limited tightening when tighten factors
// fired. 스윙 포인트 진동으로 같은 티켓이 매 사이클 조였다 풀렸다 하는
// 것을 막는 게이트: 쿨다운 + 최소 개선폭.
func (e *Engine) structureTighten(ctx context.Context, rule *contracts.ExitRule, price, atr, effectiveStop float64, th Thresholds) error {
	if rule.LastTightenTime != nil && time.Since(*rule.LastTightenTime) < e.cfg.TightenCooldown {
		return nil
	}

	candidate, ok := TightenCandidate(rule, price, atr, effectiveStop)
	if !ok {
		return nil
	}
	improvement := candidate - effectiveStop
	if rule.Direction == contracts.DirectionSell {
		improvement = effectiveStop - candidate
	}
	if improvement < e.cfg.TightenATRFraction*atr {
		return nil
	}

	return e.commitTrail(ctx, rule, price, effectiveStop, candidate, contracts.ActionTighten, th.Factors)
}

// commitTrail commits a stop move (trail or tighten) to the venue
func (e *Engine) commitTrail(ctx context.Context, rule *contracts.ExitRule, price, oldStop, newStop float64, action contracts.ActionType, factors []string) error {
	if err := e.dispatcher.ModifyStop(ctx, rule.Ticket, newStop); err != nil {
		return e.handleVenueFailure(ctx, rule, "modify_stop", err)
	}

	rule.LastTrailingStop = &newStop
	if action.Tightening() {
		now := time.Now()
		rule.LastTightenTime = &now
	}

	event := contracts.NewActionEvent(rule.Ticket, rule.Symbol, action, oldStop, newStop, price)
	event.Factors = factors
	e.persistAndEmit(ctx, rule, event)
	return nil
}

// handleVenueFailure applies the per-reason deferral policy.
// disallowed는 사이클 단위로 연기하고, 오래 지속될 때만 사용자에게 한 번 알림.
func (e *Engine) handleVenueFailure(ctx context.Context, rule *contracts.ExitRule, op string, err error) error {
	reason := venue.ReasonOf(err)

	if reason == venue.ReasonTradingDisallowed {
		rule.DisallowedStreak++
		if rule.DisallowedStreak >= e.cfg.DisallowedNotifyCycles && !rule.DisallowedNotified {
			rule.DisallowedNotified = true
			if tn, ok := e.notifier.(notify.TextNotifier); ok {
				msg := fmt.Sprintf("⏸ [%s #%d] 거래 불가 상태가 %d 사이클째 지속 중 (세션 마감 추정)",
					rule.Symbol, rule.Ticket, rule.DisallowedStreak)
				if sendErr := tn.SendText(ctx, msg); sendErr != nil {
					e.logger.WithError(sendErr).Warn("Failed to surface persistent disallowed state")
				}
			}
		}
		e.commitRuleState(ctx, rule)
		e.logger.WithFields(map[string]interface{}{
			"ticket": rule.Ticket,
			"op":     op,
			"streak": rule.DisallowedStreak,
		}).Debug("Trading disallowed, deferred to next cycle")
		return nil
	}

	return fmt.Errorf("venue %s failed (%s): %w", op, reason, err)
}

// persistAndEmit persists the rule AFTER the confirmed venue success, then
// records and notifies the action. 순서 중요: 베뉴 성공 확정 전에는 절대
// 영속화하지 않음.
func (e *Engine) persistAndEmit(ctx context.Context, rule *contracts.ExitRule, event *contracts.ActionEvent) {
	rule.DisallowedStreak = 0
	rule.DisallowedNotified = false

	e.commitRuleState(ctx, rule)
	e.emit(ctx, event)
}

// commitRuleState writes a mutated rule copy back to the store, then the repo.
// 평가는 스토어가 내준 사본 위에서 이루어지므로, 여기서 커밋해야 상태 API
// 리더와 다음 사이클에 보임.
func (e *Engine) commitRuleState(ctx context.Context, rule *contracts.ExitRule) {
	rule.UpdatedAt = time.Now()

	if err := e.store.Update(rule); err != nil {
		// 같은 사이클 중 API 취소로 제거된 경우: 커밋할 곳이 없음
		e.logger.WithError(err).WithField("ticket", rule.Ticket).Debug("Rule gone before state commit")
		return
	}
	if err := e.repo.SaveRule(ctx, rule); err != nil {
		e.logger.WithError(err).WithField("ticket", rule.Ticket).Error("Failed to persist rule state")
	}
}

// emit records a committed action and notifies (fire-and-forget)
func (e *Engine) emit(ctx context.Context, event *contracts.ActionEvent) {
	if err := e.repo.SaveAction(ctx, event); err != nil {
		e.logger.WithError(err).WithField("ticket", event.Ticket).Error("Failed to persist action event")
	}

	e.mu.Lock()
	if len(e.recent) >= recentEventsCap {
		e.recent = e.recent[1:]
	}
	e.recent = append(e.recent, event)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ActionsTotal.WithLabelValues(string(event.Action)).Inc()
	}

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, event); err != nil {
			e.logger.WithError(err).WithField("ticket", event.Ticket).Warn("Notification failed")
		}
	}
}

// resolvePrice picks the evaluation price and spread for a rule.
// 스트림 호가가 사이클 주기보다 신선하면 그쪽, 아니면 스냅샷 가격.
// 청산 방향 기준: BUY는 bid, SELL은 ask.
func (e *Engine) resolvePrice(rule *contracts.ExitRule, pos contracts.Position) (float64, float64) {
	if e.stream != nil {
		if q, ok := e.stream.LastQuote(rule.Symbol, e.cfg.CycleInterval); ok {
			if rule.Direction == contracts.DirectionBuy {
				return q.Bid, q.Spread()
			}
			return q.Ask, q.Spread()
		}
	}
	return pos.CurrentPrice, 0
}

// =============================================================================
// Status / reporting (동시 읽기 허용)
// =============================================================================

// Status is the engine status snapshot for the reporting API
type Status struct {
	Running           bool      `json:"running"`
	CycleCount        int64     `json:"cycle_count"`
	LastCycleAt       time.Time `json:"last_cycle_at"`
	LastCycleDuration string    `json:"last_cycle_duration"`
	ActiveRules       int       `json:"active_rules"`
}

// Status returns the current engine status
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Status{
		Running:           e.running,
		CycleCount:        e.cycleCount,
		LastCycleAt:       e.lastCycleAt,
		LastCycleDuration: e.lastCycleDur.String(),
		ActiveRules:       e.store.Count(),
	}
}

// Rules returns detached copies of all active rules.
// 리포팅 전용 스냅샷: 루프가 커밋 중이어도 안전하게 직렬화 가능.
func (e *Engine) Rules() []*contracts.ExitRule {
	return e.store.All()
}

// Rule returns a detached copy of the rule for a ticket, or nil
func (e *Engine) Rule(ticket int64) *contracts.ExitRule {
	return e.store.Get(ticket)
}

// RecentEvents returns the latest committed actions, newest first
func (e *Engine) RecentEvents(limit int) []*contracts.ActionEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 || limit > len(e.recent) {
		limit = len(e.recent)
	}
	result := make([]*contracts.ActionEvent, limit)
	for i := 0; i < limit; i++ {
		result[i] = e.recent[len(e.recent)-1-i]
	}
	return result
}

// CancelRule explicitly stops protecting a ticket (position stays open)
func (e *Engine) CancelRule(ctx context.Context, ticket int64) error {
	if e.store.Get(ticket) == nil {
		return contracts.ErrRuleNotFound
	}
	e.store.Remove(ticket)
	if err := e.repo.DeleteRule(ctx, ticket); err != nil {
		return err
	}
	e.logger.WithField("ticket", ticket).Info("Rule cancelled")
	return nil
}
