package exitengine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/internal/marketdata"
	"github.com/wonny/guardian/internal/venue"
	"github.com/wonny/guardian/pkg/config"
	"github.com/wonny/guardian/pkg/logger"
)

// =============================================================================
// Test doubles
// =============================================================================

// memRepo is an in-memory RuleRepository
type memRepo struct {
	mu      sync.Mutex
	rules   map[int64]contracts.ExitRule
	actions []contracts.ActionEvent
	deleted []int64
}

func newMemRepo() *memRepo {
	return &memRepo{rules: make(map[int64]contracts.ExitRule)}
}

func (r *memRepo) SaveRule(ctx context.Context, rule *contracts.ExitRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.Ticket] = *rule
	return nil
}

func (r *memRepo) LoadRules(ctx context.Context) ([]*contracts.ExitRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*contracts.ExitRule, 0, len(r.rules))
	for _, rule := range r.rules {
		cp := rule
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRepo) DeleteRule(ctx context.Context, ticket int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, ticket)
	r.deleted = append(r.deleted, ticket)
	return nil
}

func (r *memRepo) SaveAction(ctx context.Context, event *contracts.ActionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, *event)
	return nil
}

func (r *memRepo) ActionsSince(ctx context.Context, since time.Time) ([]contracts.ActionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []contracts.ActionEvent
	for i := len(r.actions) - 1; i >= 0; i-- {
		if !r.actions[i].At.Before(since) {
			out = append(out, r.actions[i])
		}
	}
	return out, nil
}

func (r *memRepo) RecentActions(ctx context.Context, limit int) ([]contracts.ActionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.actions) {
		limit = len(r.actions)
	}
	out := make([]contracts.ActionEvent, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.actions[len(r.actions)-1-i]
	}
	return out, nil
}

// capturingNotifier records delivered events and plain alerts
type capturingNotifier struct {
	mu     sync.Mutex
	events []contracts.ActionEvent
	texts  []string
}

func (n *capturingNotifier) Notify(ctx context.Context, event *contracts.ActionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, *event)
	return nil
}

func (n *capturingNotifier) SendText(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *capturingNotifier) byAction(action contracts.ActionType) []contracts.ActionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []contracts.ActionEvent
	for _, ev := range n.events {
		if ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	engine   *Engine
	venue    *venue.MockVenue
	data     *marketdata.MockProvider
	repo     *memRepo
	notifier *capturingNotifier
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		CycleInterval:            30 * time.Second,
		ATRTimeframe:             "M15",
		ATRPeriod:                14,
		MaxRetries:               3,
		RetryDelay:               time.Millisecond,
		TightenCooldown:          5 * time.Minute,
		TightenATRFraction:       0.1,
		FearIndexThreshold:       30.0,
		HybridWidenFactor:        1.3,
		CriticalWarningThreshold: 0.8,
		VetoWarningThreshold:     0.4,
		VetoStopProbability:      0.70,
		DisallowedNotifyCycles:   2,
	}
}

func newHarness(t *testing.T, ruleCfg contracts.RuleConfig) *harness {
	t.Helper()

	mock := venue.NewMockVenue()
	data := marketdata.NewMockProvider()
	repo := newMemRepo()
	notifier := &capturingNotifier{}
	metrics := NewMetrics(prometheus.NewRegistry())
	log := logger.NewNop()

	dispatcher := NewDispatcher(mock, 1000, 3, time.Millisecond, metrics, log)
	engine := NewEngine(testEngineConfig(), ruleCfg, NewRuleStore(), repo, dispatcher, data, notifier, metrics, log)

	return &harness{engine: engine, venue: mock, data: data, repo: repo, notifier: notifier}
}

func (h *harness) cycle() {
	h.engine.runCycle(context.Background())
}

// armTrailing commits post-breakeven state for a ticket, as if the breakeven
// and partial cycles already ran. 스토어는 사본을 내주므로 반드시 Update로
// 되써야 함.
func (h *harness) armTrailing(t *testing.T, ticket int64) {
	t.Helper()
	rule := h.engine.store.Get(ticket)
	require.NotNil(t, rule)
	rule.BreakevenTriggered = true
	rule.TrailingActive = true
	rule.PartialDone = true
	require.NoError(t, h.engine.store.Update(rule))
}

// =============================================================================
// Scenario A: BUY breakeven + min-volume partial skip
// =============================================================================

func TestEngine_ScenarioA_BreakevenThenPartialSkip(t *testing.T) {
	ruleCfg := contracts.DefaultRuleConfig()
	ruleCfg.MinPartialVolume = 0.02

	h := newHarness(t, ruleCfg)
	h.venue.SetPosition(contracts.Position{
		Ticket: 101, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.01, OpenPrice: 3950.0, CurrentPrice: 3950.5,
		StopLoss: 3944.0, TakeProfit: 3955.0,
	})

	// 채택 사이클: 30% 미달, 액션 없음
	h.cycle()
	rule := h.engine.Rule(101)
	require.NotNil(t, rule)
	assert.InDelta(t, 5.0, rule.PotentialProfit, 1e-9)
	assert.InDelta(t, 6.0, rule.Risk, 1e-9)
	assert.False(t, rule.BreakevenTriggered)
	assert.Empty(t, h.venue.ModifyCalls)

	// 3951.50 = 30% 진행 → 본전 이동
	h.venue.SetPrice(101, 3951.50)
	h.cycle()

	rule = h.engine.Rule(101)
	assert.True(t, rule.BreakevenTriggered)
	assert.True(t, rule.TrailingActive)
	require.Len(t, h.venue.ModifyCalls, 1)
	assert.InDelta(t, 3950.0, h.venue.ModifyCalls[0].NewStop, 1e-9)
	assert.Equal(t, contracts.RuleStateBreakevenSet, rule.State())
	require.Len(t, h.notifier.byAction(contracts.ActionBreakeven), 1)

	// 3953.00 = 60% 진행 → 부분 익절 트리거되지만 0.01랏 × 0.5 < 최소 0.02 → 영구 스킵
	h.venue.SetPrice(101, 3953.0)
	h.cycle()

	rule = h.engine.Rule(101)
	assert.True(t, rule.PartialDone)
	assert.NotEmpty(t, rule.PartialSkipReason)
	assert.Empty(t, h.venue.PartialCalls, "partial close below venue minimum must never reach the venue")

	// 이후 사이클에서도 재시도 없음
	h.cycle()
	assert.Empty(t, h.venue.PartialCalls)
}

// =============================================================================
// Scenario B: SELL breakeven then partial fires
// =============================================================================

func TestEngine_ScenarioB_SellBreakevenThenPartial(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 202, Symbol: "XAUUSD", Direction: contracts.DirectionSell,
		Volume: 1.0, OpenPrice: 3950.0, CurrentPrice: 3948.0,
		StopLoss: 3965.0, TakeProfit: 3920.0,
	})
	h.cycle()

	rule := h.engine.Rule(202)
	require.NotNil(t, rule)
	assert.InDelta(t, 30.0, rule.PotentialProfit, 1e-9)
	assert.InDelta(t, 15.0, rule.Risk, 1e-9)

	// 3941 = 30% 진행 → 본전 3950
	h.venue.SetPrice(202, 3941.0)
	h.cycle()

	require.Len(t, h.venue.ModifyCalls, 1)
	assert.InDelta(t, 3950.0, h.venue.ModifyCalls[0].NewStop, 1e-9)
	assert.True(t, h.engine.Rule(202).BreakevenTriggered)

	// 3932 = 60% 진행 → 현재 볼륨의 절반 청산
	h.venue.SetPrice(202, 3932.0)
	h.cycle()

	require.Len(t, h.venue.PartialCalls, 1)
	assert.Equal(t, int64(202), h.venue.PartialCalls[0].Ticket)
	assert.InDelta(t, 0.5, h.venue.PartialCalls[0].Volume, 1e-9)
	assert.True(t, h.engine.Rule(202).PartialDone)

	events := h.notifier.byAction(contracts.ActionPartialClose)
	require.Len(t, events, 1)
	assert.InDelta(t, 1.0, events[0].OldValue, 1e-9)
	assert.InDelta(t, 0.5, events[0].NewValue, 1e-9)
}

// =============================================================================
// Scenario C: trailing monotonicity through the engine
// =============================================================================

func TestEngine_ScenarioC_TrailingMonotonic(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 303, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3950.0,
		StopLoss: 3944.0, TakeProfit: 3990.0,
	})
	h.cycle()

	// 트레일링 상태로 진입시킴 (본전은 이미 완료된 것으로)
	h.armTrailing(t, 303)
	h.venue.SetPosition(contracts.Position{
		Ticket: 303, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3960.0,
		StopLoss: 3955.0, TakeProfit: 3990.0,
	})
	h.data.SetATR("XAUUSD", 5.0)

	// 3960: 후보 3952.5 < 현재 3955 → 커밋 안 됨
	h.cycle()
	assert.Empty(t, h.venue.ModifyCalls)

	// 3965: 후보 3957.5 → 커밋
	h.venue.SetPrice(303, 3965.0)
	h.cycle()
	require.Len(t, h.venue.ModifyCalls, 1)
	assert.InDelta(t, 3957.5, h.venue.ModifyCalls[0].NewStop, 1e-9)
	assert.Equal(t, contracts.RuleStateTrailing, h.engine.Rule(303).State())

	// 되돌림 3960: 후보 3952.5 < 3957.5 → 유지
	h.venue.SetPrice(303, 3960.0)
	h.cycle()
	assert.Len(t, h.venue.ModifyCalls, 1, "stop must never move backwards")
	assert.InDelta(t, 3957.5, *h.engine.Rule(303).LastTrailingStop, 1e-9)
}

// ATR 미가용 시 트레일링은 조용히 스킵 (기존 손절 유효)
func TestEngine_TrailingSkippedWithoutATR(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 304, Symbol: "EURUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 1.1000, CurrentPrice: 1.1050,
		StopLoss: 1.0950, TakeProfit: 1.1100,
	})
	h.cycle()

	h.armTrailing(t, 304)

	// MockProvider에 ATR 미설정 → ErrInsufficientHistory
	h.cycle()
	assert.Empty(t, h.venue.ModifyCalls)
	assert.NotNil(t, h.engine.Rule(304), "rule survives the skipped cycle")
}

// =============================================================================
// Breakeven fires exactly once
// =============================================================================

func TestEngine_BreakevenFiresOnce(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 404, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3952.0,
		StopLoss: 3944.0, TakeProfit: 3955.0,
	})

	h.cycle()
	h.cycle()
	h.cycle()

	assert.Len(t, h.notifier.byAction(contracts.ActionBreakeven), 1)
	assert.True(t, h.engine.Rule(404).BreakevenTriggered)
}

// =============================================================================
// Critical exit and loss-side veto
// =============================================================================

func TestEngine_CriticalExitOnStructureBreak(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 505, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3952.0,
		StopLoss: 3944.0, TakeProfit: 3980.0,
	})
	h.cycle()
	require.NotNil(t, h.engine.Rule(505))

	// 구조 붕괴 + 모멘텀 반전 = 1.0 ≥ 0.8
	h.data.SetFeatures("XAUUSD", contracts.MarketQualityFeatures{
		Structure:       contracts.StructureBreak,
		Momentum:        contracts.MomentumReversal,
		VolatilityState: contracts.VolatilityNormal,
		RelativeVolume:  1.0,
	})
	h.cycle()

	assert.Equal(t, []int64{505}, h.venue.FullCloses)
	assert.Nil(t, h.engine.Rule(505), "rule removed after terminal exit")
	assert.Contains(t, h.repo.deleted, int64(505))
	require.Len(t, h.notifier.byAction(contracts.ActionCriticalExit), 1)
}

func TestEngine_VetoNeverFiresOnWinner(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 606, Symbol: "GBPUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 100.0, CurrentPrice: 100.5,
		StopLoss: 99.0, TakeProfit: 110.0,
	})
	h.data.SetATR("GBPUSD", 1.0) // p_stop = 10/11 ≈ 0.91
	h.data.SetFeatures("GBPUSD", contracts.MarketQualityFeatures{
		Structure:       contracts.StructureRanging,
		Momentum:        contracts.MomentumReversal, // warning 0.4
		VolatilityState: contracts.VolatilityNormal,
		RelativeVolume:  1.0,
	})

	// 수익 중(R > 0): p_stop이 아무리 높아도 청산 금지
	h.cycle()
	h.cycle()
	assert.Empty(t, h.venue.FullCloses)
	assert.NotNil(t, h.engine.Rule(606))
}

func TestEngine_VetoClosesLoser(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 607, Symbol: "GBPUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 100.0, CurrentPrice: 99.5,
		StopLoss: 99.0, TakeProfit: 110.0,
	})
	h.data.SetATR("GBPUSD", 1.0)
	h.data.SetFeatures("GBPUSD", contracts.MarketQualityFeatures{
		Structure:       contracts.StructureRanging,
		Momentum:        contracts.MomentumReversal,
		VolatilityState: contracts.VolatilityNormal,
		RelativeVolume:  1.0,
	})

	// 손실 중 + warning 0.4 + p_stop 0.91 ≥ 0.70 → 긴급 청산
	h.cycle()
	assert.Equal(t, []int64{607}, h.venue.FullCloses)

	events := h.notifier.byAction(contracts.ActionCriticalExit)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Reason, "p_stop")
}

// =============================================================================
// Structure tighten: cooldown + minimum improvement
// =============================================================================

func TestEngine_TightenRespectsCooldown(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 707, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3948.0,
		StopLoss: 3944.0, TakeProfit: 3980.0,
	})
	h.cycle()

	h.armTrailing(t, 707)

	h.data.SetATR("XAUUSD", 5.0)
	h.data.SetFeatures("XAUUSD", contracts.MarketQualityFeatures{
		Structure:       contracts.StructureRanging,
		Momentum:        contracts.MomentumGenuine,
		VolatilityState: contracts.VolatilitySqueeze, // tighten factor
		RelativeVolume:  1.0,
	})
	// 손절 3953, 가격 3960: 트레일 후보 3952.5 탈락, 조임 후보 3955 커밋
	h.venue.SetPosition(contracts.Position{
		Ticket: 707, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3960.0,
		StopLoss: 3953.0, TakeProfit: 3980.0,
	})

	h.cycle()
	require.Len(t, h.venue.ModifyCalls, 1)
	assert.InDelta(t, 3955.0, h.venue.ModifyCalls[0].NewStop, 1e-9)
	require.Len(t, h.notifier.byAction(contracts.ActionTighten), 1)

	// 신호가 그대로 유지되어도 쿨다운 내 재커밋 금지
	h.venue.SetPrice(707, 3962.0)
	h.cycle()
	assert.Len(t, h.venue.ModifyCalls, 1, "tighten must not re-fire within the cooldown window")

	// 쿨다운 경과 후에는 다시 허용
	past := time.Now().Add(-10 * time.Minute)
	cooled := h.engine.store.Get(707)
	cooled.LastTightenTime = &past
	require.NoError(t, h.engine.store.Update(cooled))
	h.cycle()
	assert.Len(t, h.venue.ModifyCalls, 2)
}

// =============================================================================
// Hybrid widen: one-shot pre-breakeven stop widening
// =============================================================================

func TestEngine_HybridWidenOneShot(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.data.FearIndex = 55.0 // ≥ 30 threshold

	h.venue.SetPosition(contracts.Position{
		Ticket: 808, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3950.2,
		StopLoss: 3944.0, TakeProfit: 3980.0,
	})
	h.cycle()

	rule := h.engine.Rule(808)
	require.NotNil(t, rule)
	require.NotNil(t, rule.HybridStopTarget)
	// risk 6 × 1.3 = 7.8 → widened stop 3942.2
	assert.InDelta(t, 3942.2, *rule.HybridStopTarget, 1e-9)
	assert.True(t, rule.HybridAdjusted, "widening applies in the adoption cycle")

	require.Len(t, h.venue.ModifyCalls, 1)
	assert.InDelta(t, 3942.2, h.venue.ModifyCalls[0].NewStop, 1e-9)
	require.Len(t, h.notifier.byAction(contracts.ActionHybridWiden), 1)

	// 재적용 없음
	h.cycle()
	assert.Len(t, h.venue.ModifyCalls, 1)
	assert.Len(t, h.notifier.byAction(contracts.ActionHybridWiden), 1)
}

func TestEngine_NoHybridWhenCalm(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.data.FearIndex = 10.0

	h.venue.SetPosition(contracts.Position{
		Ticket: 809, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3950.2,
		StopLoss: 3944.0, TakeProfit: 3980.0,
	})
	h.cycle()

	rule := h.engine.Rule(809)
	require.NotNil(t, rule)
	assert.Nil(t, rule.HybridStopTarget)
	assert.Empty(t, h.venue.ModifyCalls)
}

// =============================================================================
// Disallowed deferral and surfacing
// =============================================================================

func TestEngine_DisallowedDeferredThenSurfaced(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 909, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3952.0,
		StopLoss: 3944.0, TakeProfit: 3955.0,
	})

	// 본전 트리거 가격이지만 매 사이클 세션 마감으로 거부됨
	h.venue.FailNext("modify_stop", venue.NewError(venue.ReasonTradingDisallowed, "modify_stop", 909, "session closed"))
	h.cycle()

	rule := h.engine.Rule(909)
	require.NotNil(t, rule)
	assert.False(t, rule.BreakevenTriggered, "state untouched on deferred action")
	assert.Equal(t, 1, rule.DisallowedStreak)
	assert.Empty(t, h.notifier.texts, "not surfaced before the streak threshold")

	h.venue.FailNext("modify_stop", venue.NewError(venue.ReasonTradingDisallowed, "modify_stop", 909, "session closed"))
	h.cycle()

	rule = h.engine.Rule(909)
	assert.Equal(t, 2, rule.DisallowedStreak)
	assert.True(t, rule.DisallowedNotified)
	require.Len(t, h.notifier.texts, 1, "surfaced exactly once when persisting")

	// 다음 사이클에 세션이 열리면 정상 커밋되고 스트릭 리셋
	h.cycle()
	rule = h.engine.Rule(909)
	assert.True(t, rule.BreakevenTriggered)
	assert.Equal(t, 0, rule.DisallowedStreak)
	assert.False(t, rule.DisallowedNotified)
}

// =============================================================================
// Isolation, reconcile, restore
// =============================================================================

func TestEngine_RuleErrorDoesNotAbortCycle(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 1, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3952.0,
		StopLoss: 3944.0, TakeProfit: 3955.0,
	})
	h.venue.SetPosition(contracts.Position{
		Ticket: 2, Symbol: "EURUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 1.1000, CurrentPrice: 1.1050,
		StopLoss: 1.0950, TakeProfit: 1.1100,
	})

	// 티켓 중 하나의 modify가 재시도 한도까지 실패
	for i := 0; i < 3; i++ {
		h.venue.FailNext("modify_stop", venue.NewError(venue.ReasonTransient, "modify_stop", 0, "busy"))
	}
	h.cycle()

	// 실패한 규칙과 무관하게 다른 규칙의 본전은 커밋됨
	// (맵 순회 순서에 따라 실패 큐를 어느 티켓이 소비할지는 비결정적이므로
	//  둘 중 정확히 하나만 성공했는지를 본다)
	succeeded := 0
	if h.engine.Rule(1).BreakevenTriggered {
		succeeded++
	}
	if h.engine.Rule(2).BreakevenTriggered {
		succeeded++
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, h.venue.ModifyCalls, 1)
}

func TestEngine_ReconcileRemovesClosedPositions(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 11, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3950.0,
		StopLoss: 3944.0, TakeProfit: 3980.0,
	})
	h.cycle()
	require.NotNil(t, h.engine.Rule(11))

	// 베뉴에서 포지션 소멸 → 규칙 제거 + 영속 삭제
	h.venue.RemovePosition(11)
	h.cycle()

	assert.Nil(t, h.engine.Rule(11))
	assert.Contains(t, h.repo.deleted, int64(11))
}

func TestEngine_RestoreSurvivesRestart(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 21, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3952.0,
		StopLoss: 3944.0, TakeProfit: 3955.0,
	})
	h.cycle() // adopt + breakeven
	require.True(t, h.engine.Rule(21).BreakevenTriggered)

	// 같은 저장소로 새 엔진 구성 (재시작 시뮬레이션)
	h2 := newHarness(t, contracts.DefaultRuleConfig())
	h2.engine.repo = h.repo
	require.NoError(t, h2.engine.Restore(context.Background()))

	restored := h2.engine.Rule(21)
	require.NotNil(t, restored)
	assert.True(t, restored.BreakevenTriggered, "monotonic flags survive restart")
	assert.True(t, restored.TrailingActive)
}

// 설정 오류 규칙은 스토어에 절대 들어가지 않음
func TestEngine_MalformedPositionRejected(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())

	// BUY인데 stop > entry
	h.venue.SetPosition(contracts.Position{
		Ticket: 31, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3950.0,
		StopLoss: 3960.0, TakeProfit: 3980.0,
	})
	// stop/target 미설정
	h.venue.SetPosition(contracts.Position{
		Ticket: 32, Symbol: "EURUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 1.1000, CurrentPrice: 1.1000,
	})

	h.cycle()
	assert.Nil(t, h.engine.Rule(31))
	assert.Nil(t, h.engine.Rule(32))
	assert.Equal(t, 0, h.engine.Status().ActiveRules)
}

func TestEngine_StatusAndRecentEvents(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 41, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3952.0,
		StopLoss: 3944.0, TakeProfit: 3955.0,
	})
	h.cycle()

	status := h.engine.Status()
	assert.Equal(t, int64(1), status.CycleCount)
	assert.Equal(t, 1, status.ActiveRules)

	events := h.engine.RecentEvents(10)
	require.Len(t, events, 1)
	assert.Equal(t, contracts.ActionBreakeven, events[0].Action)
}

// =============================================================================
// Reporting readers never share structs with the loop
// =============================================================================

// 리더가 들고 있는 스냅샷은 이후 사이클의 커밋에 영향받지 않아야 함
func TestEngine_ReportingSnapshotDetachedFromLoop(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 51, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3950.2,
		StopLoss: 3944.0, TakeProfit: 3955.0,
	})
	h.cycle() // adopt, no trigger yet

	before := h.engine.Rules()
	require.Len(t, before, 1)
	require.False(t, before[0].BreakevenTriggered)

	// 본전 커밋
	h.venue.SetPrice(51, 3951.50)
	h.cycle()

	assert.False(t, before[0].BreakevenTriggered, "earlier reader snapshot must not see later commits")
	assert.True(t, h.engine.Rule(51).BreakevenTriggered)

	// 리더 사본을 고쳐도 스토어에는 반영 안 됨
	tampered := h.engine.Rule(51)
	tampered.PartialDone = true
	tampered.DisallowedStreak = 99
	assert.False(t, h.engine.Rule(51).PartialDone)
	assert.Equal(t, 0, h.engine.Rule(51).DisallowedStreak)
}

// 사이클이 커밋하는 동안 상태 API 리더가 직렬화해도 안전해야 함
// (go test -race 대상)
func TestEngine_ConcurrentReadersDuringCycles(t *testing.T) {
	h := newHarness(t, contracts.DefaultRuleConfig())
	h.venue.SetPosition(contracts.Position{
		Ticket: 61, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3952.0,
		StopLoss: 3944.0, TakeProfit: 3955.0,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 25; i++ {
			h.cycle()
		}
	}()

	for {
		select {
		case <-done:
			assert.True(t, h.engine.Rule(61).BreakevenTriggered)
			return
		default:
			if _, err := json.Marshal(h.engine.Rules()); err != nil {
				t.Errorf("marshal rules: %v", err)
			}
			_ = h.engine.Status()
		}
	}
}
