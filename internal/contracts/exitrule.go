// Package contracts - exitrule.go
// 포지션 보호 규칙: 티켓 하나당 ExitRule 하나
// - 손절은 절대 불리한 방향으로 이동하지 않음
// - 부분 청산은 현재 잔여 볼륨 기준
// - breakeven/trailing 플래그는 단조 (한번 true면 되돌리지 않음)
package contracts

import (
	"fmt"
	"math"
	"time"
)

// Direction is the trade direction of a position
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Valid reports whether the direction is a known value
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// MoreFavorable reports whether newStop is strictly more favorable than
// oldStop for this direction (BUY: higher, SELL: lower)
func (d Direction) MoreFavorable(newStop, oldStop float64) bool {
	if d == DirectionBuy {
		return newStop > oldStop
	}
	return newStop < oldStop
}

// RuleState is the derived lifecycle state of an exit rule
type RuleState string

const (
	RuleStateOpen         RuleState = "OPEN"
	RuleStateBreakevenSet RuleState = "BREAKEVEN_SET"
	RuleStateTrailing     RuleState = "TRAILING"
	RuleStateClosed       RuleState = "CLOSED"
)

// RuleConfig holds per-rule strategy knobs
// 전략 변형은 파라미터로만 표현 (서브클래싱 없음)
type RuleConfig struct {
	BreakevenTriggerPct  float64 `json:"breakeven_trigger_pct"`  // % of potential profit
	PartialTriggerPct    float64 `json:"partial_trigger_pct"`    // % of potential profit
	PartialCloseFraction float64 `json:"partial_close_fraction"` // of currently open volume
	MinPartialVolume     float64 `json:"min_partial_volume"`     // venue minimum tradable unit
	TrailingATRMultiple  float64 `json:"trailing_atr_multiple"`
	MinTrailStepPct      float64 `json:"min_trail_step_pct"` // % of price, anti-thrash floor
}

// DefaultRuleConfig returns the base configuration
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		BreakevenTriggerPct:  30.0,
		PartialTriggerPct:    60.0,
		PartialCloseFraction: 0.5,
		MinPartialVolume:     0.01,
		TrailingATRMultiple:  1.5,
		MinTrailStepPct:      0.05,
	}
}

// ExitRule is the durable per-position protection record
// ⭐ SSOT: 포지션 보호 상태는 여기서만
type ExitRule struct {
	Ticket    int64     `json:"ticket"` // venue-assigned, immutable key
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`

	EntryPrice    float64 `json:"entry_price"`
	InitialStop   float64 `json:"initial_stop"`
	InitialTarget float64 `json:"initial_target"`
	OpenedVolume  float64 `json:"opened_volume"`

	// Derived at creation
	PotentialProfit float64 `json:"potential_profit"` // |target - entry|
	Risk            float64 `json:"risk"`             // |entry - initial_stop|
	RiskReward      float64 `json:"risk_reward"`

	Config RuleConfig `json:"config"`

	// Mutable state, written only by the evaluation loop
	BreakevenTriggered bool       `json:"breakeven_triggered"`
	TrailingActive     bool       `json:"trailing_active"`
	LastTrailingStop   *float64   `json:"last_trailing_stop,omitempty"`
	LastTightenTime    *time.Time `json:"last_tighten_time,omitempty"`
	HybridAdjusted     bool       `json:"hybrid_adjusted"`
	HybridStopTarget   *float64   `json:"hybrid_stop_target,omitempty"` // set at creation when fear elevated

	PartialDone       bool   `json:"partial_done"`
	PartialSkipReason string `json:"partial_skip_reason,omitempty"` // recorded once, never re-logged

	// Policy-disallowed deferral tracking
	DisallowedStreak   int  `json:"disallowed_streak"`
	DisallowedNotified bool `json:"disallowed_notified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExitRule validates inputs and derives the protection parameters.
// Malformed rules are rejected here and never enter the store (설정 오류는
// 생성 시점에 치명적).
func NewExitRule(ticket int64, symbol string, direction Direction, entry, stop, target, volume float64, cfg RuleConfig) (*ExitRule, error) {
	if ticket <= 0 {
		return nil, fmt.Errorf("%w: ticket must be positive, got %d", ErrMalformedRule, ticket)
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is empty", ErrMalformedRule)
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: direction %q", ErrMalformedRule, direction)
	}
	if volume <= 0 {
		return nil, fmt.Errorf("%w: volume %.4f", ErrMalformedRule, volume)
	}
	if entry <= 0 || stop <= 0 || target <= 0 {
		return nil, fmt.Errorf("%w: non-positive price (entry=%.5f stop=%.5f target=%.5f)", ErrMalformedRule, entry, stop, target)
	}

	// 손절/목표가는 방향에 맞는 쪽에 있어야 함
	if direction == DirectionBuy && !(stop < entry && entry < target) {
		return nil, fmt.Errorf("%w: BUY requires stop < entry < target", ErrMalformedRule)
	}
	if direction == DirectionSell && !(target < entry && entry < stop) {
		return nil, fmt.Errorf("%w: SELL requires target < entry < stop", ErrMalformedRule)
	}

	if cfg.PartialCloseFraction <= 0 || cfg.PartialCloseFraction >= 1 {
		return nil, fmt.Errorf("%w: partial close fraction %.2f outside (0,1)", ErrMalformedRule, cfg.PartialCloseFraction)
	}

	potential := math.Abs(target - entry)
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return nil, fmt.Errorf("%w: zero risk distance", ErrMalformedRule)
	}

	now := time.Now()
	return &ExitRule{
		Ticket:          ticket,
		Symbol:          symbol,
		Direction:       direction,
		EntryPrice:      entry,
		InitialStop:     stop,
		InitialTarget:   target,
		OpenedVolume:    volume,
		PotentialProfit: potential,
		Risk:            risk,
		RiskReward:      potential / risk,
		Config:          cfg,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Clone returns a deep copy with detached pointer fields.
// 스토어 경계를 넘는 규칙은 항상 복사본: 평가 루프의 쓰기와 상태 API의
// 동시 읽기가 같은 구조체를 공유하면 안 됨.
func (r *ExitRule) Clone() *ExitRule {
	c := *r
	if r.LastTrailingStop != nil {
		v := *r.LastTrailingStop
		c.LastTrailingStop = &v
	}
	if r.LastTightenTime != nil {
		ts := *r.LastTightenTime
		c.LastTightenTime = &ts
	}
	if r.HybridStopTarget != nil {
		v := *r.HybridStopTarget
		c.HybridStopTarget = &v
	}
	return &c
}

// State derives the lifecycle state from the monotonic flags
func (r *ExitRule) State() RuleState {
	switch {
	case r.TrailingActive && r.LastTrailingStop != nil:
		return RuleStateTrailing
	case r.BreakevenTriggered:
		return RuleStateBreakevenSet
	default:
		return RuleStateOpen
	}
}

// UnrealizedProfit returns the signed unrealized move in price units
func (r *ExitRule) UnrealizedProfit(price float64) float64 {
	if r.Direction == DirectionBuy {
		return price - r.EntryPrice
	}
	return r.EntryPrice - price
}

// ProgressPct returns unrealized profit as a percentage of potential profit.
// Direction-agnostic: 50 means halfway to target, negative means under water.
func (r *ExitRule) ProgressPct(price float64) float64 {
	return r.UnrealizedProfit(price) / r.PotentialProfit * 100
}

// UnrealizedR returns the unrealized R-multiple at the given price
func (r *ExitRule) UnrealizedR(price float64) float64 {
	return r.UnrealizedProfit(price) / r.Risk
}

// EffectiveStop returns the stop the venue currently enforces for this rule.
// venueStop가 0이면 (브리지가 스탑 미설정을 0으로 보고) 초기 손절로 폴백.
func (r *ExitRule) EffectiveStop(venueStop float64) float64 {
	if venueStop != 0 {
		return venueStop
	}
	if r.LastTrailingStop != nil {
		return *r.LastTrailingStop
	}
	return r.InitialStop
}
