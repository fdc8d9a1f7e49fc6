package exitengine

import (
	"math"

	"github.com/wonny/guardian/internal/contracts"
)

// TrailingCandidate computes a trailing stop candidate and reports whether it
// should be committed.
//
// 전제: breakeven 이후에만 호출됨 (트레일링은 이미 잠근 이익만 보호).
// 커밋 조건:
//  (a) 현재 유효 손절보다 엄격히 유리
//  (b) 이동 폭이 최소 스텝(가격의 일정 %) 이상 — 서브핍 노이즈로 인한
//      베뉴 수정 호출 난사 방지
func TrailingCandidate(rule *contracts.ExitRule, price, atr, effectiveStop float64) (float64, bool) {
	if atr <= 0 || price <= 0 {
		return 0, false
	}

	distance := rule.Config.TrailingATRMultiple * atr

	var candidate float64
	if rule.Direction == contracts.DirectionBuy {
		candidate = price - distance
	} else {
		candidate = price + distance
	}

	if !rule.Direction.MoreFavorable(candidate, effectiveStop) {
		return 0, false
	}

	minStep := rule.Config.MinTrailStepPct / 100 * price
	if math.Abs(candidate-effectiveStop) < minStep {
		return 0, false
	}

	return candidate, true
}

// TightenCandidate computes a structure-based tightening candidate.
// 메인 트레일(1.5×ATR)보다 타이트한 1.0×ATR 거리.
// 쿨다운/최소 개선폭 게이트는 호출자(엔진)가 적용함.
func TightenCandidate(rule *contracts.ExitRule, price, atr, effectiveStop float64) (float64, bool) {
	if atr <= 0 || price <= 0 {
		return 0, false
	}

	var candidate float64
	if rule.Direction == contracts.DirectionBuy {
		candidate = price - atr
	} else {
		candidate = price + atr
	}

	if !rule.Direction.MoreFavorable(candidate, effectiveStop) {
		return 0, false
	}
	return candidate, true
}

// BreakevenStop returns the breakeven stop for a rule.
// 스프레드 버퍼: BUY는 진입가+스프레드 (청산은 bid 기준이므로), SELL은 진입가-스프레드.
func BreakevenStop(rule *contracts.ExitRule, spread float64) float64 {
	if spread < 0 {
		spread = 0
	}
	if rule.Direction == contracts.DirectionBuy {
		return rule.EntryPrice + spread
	}
	return rule.EntryPrice - spread
}
