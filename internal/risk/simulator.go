// Package risk - 랜덤워크 기반 청산 결과 추정
// 트렌드/구조를 모르는 근사 모델이므로 손실 중인 포지션의 보조 신호로만 사용.
// 수익 중인 포지션을 이 모델 단독으로 닫는 일은 절대 없음.
package risk

import (
	"fmt"
	"math"
)

// Outcome is the estimated probability split between stop and target
type Outcome struct {
	NStop     float64 `json:"n_stop"`   // stop distance in ATR units
	NTarget   float64 `json:"n_target"` // target distance in ATR units
	PTarget   float64 `json:"p_target"`
	PStop     float64 `json:"p_stop"`
	ExpectedR float64 `json:"expected_r"` // p_target - p_stop
}

// Simulate estimates the probability of hitting target before stop under an
// unbiased random walk between two absorbing barriers.
//
// Gambler's ruin: 도달 확률은 반대편 장벽까지의 거리에 비례.
// p_target = n_stop / (n_stop + n_target)
func Simulate(entry, stop, target, atr float64) (Outcome, error) {
	if atr <= 0 {
		return Outcome{}, fmt.Errorf("atr must be positive, got %.5f", atr)
	}
	nStop := math.Abs(entry-stop) / atr
	nTarget := math.Abs(target-entry) / atr
	if nStop == 0 || nTarget == 0 {
		return Outcome{}, fmt.Errorf("degenerate barriers (n_stop=%.3f n_target=%.3f)", nStop, nTarget)
	}

	pTarget := nStop / (nStop + nTarget)
	return Outcome{
		NStop:     nStop,
		NTarget:   nTarget,
		PTarget:   pTarget,
		PStop:     1 - pTarget,
		ExpectedR: pTarget - (1 - pTarget),
	}, nil
}

// VetoesContinuation reports whether the simulator argues against holding a
// LOSING position. unrealizedR >= 0이면 무조건 false — 수익 중인 트레이드를
// 이 모델로 자르지 않는다는 것이 문서화된 수정 사항.
func (o Outcome) VetoesContinuation(unrealizedR, stopProbabilityFloor float64) bool {
	if unrealizedR >= 0 {
		return false
	}
	return o.PStop >= stopProbabilityFloor
}
