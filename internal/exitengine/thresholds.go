package exitengine

import (
	"math"

	"github.com/wonny/guardian/internal/contracts"
)

// 7개 시장 품질 요인의 판정 기준
const (
	// overstretchSigma: 평균 대비 이 σ 이상 이탈하면 과신장으로 판정
	overstretchSigma = 2.0

	// liquidityProximityATR: 유동성 클러스터까지 이 ATR 거리 이내면 조임
	liquidityProximityATR = 0.5

	// bandEdge: 밴드 포지션 절대값이 이 이상이면 밴드 외곽 주차 상태
	bandEdge = 0.9

	// relVolumeHigh: 세션 평균 대비 이 배수 이상이면 확장 확인 요인
	relVolumeHigh = 1.5

	// tightenScale/widenScale: 기본 트리거 30/60% 기준으로 20/40%, 40/80%
	tightenScale = 2.0 / 3.0
	widenScale   = 4.0 / 3.0
)

// ThresholdMode records which precedence branch was taken
type ThresholdMode string

const (
	ModeTightened ThresholdMode = "TIGHTENED"
	ModeWidened   ThresholdMode = "WIDENED"
	ModeBase      ThresholdMode = "BASE"
)

// Thresholds is the adjusted trigger pair with the factors that fired
type Thresholds struct {
	BreakevenPct float64       `json:"breakeven_pct"`
	PartialPct   float64       `json:"partial_pct"`
	Mode         ThresholdMode `json:"mode"`
	Factors      []string      `json:"factors,omitempty"`
}

// ComputeThresholds scores the seven market-quality factors into a
// tighten/widen/neutral adjustment of the base trigger percentages.
//
// 투표는 평균이 아니라 우선순위로 결합:
// - 조임 요인 하나라도 발화 → 무조건 조임 (자본 보호 우선)
// - 조임 없음 + 확장 요인 2개 이상 → 확장
// - 그 외 → 기본값 그대로
func ComputeThresholds(f contracts.MarketQualityFeatures, cfg contracts.RuleConfig) Thresholds {
	var tighten, widen []string

	// --- 조임 투표 ---

	// 1. 과신장: 평균에서 너무 멀면 되돌림 위험
	if math.Abs(f.DistanceFromMeanSigma) >= overstretchSigma {
		tighten = append(tighten, "overstretched")
	}

	// 2. 모멘텀 품질: 가짜 추진/소진은 이익을 빨리 잠금
	if f.Momentum == contracts.MomentumSynthetic || f.Momentum == contracts.MomentumExhausted {
		tighten = append(tighten, "momentum_"+string(f.Momentum))
	}

	// 3. 유동성 클러스터 근접: 반전 자주 발생하는 구역
	if f.LiquidityProximity > 0 && f.LiquidityProximity <= liquidityProximityATR {
		tighten = append(tighten, "liquidity_cluster")
	}

	// 4. 변동성 압축: 스퀴즈 해소 방향은 예측 불가
	if f.VolatilityState == contracts.VolatilitySqueeze {
		tighten = append(tighten, "volatility_squeeze")
	}

	// 5. 밴드 외곽: 공정가 밴드 가장자리에 붙어 있으면 되돌림 우세
	if math.Abs(f.BandPosition) >= bandEdge {
		tighten = append(tighten, "band_edge")
	}

	// --- 확장 투표 ---

	// 6. 깨끗한 추세 (과신장 아님): 더 달리게 둠
	if f.Structure == contracts.StructureTrending && math.Abs(f.DistanceFromMeanSigma) < overstretchSigma {
		widen = append(widen, "clean_trend")
	}

	// 7. 다중 타임프레임 정렬: 상위 2개 이상 동방향
	if f.MTFAlignment >= 2 {
		widen = append(widen, "mtf_aligned")
	}

	// 상대 거래량은 단독 확장 근거가 아니라 확인 요인으로만 가산
	if len(widen) > 0 && f.RelativeVolume >= relVolumeHigh {
		widen = append(widen, "volume_confirmed")
	}

	switch {
	case len(tighten) > 0:
		return Thresholds{
			BreakevenPct: cfg.BreakevenTriggerPct * tightenScale,
			PartialPct:   cfg.PartialTriggerPct * tightenScale,
			Mode:         ModeTightened,
			Factors:      tighten,
		}
	case len(widen) >= 2:
		return Thresholds{
			BreakevenPct: cfg.BreakevenTriggerPct * widenScale,
			PartialPct:   cfg.PartialTriggerPct * widenScale,
			Mode:         ModeWidened,
			Factors:      widen,
		}
	default:
		return Thresholds{
			BreakevenPct: cfg.BreakevenTriggerPct,
			PartialPct:   cfg.PartialTriggerPct,
			Mode:         ModeBase,
		}
	}
}

// 기술적 경고 점수 가중치
const (
	warnStructureBreak    = 0.6
	warnMomentumReversal  = 0.4
	warnMomentumExhausted = 0.2
)

// WarningScore sums the structure-break and momentum-deterioration signals.
// 0.8 이상이면 긴급 청산, 0.4 이상이면 손실 포지션에 한해 시뮬레이터 veto 게이트.
func WarningScore(f contracts.MarketQualityFeatures) float64 {
	score := 0.0
	if f.Structure == contracts.StructureBreak {
		score += warnStructureBreak
	}
	switch f.Momentum {
	case contracts.MomentumReversal:
		score += warnMomentumReversal
	case contracts.MomentumExhausted:
		score += warnMomentumExhausted
	}
	return score
}
