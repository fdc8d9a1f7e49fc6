package contracts

import "github.com/shopspring/decimal"

// LotStep is the venue lot granularity
// 브리지가 심볼별 스텝을 제공하기 전까지는 고정값 사용
const LotStep = 0.01

// NormalizeVolume rounds a volume down to the venue lot step.
// Decimal arithmetic so 0.07*0.5 does not become 0.034999....
func NormalizeVolume(volume float64) float64 {
	if volume <= 0 {
		return 0
	}

	v := decimal.NewFromFloat(volume)
	step := decimal.NewFromFloat(LotStep)

	normalized := v.Div(step).Floor().Mul(step)
	f, _ := normalized.Float64()
	return f
}

// PartialVolume computes the close size for a partial exit.
// The fraction applies to the CURRENTLY open volume, never the original.
// Returns ok=false when the normalized close size falls below minVolume —
// 최소 단위 미만 포지션을 만드는 청산은 아예 시도하지 않음.
func PartialVolume(currentVolume, fraction, minVolume float64) (float64, bool) {
	if currentVolume <= 0 || fraction <= 0 {
		return 0, false
	}

	raw := decimal.NewFromFloat(currentVolume).Mul(decimal.NewFromFloat(fraction))
	rawF, _ := raw.Float64()

	closeVolume := NormalizeVolume(rawF)
	if closeVolume < minVolume || closeVolume <= 0 {
		return 0, false
	}
	if closeVolume > currentVolume {
		closeVolume = NormalizeVolume(currentVolume)
	}

	return closeVolume, true
}
