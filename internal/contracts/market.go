package contracts

import "time"

// Position is a live position snapshot from the execution venue
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"open_price"`
	CurrentPrice float64   `json:"current_price"`
	StopLoss     float64   `json:"stop_loss"`   // 0 = not set
	TakeProfit   float64   `json:"take_profit"` // 0 = not set
}

// Quote is a bid/ask pair for a symbol
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	At     time.Time `json:"at"`
}

// Spread returns the ask-bid spread in price units
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// StructureState classifies the market structure signal
type StructureState string

const (
	StructureTrending StructureState = "TRENDING"
	StructureRanging  StructureState = "RANGING"
	StructureBreak    StructureState = "BREAK" // 구조 붕괴
)

// MomentumState classifies momentum quality
type MomentumState string

const (
	MomentumGenuine   MomentumState = "GENUINE"
	MomentumSynthetic MomentumState = "SYNTHETIC" // 얇은 유동성 위의 가짜 추진
	MomentumExhausted MomentumState = "EXHAUSTED"
	MomentumReversal  MomentumState = "REVERSAL"
)

// VolatilityState classifies the volatility regime
type VolatilityState string

const (
	VolatilitySqueeze   VolatilityState = "SQUEEZE"
	VolatilityNormal    VolatilityState = "NORMAL"
	VolatilityExpansion VolatilityState = "EXPANSION"
)

// MarketQualityFeatures is the per-symbol feature snapshot consumed by the
// adaptive threshold calculator and the technical-warning score.
// 계산 자체는 외부 협력자(마켓데이터) 책임, 여기는 형태만 정의.
type MarketQualityFeatures struct {
	Structure             StructureState  `json:"structure"`
	Momentum              MomentumState   `json:"momentum"`
	VolatilityState       VolatilityState `json:"volatility_state"`
	MTFAlignment          int             `json:"mtf_alignment"`            // aligned higher timeframes, 0..3
	DistanceFromMeanSigma float64         `json:"distance_from_mean_sigma"` // |price-mean| in σ units
	BandPosition          float64         `json:"band_position"`            // -1..+1 within fair-value band
	LiquidityProximity    float64         `json:"liquidity_proximity"`      // ATR units to nearest cluster
	RelativeVolume        float64         `json:"relative_volume"`          // 1.0 = session average
}
