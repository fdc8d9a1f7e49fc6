package risk

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// MonteCarloConfig configures the path simulator
type MonteCarloConfig struct {
	NumPaths int   // simulated price paths
	MaxSteps int   // safety bound per path
	Seed     int64 // 0 = time-based
}

// DefaultMonteCarloConfig returns the default path simulation settings
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		NumPaths: 10_000,
		MaxSteps: 100_000,
	}
}

// MonteCarloSimulator estimates barrier-hit probabilities by simulating
// discrete random-walk paths. 해석해(Simulate)의 교차 검증용.
type MonteCarloSimulator struct {
	config MonteCarloConfig
	rng    *rand.Rand
}

// NewMonteCarloSimulator creates a path simulator
func NewMonteCarloSimulator(config MonteCarloConfig) *MonteCarloSimulator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MonteCarloSimulator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Estimate runs paths between the two absorbing barriers and returns the
// fraction that reached the target first.
func (mc *MonteCarloSimulator) Estimate(entry, stop, target, atr float64) (Outcome, error) {
	analytic, err := Simulate(entry, stop, target, atr)
	if err != nil {
		return Outcome{}, err
	}

	// 스텝 크기는 ATR의 1/10: 장벽 해상도와 실행 시간의 균형
	step := atr / 10
	stopDist := math.Abs(entry - stop)
	targetDist := math.Abs(target - entry)

	hits := 0
	for i := 0; i < mc.config.NumPaths; i++ {
		pos := 0.0 // displacement toward target (+) or stop (-)
		for s := 0; s < mc.config.MaxSteps; s++ {
			if mc.rng.Intn(2) == 0 {
				pos += step
			} else {
				pos -= step
			}
			if pos >= targetDist {
				hits++
				break
			}
			if pos <= -stopDist {
				break
			}
		}
	}

	pTarget := float64(hits) / float64(mc.config.NumPaths)
	return Outcome{
		NStop:     analytic.NStop,
		NTarget:   analytic.NTarget,
		PTarget:   pTarget,
		PStop:     1 - pTarget,
		ExpectedR: pTarget - (1 - pTarget),
	}, nil
}

// String formats an outcome for CLI display
func (o Outcome) String() string {
	return fmt.Sprintf("p_target=%.3f p_stop=%.3f expected_r=%+.3f (n_stop=%.2f n_target=%.2f ATR)",
		o.PTarget, o.PStop, o.ExpectedR, o.NStop, o.NTarget)
}
