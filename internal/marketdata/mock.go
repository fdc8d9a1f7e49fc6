package marketdata

import (
	"context"
	"sync"

	"github.com/wonny/guardian/internal/contracts"
)

// MockProvider implements Provider for testing
type MockProvider struct {
	mu sync.Mutex

	ATRs      map[string]float64 // keyed by symbol
	ATRErrors map[string]error
	Features  map[string]contracts.MarketQualityFeatures
	FearIndex float64
}

// NewMockProvider returns a mock with neutral defaults
func NewMockProvider() *MockProvider {
	return &MockProvider{
		ATRs:      make(map[string]float64),
		ATRErrors: make(map[string]error),
		Features:  make(map[string]contracts.MarketQualityFeatures),
	}
}

// SetATR sets the ATR for a symbol
func (m *MockProvider) SetATR(symbol string, atr float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ATRs[symbol] = atr
}

// SetATRError scripts an ATR failure for a symbol
func (m *MockProvider) SetATRError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ATRErrors[symbol] = err
}

// SetFeatures sets the feature snapshot for a symbol
func (m *MockProvider) SetFeatures(symbol string, f contracts.MarketQualityFeatures) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Features[symbol] = f
}

// GetATR returns the scripted ATR
func (m *MockProvider) GetATR(ctx context.Context, symbol, timeframe string, period int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.ATRErrors[symbol]; ok {
		return 0, err
	}
	if atr, ok := m.ATRs[symbol]; ok {
		return atr, nil
	}
	return 0, contracts.ErrInsufficientHistory
}

// GetMarketQualityFeatures returns the scripted features (neutral fallback)
func (m *MockProvider) GetMarketQualityFeatures(ctx context.Context, symbol string) (contracts.MarketQualityFeatures, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.Features[symbol]; ok {
		return f, nil
	}
	return contracts.MarketQualityFeatures{
		Structure:       contracts.StructureRanging,
		Momentum:        contracts.MomentumGenuine,
		VolatilityState: contracts.VolatilityNormal,
		RelativeVolume:  1.0,
	}, nil
}

// GetFearIndex returns the scripted fear index
func (m *MockProvider) GetFearIndex(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FearIndex, nil
}
