// Package marketdata - 시세/변동성/시장품질 피처 조회
// 피처 계산(레짐 분류, 유동성 클러스터 등)은 외부 협력자가 수행하고
// 이 패키지는 그 결과를 읽기만 한다.
package marketdata

import (
	"context"

	"github.com/wonny/guardian/internal/contracts"
)

// Provider defines the market-data collaborator contract
type Provider interface {
	// GetATR returns the average true range for a symbol/timeframe/period.
	// Returns contracts.ErrInsufficientHistory when not enough bars exist.
	GetATR(ctx context.Context, symbol, timeframe string, period int) (float64, error)

	// GetMarketQualityFeatures returns the latest feature snapshot for a symbol
	GetMarketQualityFeatures(ctx context.Context, symbol string) (contracts.MarketQualityFeatures, error)

	// GetFearIndex returns the current market-fear proxy value
	GetFearIndex(ctx context.Context) (float64, error)
}
