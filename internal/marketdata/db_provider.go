package marketdata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/guardian/internal/contracts"
)

// DBProvider computes ATR and reads feature snapshots from PostgreSQL.
// 캔들/피처 테이블은 수집기(외부 협력자)가 채움.
type DBProvider struct {
	pool *pgxpool.Pool
}

// NewDBProvider creates a new DB-backed market data provider
func NewDBProvider(pool *pgxpool.Pool) *DBProvider {
	return &DBProvider{pool: pool}
}

// GetATR computes ATR over the last `period` bars (True Range SMA)
func (p *DBProvider) GetATR(ctx context.Context, symbol, timeframe string, period int) (float64, error) {
	query := `
		WITH bars AS (
			SELECT
				bar_time,
				high,
				low,
				close,
				LAG(close) OVER (ORDER BY bar_time) AS prev_close
			FROM market.candles
			WHERE symbol = $1 AND timeframe = $2
			ORDER BY bar_time DESC
			LIMIT $3 + 1
		),
		true_ranges AS (
			SELECT
				GREATEST(
					high - low,
					ABS(high - prev_close),
					ABS(low - prev_close)
				) AS true_range
			FROM bars
			WHERE prev_close IS NOT NULL
		)
		SELECT COUNT(*), COALESCE(AVG(true_range), 0) FROM true_ranges
	`

	var count int
	var atr float64
	err := p.pool.QueryRow(ctx, query, symbol, timeframe, period).Scan(&count, &atr)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate ATR for %s %s: %w", symbol, timeframe, err)
	}

	// 봉이 모자라면 트레일링 스킵 대상 (에러 승격 아님)
	if count < period {
		return 0, fmt.Errorf("%w: %s %s has %d/%d bars", contracts.ErrInsufficientHistory, symbol, timeframe, count, period)
	}

	return atr, nil
}

// GetMarketQualityFeatures returns the latest feature snapshot for a symbol
func (p *DBProvider) GetMarketQualityFeatures(ctx context.Context, symbol string) (contracts.MarketQualityFeatures, error) {
	query := `
		SELECT structure, momentum, volatility_state, mtf_alignment,
		       distance_from_mean_sigma, band_position, liquidity_proximity, relative_volume
		FROM market.quality_features
		WHERE symbol = $1
		ORDER BY computed_at DESC
		LIMIT 1
	`

	var f contracts.MarketQualityFeatures
	var structure, momentum, volState string
	err := p.pool.QueryRow(ctx, query, symbol).Scan(
		&structure, &momentum, &volState, &f.MTFAlignment,
		&f.DistanceFromMeanSigma, &f.BandPosition, &f.LiquidityProximity, &f.RelativeVolume,
	)
	if err == pgx.ErrNoRows {
		// 피처 없음 = 중립 스냅샷 (조정 없이 기본 트리거 사용)
		return contracts.MarketQualityFeatures{
			Structure:       contracts.StructureRanging,
			Momentum:        contracts.MomentumGenuine,
			VolatilityState: contracts.VolatilityNormal,
			RelativeVolume:  1.0,
		}, nil
	}
	if err != nil {
		return f, fmt.Errorf("failed to load quality features for %s: %w", symbol, err)
	}

	f.Structure = contracts.StructureState(structure)
	f.Momentum = contracts.MomentumState(momentum)
	f.VolatilityState = contracts.VolatilityState(volState)
	return f, nil
}

// GetFearIndex returns the latest market-fear proxy reading
func (p *DBProvider) GetFearIndex(ctx context.Context) (float64, error) {
	query := `
		SELECT value
		FROM market.fear_index
		ORDER BY observed_at DESC
		LIMIT 1
	`

	var value float64
	err := p.pool.QueryRow(ctx, query).Scan(&value)
	if err == pgx.ErrNoRows {
		return 0, nil // 지수 미수집 = 평온 가정 (하이브리드 조정 비활성)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load fear index: %w", err)
	}

	return value, nil
}
