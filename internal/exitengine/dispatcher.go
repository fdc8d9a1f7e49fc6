package exitengine

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/internal/venue"
	"github.com/wonny/guardian/pkg/logger"
)

// Dispatcher translates evaluation decisions into venue calls with bounded
// retries and rate limiting.
//
// 실패 분류별 정책:
// - trading_disallowed: 같은 사이클 내 재시도 금지, 즉시 반환
// - invalid_volume:     재시도 무의미, 즉시 반환
// - transient:          짧은 백오프로 최대 maxRetries회
// - unknown:            보수적으로 1회만 추가 시도
type Dispatcher struct {
	venue      venue.Venue
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	metrics    *Metrics
	logger     *logger.Logger
}

// NewDispatcher creates a dispatcher around a venue
func NewDispatcher(v venue.Venue, callsPerSec float64, maxRetries int, retryDelay time.Duration, metrics *Metrics, log *logger.Logger) *Dispatcher {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Dispatcher{
		venue:      v,
		limiter:    rate.NewLimiter(rate.Limit(callsPerSec), 1),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		metrics:    metrics,
		logger:     log.WithComponent("dispatcher"),
	}
}

// ListOpenPositions fetches the live position snapshot (no retry — 다음
// 사이클이 곧 다시 옴)
func (d *Dispatcher) ListOpenPositions(ctx context.Context) ([]contracts.Position, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	positions, err := d.venue.ListOpenPositions(ctx)
	if err != nil {
		d.countError(err)
		return nil, err
	}
	return positions, nil
}

// GetQuote fetches the current quote (no retry)
func (d *Dispatcher) GetQuote(ctx context.Context, symbol string) (contracts.Quote, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return contracts.Quote{}, err
	}
	q, err := d.venue.GetQuote(ctx, symbol)
	if err != nil {
		d.countError(err)
		return contracts.Quote{}, err
	}
	return q, nil
}

// ModifyStop moves the protective stop with retry policy applied
func (d *Dispatcher) ModifyStop(ctx context.Context, ticket int64, newStop float64) error {
	return d.call(ctx, "modify_stop", ticket, func() error {
		return d.venue.ModifyStop(ctx, ticket, newStop)
	})
}

// ClosePartial closes part of a position with retry policy applied
func (d *Dispatcher) ClosePartial(ctx context.Context, ticket int64, volume float64) error {
	return d.call(ctx, "close_partial", ticket, func() error {
		return d.venue.ClosePartial(ctx, ticket, volume)
	})
}

// CloseFull closes the remaining position with retry policy applied
func (d *Dispatcher) CloseFull(ctx context.Context, ticket int64) error {
	return d.call(ctx, "close_full", ticket, func() error {
		return d.venue.CloseFull(ctx, ticket)
	})
}

// call runs a mutating venue call under the classified retry policy
func (d *Dispatcher) call(ctx context.Context, op string, ticket int64, fn func() error) error {
	for attempt := 1; ; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		d.countError(err)

		reason := venue.ReasonOf(err)
		switch reason {
		case venue.ReasonTradingDisallowed, venue.ReasonInvalidVolume:
			return err
		case venue.ReasonUnknown:
			if attempt >= 2 {
				return err
			}
		default: // transient
			if attempt >= d.maxRetries {
				return err
			}
		}

		d.logger.WithFields(map[string]interface{}{
			"op":      op,
			"ticket":  ticket,
			"reason":  reason,
			"attempt": attempt,
		}).Warn("Venue call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retryDelay):
		}
	}
}

func (d *Dispatcher) countError(err error) {
	if d.metrics != nil {
		d.metrics.VenueErrors.WithLabelValues(string(venue.ReasonOf(err))).Inc()
	}
}
