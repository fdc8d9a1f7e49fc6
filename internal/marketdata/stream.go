package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/pkg/logger"
)

// QuoteStream subscribes to the bridge websocket tick feed and keeps the
// last quote per symbol. 엔진은 스냅샷보다 신선한 호가가 있으면 이쪽을 쓴다.
type QuoteStream struct {
	url    string
	logger *logger.Logger

	mu     sync.RWMutex
	quotes map[string]contracts.Quote

	// Reconnect backoff: 2s, 4s, 8s, capped at 16s
	initialDelay time.Duration
	maxDelay     time.Duration
}

// streamTick is one bridge tick message
type streamTick struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// NewQuoteStream creates a quote stream client (not yet connected)
func NewQuoteStream(url string, log *logger.Logger) *QuoteStream {
	return &QuoteStream{
		url:          url,
		logger:       log.WithComponent("quote_stream"),
		quotes:       make(map[string]contracts.Quote),
		initialDelay: 2 * time.Second,
		maxDelay:     16 * time.Second,
	}
}

// Run connects and consumes ticks until the context is cancelled.
// Reconnects with exponential backoff on any read/connect failure.
func (s *QuoteStream) Run(ctx context.Context) {
	delay := s.initialDelay

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.logger.WithError(err).WithField("retry_in", delay.String()).Warn("Quote stream connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, s.maxDelay)
			continue
		}

		s.logger.WithField("url", s.url).Info("Quote stream connected")
		delay = s.initialDelay

		s.consume(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("Quote stream disconnected, reconnecting")
	}
}

// consume reads ticks until error or cancellation
func (s *QuoteStream) consume(ctx context.Context, conn *websocket.Conn) {
	// ctx 취소 시 블로킹 중인 ReadMessage를 깨움
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var tick streamTick
		if err := json.Unmarshal(payload, &tick); err != nil {
			s.logger.WithError(err).Debug("Malformed tick skipped")
			continue
		}
		if tick.Symbol == "" || tick.Bid <= 0 || tick.Ask <= 0 {
			continue
		}

		s.mu.Lock()
		s.quotes[tick.Symbol] = contracts.Quote{
			Symbol: tick.Symbol,
			Bid:    tick.Bid,
			Ask:    tick.Ask,
			At:     time.Now(),
		}
		s.mu.Unlock()
	}
}

// LastQuote returns the cached quote if fresher than maxAge
func (s *QuoteStream) LastQuote(symbol string, maxAge time.Duration) (contracts.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[symbol]
	if !ok || time.Since(q.At) > maxAge {
		return contracts.Quote{}, false
	}
	return q, true
}
