package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/pkg/config"
	"github.com/wonny/guardian/pkg/logger"
)

// BridgeClient talks to the terminal bridge over REST.
// 브리지는 터미널 옆에서 돌며 포지션/주문 원시 연산을 HTTP로 노출.
type BridgeClient struct {
	client *resty.Client
	logger *logger.Logger
}

// bridgeResponse is the uniform bridge envelope
type bridgeResponse struct {
	OK        bool   `json:"ok"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

type positionsResponse struct {
	bridgeResponse
	Positions []bridgePosition `json:"positions"`
}

type bridgePosition struct {
	Ticket       int64   `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"` // BUY / SELL
	Volume       float64 `json:"volume"`
	OpenPrice    float64 `json:"open_price"`
	CurrentPrice float64 `json:"current_price"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
}

type quoteResponse struct {
	bridgeResponse
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// NewBridgeClient creates a venue client from config
func NewBridgeClient(cfg config.VenueConfig, log *logger.Logger) *BridgeClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &BridgeClient{
		client: client,
		logger: log.WithComponent("venue"),
	}
}

// ListOpenPositions returns a snapshot of all live positions
func (b *BridgeClient) ListOpenPositions(ctx context.Context) ([]contracts.Position, error) {
	var result positionsResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/positions")
	if err != nil {
		return nil, NewError(ReasonTransient, "list_positions", 0, err.Error())
	}
	if resp.IsError() || !result.OK {
		return nil, NewError(classifyBridgeCode(result.ErrorCode), "list_positions", 0, result.Message)
	}

	positions := make([]contracts.Position, 0, len(result.Positions))
	for _, p := range result.Positions {
		positions = append(positions, contracts.Position{
			Ticket:       p.Ticket,
			Symbol:       p.Symbol,
			Direction:    contracts.Direction(p.Type),
			Volume:       p.Volume,
			OpenPrice:    p.OpenPrice,
			CurrentPrice: p.CurrentPrice,
			StopLoss:     p.StopLoss,
			TakeProfit:   p.TakeProfit,
		})
	}
	return positions, nil
}

// GetQuote returns the current bid/ask for a symbol
func (b *BridgeClient) GetQuote(ctx context.Context, symbol string) (contracts.Quote, error) {
	var result quoteResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&result).
		SetQueryParam("symbol", symbol).
		Get("/quote")
	if err != nil {
		return contracts.Quote{}, NewError(ReasonTransient, "quote", 0, err.Error())
	}
	if resp.IsError() || !result.OK {
		return contracts.Quote{}, NewError(classifyBridgeCode(result.ErrorCode), "quote", 0, result.Message)
	}

	return contracts.Quote{
		Symbol: result.Symbol,
		Bid:    result.Bid,
		Ask:    result.Ask,
		At:     time.Now(),
	}, nil
}

// ModifyStop moves the protective stop of a position
func (b *BridgeClient) ModifyStop(ctx context.Context, ticket int64, newStop float64) error {
	return b.post(ctx, "modify_stop", ticket, "/positions/modify", map[string]interface{}{
		"ticket":    ticket,
		"stop_loss": newStop,
	})
}

// ClosePartial closes the given volume of a position
func (b *BridgeClient) ClosePartial(ctx context.Context, ticket int64, volume float64) error {
	return b.post(ctx, "close_partial", ticket, "/positions/close", map[string]interface{}{
		"ticket": ticket,
		"volume": volume,
	})
}

// CloseFull closes the entire remaining position
func (b *BridgeClient) CloseFull(ctx context.Context, ticket int64) error {
	return b.post(ctx, "close_full", ticket, "/positions/close", map[string]interface{}{
		"ticket": ticket,
	})
}

// post sends a state-changing call and classifies the outcome
func (b *BridgeClient) post(ctx context.Context, op string, ticket int64, path string, body map[string]interface{}) error {
	var result bridgeResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(path)
	if err != nil {
		return NewError(ReasonTransient, op, ticket, err.Error())
	}
	if resp.IsError() || !result.OK {
		reason := classifyBridgeCode(result.ErrorCode)
		b.logger.WithFields(map[string]interface{}{
			"op":     op,
			"ticket": ticket,
			"code":   result.ErrorCode,
			"reason": string(reason),
		}).Debug("Bridge call rejected")
		return NewError(reason, op, ticket, fmt.Sprintf("%s (%s)", result.Message, result.ErrorCode))
	}
	return nil
}
