// Package venue - 실행 베뉴(터미널 브리지) 연동
// ⭐ SSOT: 베뉴 인터페이스와 실패 분류는 여기서만 정의
package venue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/guardian/internal/contracts"
)

// Venue defines the abstract execution venue contract.
// One logical venue exposing position and order-modification primitives.
type Venue interface {
	// ListOpenPositions returns a snapshot of all live positions
	ListOpenPositions(ctx context.Context) ([]contracts.Position, error)

	// GetQuote returns the current bid/ask for a symbol
	GetQuote(ctx context.Context, symbol string) (contracts.Quote, error)

	// ModifyStop moves the protective stop of a position
	ModifyStop(ctx context.Context, ticket int64, newStop float64) error

	// ClosePartial closes the given volume of a position
	ClosePartial(ctx context.Context, ticket int64, volume float64) error

	// CloseFull closes the entire remaining position
	CloseFull(ctx context.Context, ticket int64) error
}

// FailureReason classifies a venue-side failure
type FailureReason string

const (
	// ReasonTradingDisallowed: 세션 밖 등 정책상 거래 불가.
	// 같은 사이클 내 재시도 금지, 다음 사이클로 연기.
	ReasonTradingDisallowed FailureReason = "trading_disallowed"

	// ReasonInvalidVolume: 볼륨이 베뉴 제약 위반. 재시도 무의미.
	ReasonInvalidVolume FailureReason = "invalid_volume"

	// ReasonTransient: 일시 오류. 짧은 백오프로 소수 횟수 재시도.
	ReasonTransient FailureReason = "transient"

	// ReasonUnknown: 분류 불가. 보수적으로 transient처럼 1회만 취급.
	ReasonUnknown FailureReason = "unknown"
)

// Error is a classified venue failure
type Error struct {
	Reason FailureReason
	Op     string // modify_stop, close_partial, close_full, list_positions, quote
	Ticket int64
	Msg    string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Ticket != 0 {
		return fmt.Sprintf("venue %s failed for ticket %d (%s): %s", e.Op, e.Ticket, e.Reason, e.Msg)
	}
	return fmt.Sprintf("venue %s failed (%s): %s", e.Op, e.Reason, e.Msg)
}

// NewError builds a classified venue error
func NewError(reason FailureReason, op string, ticket int64, msg string) *Error {
	return &Error{Reason: reason, Op: op, Ticket: ticket, Msg: msg}
}

// ReasonOf extracts the failure reason from any error.
// Non-venue errors (timeouts, network) classify as transient — context
// cancellation은 호출자가 먼저 ctx.Err()로 구분해야 함.
func ReasonOf(err error) FailureReason {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTransient
	}
	return ReasonUnknown
}

// classifyBridgeCode maps bridge retcodes to failure reasons.
// 브리지는 터미널 리턴코드를 문자열로 중계함.
func classifyBridgeCode(code string) FailureReason {
	switch strings.ToUpper(code) {
	case "MARKET_CLOSED", "TRADE_DISABLED", "SESSION_CLOSED", "TRADING_DISALLOWED":
		return ReasonTradingDisallowed
	case "INVALID_VOLUME", "VOLUME_TOO_SMALL", "VOLUME_TOO_LARGE", "INVALID_LOTS":
		return ReasonInvalidVolume
	case "REQUOTE", "PRICE_CHANGED", "TIMEOUT", "BUSY", "TOO_MANY_REQUESTS", "NO_CONNECTION":
		return ReasonTransient
	default:
		return ReasonUnknown
	}
}
