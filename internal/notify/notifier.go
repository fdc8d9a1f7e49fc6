// Package notify - 커밋된 액션의 사용자 알림
// 커밋된 액션만 알림. 스킵/연기는 로그로만 남김 (알림 스팸 방지).
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/pkg/logger"
)

// Notifier delivers one message per committed action.
// Fire-and-forget: 전달 실패가 엔진 사이클을 막지 않음.
type Notifier interface {
	Notify(ctx context.Context, event *contracts.ActionEvent) error
}

// TextNotifier is implemented by channels that can also carry plain alerts
// (지속되는 거래 불가 상태 등, 액션이 아닌 상태 알림용)
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}

// LogNotifier writes action events to the structured log.
// 텔레그램 비활성 시 기본 알림 채널.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.WithComponent("notify")}
}

// Notify logs the action event
func (n *LogNotifier) Notify(ctx context.Context, event *contracts.ActionEvent) error {
	n.logger.WithFields(map[string]interface{}{
		"ticket":    event.Ticket,
		"symbol":    event.Symbol,
		"action":    event.Action,
		"old_value": event.OldValue,
		"new_value": event.NewValue,
		"price":     event.Price,
		"factors":   strings.Join(event.Factors, ","),
	}).Info("Action committed")
	return nil
}

// SendText logs a plain alert
func (n *LogNotifier) SendText(ctx context.Context, text string) error {
	n.logger.Info(text)
	return nil
}

// FormatMessage renders a human-readable one-liner for an action event
func FormatMessage(event *contracts.ActionEvent) string {
	var b strings.Builder

	switch event.Action {
	case contracts.ActionBreakeven:
		fmt.Fprintf(&b, "🛡 [%s #%d] 손절 → 본전 %.5f (이전 %.5f)", event.Symbol, event.Ticket, event.NewValue, event.OldValue)
	case contracts.ActionPartialClose:
		fmt.Fprintf(&b, "💰 [%s #%d] 부분 청산 %.2f lot @ %.5f", event.Symbol, event.Ticket, event.NewValue, event.Price)
	case contracts.ActionTrail:
		fmt.Fprintf(&b, "📈 [%s #%d] 트레일링 %.5f → %.5f", event.Symbol, event.Ticket, event.OldValue, event.NewValue)
	case contracts.ActionTighten:
		fmt.Fprintf(&b, "⚠️ [%s #%d] 구조 악화, 손절 조임 %.5f → %.5f", event.Symbol, event.Ticket, event.OldValue, event.NewValue)
	case contracts.ActionCriticalExit:
		fmt.Fprintf(&b, "🚨 [%s #%d] 긴급 청산 %.2f lot @ %.5f", event.Symbol, event.Ticket, event.OldValue, event.Price)
	case contracts.ActionHybridWiden:
		fmt.Fprintf(&b, "🌊 [%s #%d] 변동성 확대, 초기 손절 완화 %.5f → %.5f", event.Symbol, event.Ticket, event.OldValue, event.NewValue)
	default:
		fmt.Fprintf(&b, "[%s #%d] %s %.5f → %.5f", event.Symbol, event.Ticket, event.Action, event.OldValue, event.NewValue)
	}

	if event.Reason != "" {
		fmt.Fprintf(&b, "\n사유: %s", event.Reason)
	}
	if len(event.Factors) > 0 {
		fmt.Fprintf(&b, "\n요인: %s", strings.Join(event.Factors, ", "))
	}
	return b.String()
}
