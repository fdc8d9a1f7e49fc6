package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/pkg/config"
	"github.com/wonny/guardian/pkg/logger"
)

// TelegramNotifier delivers action messages to a Telegram chat.
// 실패해도 에러만 로그하고 엔진에는 영향 없음.
type TelegramNotifier struct {
	client *resty.Client
	chatID string
	logger *logger.Logger
}

// NewTelegramNotifier creates a Telegram bot notifier
func NewTelegramNotifier(cfg config.TelegramConfig, log *logger.Logger) *TelegramNotifier {
	client := resty.New().
		SetBaseURL(fmt.Sprintf("https://api.telegram.org/bot%s", cfg.BotToken)).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)

	return &TelegramNotifier{
		client: client,
		chatID: cfg.ChatID,
		logger: log.WithComponent("telegram"),
	}
}

// Notify sends the formatted action message via sendMessage
func (n *TelegramNotifier) Notify(ctx context.Context, event *contracts.ActionEvent) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": n.chatID,
			"text":    FormatMessage(event),
		}).
		Post("/sendMessage")

	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram send failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	n.logger.WithFields(map[string]interface{}{
		"ticket": event.Ticket,
		"action": event.Action,
	}).Debug("Telegram notification sent")
	return nil
}

// SendText sends a plain text message (used by maintenance jobs)
func (n *TelegramNotifier) SendText(ctx context.Context, text string) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": n.chatID,
			"text":    text,
		}).
		Post("/sendMessage")

	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram send failed: status %d", resp.StatusCode())
	}
	return nil
}
