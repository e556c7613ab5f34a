// Package notify delivers tracker alerts to Telegram chats.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"job_distributor/internal/tracker"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends alerts to a fixed set of chats.
type Telegram struct {
	api   telegramAPI
	chats []int64
	log   *slog.Logger
}

// NewTelegram creates a Telegram sink with the given bot token.
func NewTelegram(token string, chats []int64, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, chats: chats, log: log}, nil
}

// Send delivers the alert to every chat. Delivery continues past a failing
// chat; the first error is returned.
func (t *Telegram) Send(_ context.Context, a tracker.Alert) error {
	text := FormatAlert(a)
	var first error
	for _, chatID := range t.chats {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := t.api.Send(msg); err != nil {
			t.log.Error("send alert", "chat_id", chatID, "error", err)
			if first == nil {
				first = fmt.Errorf("send to chat %d: %w", chatID, err)
			}
		}
	}
	return first
}

// FormatAlert formats an alert as a Telegram message.
func FormatAlert(a tracker.Alert) string {
	var b strings.Builder
	switch a.Kind {
	case tracker.AlertBudgetCritical:
		b.WriteString("[budget critical]\n\n")
	case tracker.AlertBudgetWarning:
		b.WriteString("[budget warning]\n\n")
	case tracker.AlertLowPerformance:
		b.WriteString("[low performance]\n\n")
	}
	b.WriteString(a.Message())
	return b.String()
}
