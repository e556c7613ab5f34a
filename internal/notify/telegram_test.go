package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"job_distributor/internal/tracker"
)

type sentMsg struct {
	ChatID  int64
	Text    string
	Preview bool
}

type mockAPI struct {
	mu     sync.Mutex
	sent   []sentMsg
	failOn int64
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, nil
	}
	if msg.ChatID == m.failOn {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	m.mu.Lock()
	m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, Preview: !msg.DisableWebPagePreview})
	m.mu.Unlock()
	return tgbotapi.Message{}, nil
}

func TestTelegramSend(t *testing.T) {
	api := &mockAPI{failOn: 2}
	tg := &Telegram{api: api, chats: []int64{1, 2, 3}, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	a := tracker.Alert{
		Kind: tracker.AlertLowPerformance, CampaignID: 7, Campaign: "Summer",
		Ratio: 0.25, Applications: 25, Target: 100,
	}
	err := tg.Send(context.Background(), a)
	if err == nil || err.Error() != "send to chat 2: chat not found" {
		t.Errorf("Send error = %v, want chat 2 failure", err)
	}

	text := "[low performance]\n\nCampaign 7 (Summer): low performance, 25.0% of target (25 of 100 applications)"
	want := []sentMsg{{ChatID: 1, Text: text}, {ChatID: 3, Text: text}}
	if diff := cmp.Diff(want, api.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatAlert(t *testing.T) {
	tests := []struct {
		kind tracker.AlertKind
		want string
	}{
		{tracker.AlertBudgetCritical, "[budget critical]\n\nCampaign 1 (c): CRITICAL, 96.0% of budget used (96.00 of 100.00)"},
		{tracker.AlertBudgetWarning, "[budget warning]\n\nCampaign 1 (c): 96.0% of budget used (96.00 of 100.00)"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			a := tracker.Alert{Kind: tt.kind, CampaignID: 1, Campaign: "c", Ratio: 0.96, Spent: 96, Budget: 100}
			if got := FormatAlert(a); got != tt.want {
				t.Errorf("FormatAlert mismatch (-want +got):\n%s", cmp.Diff(tt.want, got))
			}
		})
	}
}
