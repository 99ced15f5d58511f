// Package notify sends job-completion notifications to Telegram.
package notify

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"arcadl/internal/job"
	"arcadl/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts a short summary message when a job reaches a terminal state.
// Send failures are logged, never fatal: notification is best-effort.
type Notifier struct {
	api    telegramAPI
	chatID int64
	log    *slog.Logger
}

// New creates a Notifier for the given bot token and chat.
func New(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Notifier{api: api, chatID: chatID, log: log}, nil
}

// JobFinished sends the terminal-status summary for one job.
func (n *Notifier) JobFinished(source string, status model.JobStatus, stats job.Stats, cause error) {
	msg := tgbotapi.NewMessage(n.chatID, FormatSummary(source, status, stats, cause))
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error("send notification", "chat_id", n.chatID, "error", err)
	}
}

// FormatSummary renders the notification text.
func FormatSummary(source string, status model.JobStatus, stats job.Stats, cause error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] download %s\n", source, status)
	fmt.Fprintf(&b, "pages %d, articles %d, files %d, skipped %d",
		stats.Pages, stats.Articles, stats.Assets, stats.Skipped)
	if cause != nil {
		fmt.Fprintf(&b, "\nerror: %v", cause)
	}
	return b.String()
}
