// Package notify sends rejected moderation decisions to a Telegram chat
// so a human moderator can review them.
package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/review-moderator/internal/moderation"
	"github.com/rs/zerolog/log"
)

// maxDetailsLength truncates product details in notifications.
const maxDetailsLength = 200

// BotSender abstracts the Telegram bot API for sending messages.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier implements moderation.RejectionNotifier.
type TelegramNotifier struct {
	bot    BotSender
	chatID int64
}

// NewTelegramNotifier creates a notifier that posts to chatID.
func NewTelegramNotifier(bot BotSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

// NotifyRejection posts a rejection summary to the moderators chat.
func (n *TelegramNotifier) NotifyRejection(ctx context.Context, d *moderation.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, formatRejection(d))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send rejection notification: %w", err)
	}
	log.Debug().Int64("chatID", n.chatID).Str("decisionId", d.ID).Msg("rejection notification sent")
	return nil
}

func formatRejection(d *moderation.Decision) string {
	var sb strings.Builder
	sb.WriteString("🚫 *Review image rejected*\n\n")
	sb.WriteString(fmt.Sprintf("*Product:* %s\n", escapeMarkdown(truncate(d.ProductDetails, maxDetailsLength))))
	sb.WriteString(fmt.Sprintf("*Reason:* %s\n", escapeMarkdown(d.Reason)))
	sb.WriteString(fmt.Sprintf("*Product images:* %d\n", d.ImageCount))
	if d.Cached {
		sb.WriteString("_Cached verdict_\n")
	}
	sb.WriteString(fmt.Sprintf("\n`%s` · %s", d.ID, escapeMarkdown(d.Model)))
	return sb.String()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

// escapeMarkdown escapes special characters for Telegram Markdown V1.
func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "*", "\\*")
	text = strings.ReplaceAll(text, "_", "\\_")
	text = strings.ReplaceAll(text, "`", "\\`")
	text = strings.ReplaceAll(text, "[", "\\[")
	return text
}

var _ moderation.RejectionNotifier = (*TelegramNotifier)(nil)
