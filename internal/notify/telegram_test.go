package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/review-moderator/internal/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type botSenderMock struct {
	mock.Mock
}

func (m *botSenderMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func testDecision() *moderation.Decision {
	return &moderation.Decision{
		ID:             "6f1c2d3e",
		ProductDetails: "Men's *slim* fit jeans",
		ImageCount:     2,
		Approved:       false,
		Reason:         "Image should not contain reference to other platforms or retailers",
		Model:          "gemini/gemini-2.5-flash",
	}
}

func TestNotifyRejection(t *testing.T) {
	bot := new(botSenderMock)
	bot.On("Send", mock.MatchedBy(func(msg tgbotapi.MessageConfig) bool {
		return msg.ChatID == -1001 &&
			msg.ParseMode == tgbotapi.ModeMarkdown &&
			strings.Contains(msg.Text, "Men's \\*slim\\* fit jeans") &&
			strings.Contains(msg.Text, "other platforms or retailers") &&
			strings.Contains(msg.Text, "*Product images:* 2")
	})).Return(tgbotapi.Message{}, nil)

	n := NewTelegramNotifier(bot, -1001)
	err := n.NotifyRejection(context.Background(), testDecision())

	assert.NoError(t, err)
	bot.AssertExpectations(t)
}

func TestNotifyRejection_SendError(t *testing.T) {
	bot := new(botSenderMock)
	bot.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("chat not found"))

	err := NewTelegramNotifier(bot, 1).NotifyRejection(context.Background(), testDecision())
	assert.ErrorContains(t, err, "chat not found")
}

func TestNotifyRejection_CancelledContext(t *testing.T) {
	bot := new(botSenderMock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTelegramNotifier(bot, 1).NotifyRejection(ctx, testDecision())
	assert.ErrorIs(t, err, context.Canceled)
	bot.AssertNotCalled(t, "Send", mock.Anything)
}

func TestFormatRejection_TruncatesDetails(t *testing.T) {
	d := testDecision()
	d.ProductDetails = strings.Repeat("ä", maxDetailsLength+10)
	d.Cached = true

	text := formatRejection(d)
	assert.Contains(t, text, strings.Repeat("ä", maxDetailsLength)+"…")
	assert.NotContains(t, text, strings.Repeat("ä", maxDetailsLength+1))
	assert.Contains(t, text, "_Cached verdict_")
}
