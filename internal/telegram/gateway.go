package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/remodel-intake/internal/intake"
	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Gateway sends prompts to operators. It implements intake.PromptSink.
type Gateway struct {
	api botAPI
}

// NewGateway creates a prompt gateway on c.
func NewGateway(c *Client) *Gateway {
	return &Gateway{api: c.api}
}

// SendPrompt sends reply as a Markdown message with its keyboard hint.
func (g *Gateway) SendPrompt(_ context.Context, reply intake.Reply) error {
	msg := tgbotapi.NewMessage(reply.ChatID, reply.Text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	switch reply.Keyboard {
	case intake.KeyboardSkip:
		if reply.SkipLabel != "" {
			kb := tgbotapi.NewReplyKeyboard(
				tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(reply.SkipLabel)),
			)
			kb.ResizeKeyboard = true
			kb.OneTimeKeyboard = true
			msg.ReplyMarkup = kb
		}
	case intake.KeyboardRemove:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}

	if _, err := g.api.Send(msg); err != nil {
		return fmt.Errorf("send message to chat %d: %w", reply.ChatID, err)
	}
	return nil
}

// AdminNotifier delivers submission summaries to the administrator chat.
// It implements intake.Notifier.
type AdminNotifier struct {
	api        botAPI
	chatID     int64
	maxRetries uint64
	initial    time.Duration
}

// NewAdminNotifier creates a notifier for chatID that retries transient
// failures up to maxRetries times.
func NewAdminNotifier(c *Client, chatID int64, maxRetries int) *AdminNotifier {
	return newAdminNotifier(c.api, chatID, maxRetries)
}

func newAdminNotifier(api botAPI, chatID int64, maxRetries int) *AdminNotifier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &AdminNotifier{
		api:        api,
		chatID:     chatID,
		maxRetries: uint64(maxRetries),
		initial:    500 * time.Millisecond,
	}
}

// Notify sends summary as plain text. Answers are operator-typed and may not
// be valid Markdown.
func (n *AdminNotifier) Notify(ctx context.Context, summary string) error {
	if n.chatID == 0 {
		return errors.New("admin chat id is not configured")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.initial
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		_, err := n.api.Send(tgbotapi.NewMessage(n.chatID, summary))
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("Admin notification failed, retrying", "chat_id", n.chatID, "attempt", attempt, "error", err)
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, n.maxRetries), ctx)); err != nil {
		return fmt.Errorf("notify admin chat %d after %d attempts: %w", n.chatID, attempt, err)
	}
	return nil
}

// retryable reports whether a Bot API failure is worth retrying. Client
// errors other than rate limiting are permanent.
func retryable(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}

var (
	_ intake.PromptSink = (*Gateway)(nil)
	_ intake.Notifier   = (*AdminNotifier)(nil)
)
