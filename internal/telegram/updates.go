package telegram

import (
	"strconv"
	"strings"

	"github.com/ashureev/remodel-intake/internal/intake"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ToInbound converts a Bot API update into an intake message. ok is false
// for updates the intake flow does not handle: non-message updates, group
// chats and messages without a sender.
func ToInbound(update tgbotapi.Update) (intake.Inbound, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return intake.Inbound{}, false
	}
	if !msg.Chat.IsPrivate() || msg.From.IsBot {
		return intake.Inbound{}, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	in := intake.Inbound{
		UserID:   strconv.FormatInt(msg.From.ID, 10),
		UserName: msg.From.UserName,
		ChatID:   msg.Chat.ID,
		Text:     strings.TrimSpace(text),
	}
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			in.IsStart = true
		case "cancel":
			in.IsCancel = true
		}
	}
	return in, true
}
