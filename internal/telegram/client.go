// Package telegram adapts the Bot API to the intake core: outbound prompts,
// administrator notifications, inbound update parsing and per-user dispatch.
package telegram

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botAPI is the subset of *tgbotapi.BotAPI used by this package.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client is a Bot API connection.
type Client struct {
	api      botAPI
	username string
}

// NewClient connects to the Bot API and verifies the token with getMe.
func NewClient(token string, debug bool) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is empty")
	}
	httpClient := &http.Client{Timeout: 70 * time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect to bot api: %w", err)
	}
	bot.Debug = debug
	return &Client{api: bot, username: bot.Self.UserName}, nil
}

// Username returns the bot's own username.
func (c *Client) Username() string {
	return c.username
}
