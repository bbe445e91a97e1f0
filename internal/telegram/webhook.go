package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// WebhookStatus is the registered webhook as reported by the Bot API.
type WebhookStatus struct {
	URL                string `json:"url"`
	PendingUpdateCount int    `json:"pending_update_count"`
	LastErrorDate      int64  `json:"last_error_date,omitempty"`
	LastErrorMessage   string `json:"last_error_message,omitempty"`
	MaxConnections     int    `json:"max_connections,omitempty"`
	IPAddress          string `json:"ip_address,omitempty"`
}

// SetWebhook registers url as the update endpoint.
func (c *Client) SetWebhook(url string) error {
	cfg, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("parse webhook url: %w", err)
	}
	if _, err := c.api.Request(cfg); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	slog.Info("Webhook registered", "url", url)
	return nil
}

// DeleteWebhook unregisters the webhook so long polling can be used.
func (c *Client) DeleteWebhook() error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// WebhookInfo returns the currently registered webhook.
func (c *Client) WebhookInfo() (WebhookStatus, error) {
	info, err := c.api.GetWebhookInfo()
	if err != nil {
		return WebhookStatus{}, fmt.Errorf("get webhook info: %w", err)
	}
	return WebhookStatus{
		URL:                info.URL,
		PendingUpdateCount: info.PendingUpdateCount,
		LastErrorDate:      int64(info.LastErrorDate),
		LastErrorMessage:   info.LastErrorMessage,
		MaxConnections:     info.MaxConnections,
		IPAddress:          info.IPAddress,
	}, nil
}

// Poll receives updates by long polling until ctx is done and hands each to
// d. Any registered webhook is removed first.
func (c *Client) Poll(ctx context.Context, d *Dispatcher) error {
	if err := c.DeleteWebhook(); err != nil {
		return err
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := c.api.GetUpdatesChan(cfg)
	slog.Info("Long polling started", "bot", c.username)

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			slog.Info("Long polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			d.SubmitUpdate(update)
		}
	}
}
