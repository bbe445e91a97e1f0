package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ashureev/remodel-intake/internal/telegram"
	"github.com/spf13/cobra"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Bot API webhook registration",
	}

	set := &cobra.Command{
		Use:   "set [url]",
		Short: "Register the webhook (defaults to WEBHOOK_URL + WEBHOOK_PATH)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			endpoint := cfg.WebhookEndpoint()
			if len(args) == 1 {
				endpoint = args[0]
			}
			if endpoint == "" {
				return fmt.Errorf("no webhook url: pass one or set WEBHOOK_URL")
			}
			client, err := botClient()
			if err != nil {
				return err
			}
			if err := client.SetWebhook(endpoint); err != nil {
				return err
			}
			fmt.Printf("Webhook set to %s\n", endpoint)
			return nil
		},
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Print the current webhook registration",
		RunE: func(_ *cobra.Command, _ []string) error {
			client, err := botClient()
			if err != nil {
				return err
			}
			status, err := client.WebhookInfo()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}

	remove := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook registration",
		RunE: func(_ *cobra.Command, _ []string) error {
			client, err := botClient()
			if err != nil {
				return err
			}
			if err := client.DeleteWebhook(); err != nil {
				return err
			}
			fmt.Println("Webhook deleted")
			return nil
		},
	}

	cmd.AddCommand(set, info, remove)
	return cmd
}

func botClient() (*telegram.Client, error) {
	if err := cfg.RequireBot(); err != nil {
		return nil, err
	}
	return telegram.NewClient(cfg.Bot.Token, cfg.IsDevelopment())
}
