package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/remodel-intake/internal/store"
	"github.com/ashureev/remodel-intake/internal/telegram"
	"github.com/spf13/cobra"
)

func newRedeliverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redeliver",
		Short: "Resend archived submissions whose admin notification failed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cfg.Bot.AdminChatID == 0 {
				return fmt.Errorf("ADMIN_CHAT_ID is required")
			}

			repo, err := store.NewSQLite(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			defer func() { _ = repo.Close() }()

			pending, err := repo.ListUndelivered(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("Nothing to redeliver")
				return nil
			}

			client, err := botClient()
			if err != nil {
				return err
			}
			notifier := telegram.NewAdminNotifier(client, cfg.Bot.AdminChatID, cfg.Bot.NotifyMaxRetries)

			delivered := 0
			for _, sub := range pending {
				if err := notifier.Notify(ctx, sub.Summary); err != nil {
					slog.Error("Redelivery failed", "submission_id", sub.ID, "error", err)
					continue
				}
				if err := repo.MarkDelivered(ctx, sub.ID, time.Now()); err != nil {
					slog.Warn("Failed to mark submission delivered", "submission_id", sub.ID, "error", err)
				}
				delivered++
			}
			fmt.Printf("Redelivered %d of %d submissions\n", delivered, len(pending))
			if delivered < len(pending) {
				return fmt.Errorf("%d submissions still undelivered", len(pending)-delivered)
			}
			return nil
		},
	}
}
