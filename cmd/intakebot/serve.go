package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/remodel-intake/internal/api"
	"github.com/ashureev/remodel-intake/internal/events"
	"github.com/ashureev/remodel-intake/internal/intake"
	"github.com/ashureev/remodel-intake/internal/metrics"
	"github.com/ashureev/remodel-intake/internal/session"
	"github.com/ashureev/remodel-intake/internal/store"
	"github.com/ashureev/remodel-intake/internal/telegram"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var poll bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (webhook receiver or long polling)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, poll)
		},
	}
	cmd.Flags().BoolVar(&poll, "poll", false, "receive updates by long polling instead of a webhook")
	return cmd
}

func runServe(ctx context.Context, poll bool) error {
	if err := cfg.RequireBot(); err != nil {
		return err
	}
	if cfg.Bot.AdminChatID == 0 {
		slog.Warn("ADMIN_CHAT_ID is not set, submissions will be archived but not delivered")
	}

	fields, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	slog.Info("Starting intake bot", "port", cfg.Port, "fields", fields.Len(), "poll", poll, "dev", cfg.IsDevelopment())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if pending, err := repo.ListUndelivered(ctx); err == nil && len(pending) > 0 {
		slog.Warn("Undelivered submissions in archive, run redeliver", "count", len(pending))
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	client, err := telegram.NewClient(cfg.Bot.Token, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	slog.Info("Bot API connected", "bot", client.Username())

	recorder := metrics.NewPrometheusRecorder()
	hub := events.NewHub(0, cfg.AllowedOrigins)
	defer hub.Close()

	sessions := session.NewStore()
	engine := intake.NewEngine(fields, intake.DefaultKeywords())
	notifier := telegram.NewAdminNotifier(client, cfg.Bot.AdminChatID, cfg.Bot.NotifyMaxRetries)
	manager := intake.NewManager(engine, sessions, telegram.NewGateway(client), intake.NewFinalizer(fields, notifier, repo), intake.ManagerOptions{
		AutoStart: cfg.Intake.AutoStart,
		Recorder:  recorder,
		Events:    hub,
	})
	dispatcher := telegram.NewDispatcher(manager, cfg.Bot.QueueSize, telegram.DefaultIdleTimeout)

	router := api.NewRouter(api.RouterConfig{
		WebhookPath: cfg.Bot.WebhookPath,
		Webhook:     api.NewWebhookHandler(dispatcher),
		Health:      api.NewHealthHandler(repo, sessions),
		Submissions: api.NewSubmissionHandler(repo),
		Metrics:     recorder.Handler(),
		Events:      hub,

		AllowedOrigins: cfg.AllowedOrigins,
	})

	// The event feed is a long-lived WebSocket, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	session.StartTTLWorker(ctx, sessions, cfg.Session.TTL, cfg.Session.SweepInterval, manager.NotifyExpired)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if poll {
		g.Go(func() error { return client.Poll(gctx, dispatcher) })
	} else if endpoint := cfg.WebhookEndpoint(); endpoint != "" {
		if err := client.SetWebhook(endpoint); err != nil {
			slog.Error("Failed to register webhook", "url", endpoint, "error", err)
		}
	} else {
		slog.Info("WEBHOOK_URL not set, expecting an externally registered webhook", "path", cfg.Bot.WebhookPath)
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			slog.Warn("Dispatcher did not drain before timeout", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}
