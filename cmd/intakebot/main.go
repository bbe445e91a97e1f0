// Remodel intake bot: collects remodel project details from operators over
// Telegram and forwards a summary to the administrator chat.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/remodel-intake/internal/config"
	"github.com/ashureev/remodel-intake/internal/logging"
	"github.com/ashureev/remodel-intake/internal/schema"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var (
	cfg        *config.Config
	logCleanup = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:           "intakebot",
	Short:         "Conversational remodel project intake bot",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file found, using environment variables")
		}

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		logger, cleanup, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		logCleanup = cleanup
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if err := logCleanup(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(newServeCmd(), newWebhookCmd(), newSchemaCmd(), newRedeliverCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// loadSchema returns the override schema from INTAKE_SCHEMA_PATH or the default.
func loadSchema(c *config.Config) (*schema.Schema, error) {
	if c.Intake.SchemaPath == "" {
		return schema.Default(), nil
	}
	s, err := schema.LoadFile(c.Intake.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", c.Intake.SchemaPath, err)
	}
	return s, nil
}
