// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	Environment string
	DBPath      string
	Bot         BotConfig
	Session     SessionConfig
	Intake      IntakeConfig
	Log         LogConfig

	// AllowedOrigins lists browser origins allowed on the submissions API
	// and the event feed. Empty means same-origin only.
	AllowedOrigins []string
}

// BotConfig controls the Bot API connection and administrator delivery.
type BotConfig struct {
	Token            string
	AdminChatID      int64
	WebhookURL       string
	WebhookPath      string
	NotifyMaxRetries int
	QueueSize        int
}

// SessionConfig controls in-memory session expiry.
type SessionConfig struct {
	// TTL is the idle time after which a session expires. Zero disables expiry.
	TTL           time.Duration
	SweepInterval time.Duration
}

// IntakeConfig controls the question flow.
type IntakeConfig struct {
	SchemaPath string
	AutoStart  bool
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string
	File  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	adminChatID, err := getEnvInt64("ADMIN_CHAT_ID", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("APP_ENV", "production"),
		DBPath:      getEnv("DB_PATH", "./data/intake.db"),
		Bot: BotConfig{
			Token:            getEnv("BOT_TOKEN", ""),
			AdminChatID:      adminChatID,
			WebhookURL:       getEnv("WEBHOOK_URL", ""),
			WebhookPath:      getEnv("WEBHOOK_PATH", "/webhook"),
			NotifyMaxRetries: getEnvInt("NOTIFY_MAX_RETRIES", 3),
			QueueSize:        getEnvInt("DISPATCH_QUEUE_SIZE", 32),
		},
		Session: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", 24*time.Hour),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		},
		Intake: IntakeConfig{
			SchemaPath: getEnv("INTAKE_SCHEMA_PATH", ""),
			AutoStart:  getEnvBool("INTAKE_AUTO_START", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", nil)
	if cfg.AllowedOrigins == nil && cfg.IsDevelopment() {
		cfg.AllowedOrigins = []string{"*"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// BOT_TOKEN is checked by the commands that need it.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if !strings.HasPrefix(c.Bot.WebhookPath, "/") {
		return fmt.Errorf("WEBHOOK_PATH must start with /")
	}
	if c.Bot.WebhookURL != "" {
		u, err := url.Parse(c.Bot.WebhookURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("WEBHOOK_URL must be an absolute https URL")
		}
	}
	if c.Bot.NotifyMaxRetries < 0 {
		return fmt.Errorf("NOTIFY_MAX_RETRIES must be >= 0")
	}
	if c.Bot.QueueSize <= 0 {
		return fmt.Errorf("DISPATCH_QUEUE_SIZE must be > 0")
	}
	if c.Session.TTL < 0 {
		return fmt.Errorf("SESSION_TTL must be >= 0")
	}
	if c.Session.TTL > 0 && c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be > 0 when SESSION_TTL is set")
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ALLOWED_ORIGINS entry %q must be * or scheme://host", origin)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// RequireBot checks the settings needed to talk to the Bot API.
func (c *Config) RequireBot() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// WebhookEndpoint returns the full public webhook URL: WEBHOOK_URL joined
// with WEBHOOK_PATH unless WEBHOOK_URL already carries a path.
func (c *Config) WebhookEndpoint() string {
	if c.Bot.WebhookURL == "" {
		return ""
	}
	u, err := url.Parse(c.Bot.WebhookURL)
	if err != nil {
		return c.Bot.WebhookURL
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = c.Bot.WebhookPath
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if out == nil {
		return fallback
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer chat id: %w", key, err)
	}
	return n, nil
}

// getEnvDuration accepts Go durations ("30m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
