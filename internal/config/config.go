package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Persistence
	DatabasePath     string
	ScanDefaultsFile string

	// Scheduling
	SchedulerSpec string
	ScanTimeout   time.Duration

	// Azure Storage configuration for scan snapshots
	StorageAccount   string
	StorageContainer string
	ArchiveKeep      int

	// Notification configuration
	TeamsWebhookURL    string
	NotificationEmails []string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	DigestTopIdeas     int

	// API Keys and credentials
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string
	XBearerToken       string
	MastodonToken      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DatabasePath:     getEnv("DATABASE_PATH", "data/signals.db"),
		ScanDefaultsFile: getEnv("SCAN_DEFAULTS_FILE", ""),

		SchedulerSpec: getEnv("SCHEDULER_SPEC", "@every 15m"),
		ScanTimeout:   getDurationEnv("SCAN_TIMEOUT", 10*time.Minute),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "scans"),
		ArchiveKeep:      getIntEnv("AZURE_ARCHIVE_KEEP", 0),

		TeamsWebhookURL:    getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmails: getSliceEnv("NOTIFICATION_EMAIL", nil),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getIntEnv("SMTP_PORT", 587),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		DigestTopIdeas:     getIntEnv("DIGEST_TOP_IDEAS", 5),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUserAgent:    getEnv("REDDIT_USER_AGENT", ""),
		XBearerToken:       getEnv("X_BEARER_TOKEN", ""),
		MastodonToken:      getEnv("MASTODON_TOKEN", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}

	if _, err := cron.ParseStandard(c.SchedulerSpec); err != nil {
		return fmt.Errorf("SCHEDULER_SPEC %q is invalid: %w", c.SchedulerSpec, err)
	}

	if c.ScanTimeout <= 0 {
		return fmt.Errorf("SCAN_TIMEOUT must be positive")
	}

	if c.ArchiveKeep < 0 {
		return fmt.Errorf("AZURE_ARCHIVE_KEEP must not be negative")
	}

	if c.DigestTopIdeas <= 0 {
		return fmt.Errorf("DIGEST_TOP_IDEAS must be positive")
	}

	if len(c.NotificationEmails) > 0 {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// ArchiveEnabled reports whether scan snapshots go to Azure Blob Storage.
func (c *Config) ArchiveEnabled() bool {
	return c.StorageAccount != ""
}

// NotificationsEnabled reports whether any digest channel is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || len(c.NotificationEmails) > 0
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
