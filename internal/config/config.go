// Package config loads process configuration from the environment and the
// tracked product hierarchy from its YAML file.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "pricewatch/internal/errors"
)

// Source kinds.
const (
	SourceHTTP    = "http"
	SourceBrowser = "browser"
)

// Config holds application configuration
type Config struct {
	// Process
	Env      string
	LogLevel string

	// Server
	Port   string
	APIKey string

	// Catalog
	ProductsFile string

	// Price source
	Source         string
	BrowserURL     string
	UserAgent      string
	RequestTimeout time.Duration

	// Tracker
	MaxAttempts int
	BackoffBase time.Duration
	StoreDelay  time.Duration
	Workers     int

	// Scheduler
	RunInterval time.Duration
	RunTimeout  time.Duration

	// Notifiers
	Notifiers []string
	Telegram  TelegramConfig
	SMTP      SMTPConfig
}

// TelegramConfig holds Telegram bot credentials.
type TelegramConfig struct {
	Token  string
	ChatID string
}

// SMTPConfig holds e-mail delivery settings.
type SMTPConfig struct {
	Server   string
	Port     int
	From     string
	Password string
	To       []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", ""),

		Port:   getEnv("PORT", "8080"),
		APIKey: getEnv("API_KEY", ""),

		ProductsFile: getEnv("PRODUCTS_FILE", "config/products.yml"),

		Source:         strings.ToLower(getEnv("SOURCE", SourceHTTP)),
		BrowserURL:     getEnv("BROWSER_URL", ""),
		UserAgent:      getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 30*time.Second),

		MaxAttempts: getInt("MAX_ATTEMPTS", 3),
		BackoffBase: getDuration("BACKOFF_BASE", time.Second),
		StoreDelay:  getDuration("STORE_DELAY", 2*time.Second),
		Workers:     getInt("WORKERS", 1),

		RunInterval: getDuration("RUN_INTERVAL", 6*time.Hour),
		RunTimeout:  getDuration("RUN_TIMEOUT", time.Hour),

		Notifiers: splitList(strings.ToLower(getEnv("NOTIFIERS", "log"))),
		Telegram: TelegramConfig{
			Token:  getEnv("TG_TOKEN", ""),
			ChatID: getEnv("TG_CHAT_ID", ""),
		},
		SMTP: SMTPConfig{
			Server:   getEnv("SMTP_SERVER", "smtp.gmail.com"),
			Port:     getInt("SMTP_PORT", 587),
			From:     getEnv("EMAIL_FROM", ""),
			Password: getEnv("EMAIL_PASSWORD", ""),
			To:       splitList(getEnv("EMAIL_TO", "")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the tracker cannot run with.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceHTTP, SourceBrowser:
	default:
		return apperrors.WithMessage(apperrors.ErrInvalidConfig, "SOURCE must be http or browser, got "+strconv.Quote(c.Source))
	}
	if c.MaxAttempts < 1 {
		return apperrors.WithMessage(apperrors.ErrInvalidConfig, "MAX_ATTEMPTS must be at least 1")
	}
	if c.Workers < 1 {
		return apperrors.WithMessage(apperrors.ErrInvalidConfig, "WORKERS must be at least 1")
	}
	if c.RunInterval <= 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidConfig, "RUN_INTERVAL must be positive")
	}
	for _, n := range c.Notifiers {
		switch n {
		case "log":
		case "telegram":
			if c.Telegram.Token == "" || c.Telegram.ChatID == "" {
				return apperrors.WithMessage(apperrors.ErrInvalidConfig, "TG_TOKEN and TG_CHAT_ID are required for the telegram notifier")
			}
		case "email":
			if c.SMTP.From == "" || len(c.SMTP.To) == 0 {
				return apperrors.WithMessage(apperrors.ErrInvalidConfig, "EMAIL_FROM and EMAIL_TO are required for the email notifier")
			}
		default:
			return apperrors.WithMessage(apperrors.ErrInvalidConfig, "unknown notifier "+strconv.Quote(n))
		}
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
