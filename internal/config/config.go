package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines runtime configuration for the service. Values load from an
// optional YAML file (MONITOR_CONFIG) with environment variables taking
// precedence over both file values and defaults.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`

	JWTSecret string `yaml:"jwt_secret"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Notify NotifyConfig `yaml:"notify"`
	Outbox OutboxConfig `yaml:"outbox"`
}

// NotifyConfig configures alarm notification delivery.
type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	Template       string `yaml:"template"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// OutboxConfig configures the background outbox flush.
type OutboxConfig struct {
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
	BatchSize            int `yaml:"batch_size"`
}

// Timeout returns the notify request timeout as a duration.
func (c NotifyConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FlushInterval returns the outbox flush interval as a duration.
func (c OutboxConfig) FlushInterval() time.Duration {
	if c.FlushIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// Load reads configuration from the optional MONITOR_CONFIG YAML file, then
// applies environment overrides and validates required fields.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:  ":8080",
		LogLevel:  "info",
		LogFormat: "json",
		Notify: NotifyConfig{
			TimeoutSeconds: 5,
		},
		Outbox: OutboxConfig{
			FlushIntervalSeconds: 15,
			BatchSize:            50,
		},
	}

	if path := os.Getenv("MONITOR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenvDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Notify.WebhookURL = getenvDefault("ALARM_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.Template = getenvDefault("ALARM_NOTIFY_TEMPLATE", cfg.Notify.Template)
	cfg.Notify.TimeoutSeconds = getenvIntDefault("ALARM_NOTIFY_TIMEOUT_SECONDS", cfg.Notify.TimeoutSeconds)
	cfg.Outbox.FlushIntervalSeconds = getenvIntDefault("OUTBOX_FLUSH_INTERVAL_SECONDS", cfg.Outbox.FlushIntervalSeconds)
	cfg.Outbox.BatchSize = getenvIntDefault("OUTBOX_BATCH_SIZE", cfg.Outbox.BatchSize)

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("config: AUTH_JWT_SECRET is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
