package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config holds the application configuration.
type Config struct {
	BotToken             string  `envconfig:"BOT_TOKEN" required:"true"`
	CheckIntervalMinutes int     `envconfig:"CHECK_INTERVAL" default:"60"`
	PriceAlertThreshold  float64 `envconfig:"PRICE_ALERT_THRESHOLD" default:"5"`
	DatabasePath         string  `envconfig:"DATABASE_PATH" default:"./products.db"`
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "process environment")
	}

	if cfg.BotToken == "" {
		return nil, errors.New("BOT_TOKEN environment variable is required")
	}
	if cfg.CheckIntervalMinutes <= 0 {
		return nil, errors.Errorf("CHECK_INTERVAL must be a positive number of minutes, got %d", cfg.CheckIntervalMinutes)
	}
	if cfg.PriceAlertThreshold <= 0 {
		return nil, errors.Errorf("PRICE_ALERT_THRESHOLD must be a positive percentage, got %v", cfg.PriceAlertThreshold)
	}

	return &cfg, nil
}

// CheckInterval returns the monitor interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMinutes) * time.Minute
}
