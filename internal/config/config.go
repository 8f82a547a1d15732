package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                 int    `yaml:"port"`
	ProductID            string `yaml:"product_id"`
	RESTURL              string `yaml:"rest_url"`
	WebsocketURL         string `yaml:"websocket_url"`
	DepthLevels          int    `yaml:"depth_levels"`
	TradeAlertSize       string `yaml:"trade_alert_size"`
	AlertCooldownSeconds int    `yaml:"alert_cooldown_seconds"`
	LogLevel             string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		Port:                 8086,
		ProductID:            "BTC-USD",
		RESTURL:              "https://api.exchange.coinbase.com",
		WebsocketURL:         "wss://ws-feed.exchange.coinbase.com",
		DepthLevels:          10,
		TradeAlertSize:       "10",
		AlertCooldownSeconds: 5,
		LogLevel:             "info",
	}
}

func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	// Validation & normalization
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, errors.New("invalid port")
	}
	cfg.ProductID = strings.ToUpper(strings.TrimSpace(cfg.ProductID))
	if cfg.ProductID == "" {
		return cfg, errors.New("product_id required")
	}
	if cfg.RESTURL == "" || cfg.WebsocketURL == "" {
		return cfg, errors.New("rest_url and websocket_url required")
	}
	if cfg.DepthLevels < 0 {
		return cfg, errors.New("depth_levels must be >= 0 (0 = all)")
	}
	if _, err := decimal.NewFromString(cfg.TradeAlertSize); err != nil {
		return cfg, fmt.Errorf("trade_alert_size: %w", err)
	}
	if cfg.AlertCooldownSeconds < 1 {
		return cfg, errors.New("alert_cooldown_seconds must be >= 1")
	}
	return cfg, nil
}

// AlertSize returns trade_alert_size as a decimal; Load already validated it.
func (c Config) AlertSize() decimal.Decimal {
	d, _ := decimal.NewFromString(c.TradeAlertSize)
	return d
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
