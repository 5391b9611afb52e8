package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Reader       string `toml:"reader"`
	PollInterval string `toml:"poll_interval"`
	DeleteMode   bool   `toml:"delete_mode"`
	MetricsAddr  string `toml:"metrics_addr"`
	LogLevel     string `toml:"log_level"`
}

// Config is the resolved daemon configuration.
type Config struct {
	Reader       string
	PollInterval time.Duration
	DeleteMode   bool
	MetricsAddr  string
	LogLevel     string
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 250 * time.Millisecond,
		MetricsAddr:  "",
		LogLevel:     "info",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load buildregd config: %w", err)
	}

	if meta.IsDefined("reader") {
		cfg.Reader = strings.TrimSpace(raw.Reader)
	}

	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse poll_interval: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("poll_interval must be positive, got %s", d)
		}
		cfg.PollInterval = d
	}

	if meta.IsDefined("delete_mode") {
		cfg.DeleteMode = raw.DeleteMode
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}

	return cfg, nil
}
