// Package config reads txblock settings from the environment. Command-line
// flags override what it returns.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Config holds settings shared by every command.
type Config struct {
	TracePath       string `env:"TXBLOCK_TRACE_PATH" envDefault:"block_traces.json"`
	Database        string `env:"TXBLOCK_DB"`
	Protocol        string `env:"TXBLOCK_PROTOCOL" envDefault:"txblock"`
	ProtocolVersion string `env:"TXBLOCK_PROTOCOL_VERSION" envDefault:"0.1.0"`
	GasBudget       uint64 `env:"TXBLOCK_GAS_BUDGET" envDefault:"50000000"`
	LogLevel        string `env:"TXBLOCK_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Level(); err != nil {
		return Config{}, err
	}
	if cfg.GasBudget == 0 {
		return Config{}, fmt.Errorf("TXBLOCK_GAS_BUDGET must be positive")
	}
	return cfg, nil
}

// Level parses LogLevel ("debug", "info", "warn", "error").
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("TXBLOCK_LOG_LEVEL: %w", err)
	}
	return l, nil
}
