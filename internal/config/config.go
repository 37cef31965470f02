// Package config loads udflow settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/udflow/internal/feature"
)

// Config holds the settings shared by the udflow commands. Command-line
// flags override these values.
type Config struct {
	// DB is the journal database path.
	DB string `env:"UDFLOW_DB" envDefault:"udflow.db"`

	// TickInterval is the delay between download progress ticks.
	TickInterval time.Duration `env:"UDFLOW_TICK_INTERVAL" envDefault:"100ms"`

	// Intake is the event intake policy name: "queue" or "latest".
	Intake string `env:"UDFLOW_INTAKE" envDefault:"queue"`

	// EffectBuffer is the per-subscriber effect buffer size.
	EffectBuffer int `env:"UDFLOW_EFFECT_BUFFER" envDefault:"16"`

	OTelEndpoint string `env:"UDFLOW_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"UDFLOW_OTEL_ENABLED" envDefault:"true"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates a Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the environment parser accepts but udflow cannot
// use.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.EffectBuffer < 0 {
		return fmt.Errorf("effect buffer must not be negative, got %d", c.EffectBuffer)
	}
	if _, err := feature.ParseIntakePolicy(c.Intake); err != nil {
		return err
	}
	return nil
}

// IntakePolicy returns the parsed intake policy. Call Validate first.
func (c Config) IntakePolicy() feature.IntakePolicy {
	p, _ := feature.ParseIntakePolicy(c.Intake)
	return p
}

// TracingEnabled reports whether spans should be exported.
func (c Config) TracingEnabled() bool {
	return c.OTelEnabled && c.OTelEndpoint != ""
}
