// Package config loads runtime settings from the environment and story
// material (presets, worlds, roles) from JSON files.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings is the process-level configuration, read from FICWORLD_*
// environment variables. Story material lives in preset files, not here.
type Settings struct {
	APIKey        string        `env:"FICWORLD_API_KEY"`
	Model         string        `env:"FICWORLD_MODEL"`
	DBPath        string        `env:"FICWORLD_DB" envDefault:"data/ficworld.db"`
	Port          int           `env:"FICWORLD_PORT" envDefault:"8080"`
	Seed          int64         `env:"FICWORLD_SEED"`
	OracleTimeout time.Duration `env:"FICWORLD_ORACLE_TIMEOUT" envDefault:"30s"`
	LogLevel      string        `env:"FICWORLD_LOG_LEVEL" envDefault:"info"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse environment: %w", err)
	}
	return s, nil
}
