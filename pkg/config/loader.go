package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses the process environment into the provided struct.
// The struct should use `env` tags to define mappings; fields tagged
// `notEmpty` fail the load when the variable is unset or blank.
//
// Example:
//
//	type Config struct {
//	    APIKey   string `env:"ORDER_API_KEY,notEmpty"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(cfg any, environ map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
