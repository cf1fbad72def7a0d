package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses process environment variables into cfg, which must be a
// pointer to a struct using `env` / `envDefault` tags.
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadFrom is Load with an explicit environment instead of os.Environ.
func LoadFrom(cfg any, environ map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
