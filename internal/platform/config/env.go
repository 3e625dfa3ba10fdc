package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every `env` tag resolved by ParseEnv, so struct
// tags name only the variable suffix (`env:"DB_PATH"` reads PAGESNAP_DB_PATH).
const EnvPrefix = "PAGESNAP_"

// ParseEnv loads configuration from PAGESNAP_-prefixed environment variables.
func ParseEnv(target any) error {
	return ParseEnvWithPrefix(target, EnvPrefix)
}

// ParseEnvWithPrefix loads configuration using an explicit variable prefix.
func ParseEnvWithPrefix(target any, prefix string) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
