package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// validator is implemented by config structs that check cross-field rules
// after environment defaults are applied.
type validator interface {
	Validate() error
}

// ParseEnv loads configuration from environment variables and runs the
// target's Validate method when it has one.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if v, ok := target.(validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate env: %w", err)
		}
	}
	return nil
}
