// Package config loads controller configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds the environment-supplied endpoints. Both collaborators are
// optional: an empty status URL disables health reporting, an empty prompt
// URL disables follow-up feedback.
type Env struct {
	StatusURL string `env:"AUTOSHIP_STATUS_URL"`
	PromptURL string `env:"AUTOSHIP_PROMPT_URL"`
}

// FromEnv parses configuration from environment variables.
func FromEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}
