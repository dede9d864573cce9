package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ServeSettings are the runtime knobs of the HTTP server.
type ServeSettings struct {
	Addr               string `env:"PLENARIO_ADDR" envDefault:"127.0.0.1:8080"`
	BasePath           string `env:"PLENARIO_BASE_PATH" envDefault:"/v0"`
	JWTSecret          string `env:"PLENARIO_JWT_SECRET"`
	JWTIssuer          string `env:"PLENARIO_JWT_ISSUER" envDefault:"plenario"`
	JWTAudience        string `env:"PLENARIO_JWT_AUDIENCE" envDefault:"plenario"`
	AllowActorHeader   bool   `env:"PLENARIO_ALLOW_ACTOR_HEADER" envDefault:"false"`
	WebhookPollSeconds int    `env:"PLENARIO_WEBHOOK_POLL_SECONDS" envDefault:"2"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
