package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config es la configuración del proceso, cargada desde el ambiente.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"baby-care-log"`
	Port    string `env:"PORT" envDefault:"8080"`

	// Vacío => adaptadores en memoria (modo dev).
	DatabaseURL string `env:"DATABASE_URL"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Vacío => sin verifier: el middleware acepta X-Debug-User-ID.
	JWTSecret   string `env:"JWT_SECRET"`
	JWTIssuer   string `env:"JWT_ISSUER"`
	JWTAudience string `env:"JWT_AUDIENCE"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
