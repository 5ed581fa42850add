package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config defines all environment-driven runtime options.
type Config struct {
	Host        string `env:"VITALSYNC_HOST" envDefault:"0.0.0.0"`
	Port        int    `env:"VITALSYNC_PORT" envDefault:"8480"`
	DBPath      string `env:"VITALSYNC_DB_PATH" envDefault:"vitalsync.db"`
	LogLevel    string `env:"VITALSYNC_LOG_LEVEL" envDefault:"info"`
	CatalogPath string `env:"VITALSYNC_CATALOG_PATH"`

	ProviderClientID     string `env:"VITALSYNC_PROVIDER_CLIENT_ID"`
	ProviderClientSecret string `env:"VITALSYNC_PROVIDER_CLIENT_SECRET"`
	RedirectURL          string `env:"VITALSYNC_REDIRECT_URL" envDefault:"http://127.0.0.1:8480/auth/callback"`
}

// Load reads .env (if present) and parses environment variables into Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
