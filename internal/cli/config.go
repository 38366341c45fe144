package cli

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ServerURL        string        `env:"AUTHCTL_SERVER_URL"        envDefault:"http://localhost:8080"`
	DBPath           string        `env:"AUTHCTL_DB_PATH"           envDefault:"authctl.db"`
	RefreshLookahead time.Duration `env:"AUTHCTL_REFRESH_LOOKAHEAD" envDefault:"5m"`
	Timeout          time.Duration `env:"AUTHCTL_TIMEOUT"           envDefault:"15s"`
	MaxAttempts      int           `env:"AUTHCTL_MAX_ATTEMPTS"      envDefault:"3"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("AUTHCTL_MAX_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}
