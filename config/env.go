package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Secrets are read from the environment, optionally seeded from .env files
type Secrets struct {
	EquitiesAPIKey    string `envconfig:"EQUITIES_ALPACA_API_KEY"`
	EquitiesSecretKey string `envconfig:"EQUITIES_ALPACA_SECRET_KEY"`
	CryptoAPIKey      string `envconfig:"CRYPTO_ALPACA_API_KEY"`
	CryptoSecretKey   string `envconfig:"CRYPTO_ALPACA_SECRET_KEY"`
	Paper             bool   `envconfig:"ALPACA_PAPER" default:"true"`
	DatabaseURL       string `envconfig:"DATABASE_URL"`
	DatabasePassword  string `envconfig:"DATABASE_PASSWORD"`
}

// LoadEnv loads the given .env files (".env" when none) and processes the environment.
// Missing .env files are not an error.
func LoadEnv(files ...string) (*Secrets, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	return &s, nil
}

// HasEquitiesKeys reports whether both equities credentials are set
func (s *Secrets) HasEquitiesKeys() bool {
	return s.EquitiesAPIKey != "" && s.EquitiesSecretKey != ""
}

// HasCryptoKeys reports whether both crypto credentials are set
func (s *Secrets) HasCryptoKeys() bool {
	return s.CryptoAPIKey != "" && s.CryptoSecretKey != ""
}
