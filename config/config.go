// Package config loads the trader's YAML settings and its secrets from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rileyseaburg/venue-trader/risk"
	"github.com/rileyseaburg/venue-trader/store"
	"github.com/rileyseaburg/venue-trader/types"
)

// App captures process-wide runtime settings
type App struct {
	Name       string `yaml:"name"`
	Port       string `yaml:"port"`
	LogLevel   string `yaml:"log_level"`
	PrettyLogs bool   `yaml:"pretty_logs"`
}

// Strategy holds the indicator thresholds and the loop cadence
type Strategy struct {
	IndicatorPeriod     int      `yaml:"indicator_period"`
	OversoldThreshold   float64  `yaml:"oversold_threshold"`
	OverboughtThreshold float64  `yaml:"overbought_threshold"`
	ScanIntervalMs      int      `yaml:"scan_interval_ms"`
	MinSignalStrength   *float64 `yaml:"min_signal_strength"`
	TopCandidateCount   int      `yaml:"top_candidate_count"`
	HistoryBars         int      `yaml:"history_bars"`
	Timeframe           string   `yaml:"timeframe"`
	AssetTimeoutMs      int      `yaml:"asset_timeout_ms"`
	AdapterTimeoutMs    int      `yaml:"adapter_timeout_ms"`
	ScanConcurrency     int      `yaml:"scan_concurrency"`
}

// Venue configures one trading destination
type Venue struct {
	// FXRate converts the venue's balance into the base currency
	FXRate            float64            `yaml:"fx_rate"`
	MinimumOrderSizes map[string]float64 `yaml:"minimum_order_sizes,omitempty"`
	// PaperCash is the starting cash of the simulated venue
	PaperCash float64 `yaml:"paper_cash"`
}

// Database configures the optional PostgreSQL event store
// The password comes from DATABASE_PASSWORD.
type Database struct {
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	User    string `yaml:"user,omitempty"`
	Name    string `yaml:"name,omitempty"`
	SSLMode string `yaml:"sslmode,omitempty"`
}

// Config collects every configuration leaf for marshaling from YAML
type Config struct {
	App      App                   `yaml:"app"`
	Risk     risk.Config           `yaml:"risk"`
	Strategy Strategy              `yaml:"strategy"`
	Venues   map[types.Venue]Venue `yaml:"venues"`
	Database Database              `yaml:"database"`
	Universe []types.AssetSpec     `yaml:"universe"`
}

// Load reads a YAML file and fills unset values with defaults
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadOrDefault is Load, except a missing file yields Defaults()
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

// Save persists a Config struct to disk as YAML
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SignalThreshold is the minimum strength a BUY needs to become a candidate.
// MinSignalStrength is a pointer so an explicit 0 reaches Validate instead of the default.
func (s Strategy) SignalThreshold() float64 {
	if s.MinSignalStrength == nil {
		return defaultMinSignalStrength
	}
	return *s.MinSignalStrength
}

// ScanInterval is the pause between cycles
func (s Strategy) ScanInterval() time.Duration {
	return time.Duration(s.ScanIntervalMs) * time.Millisecond
}

// AssetTimeout bounds the scan of one asset
func (s Strategy) AssetTimeout() time.Duration {
	return time.Duration(s.AssetTimeoutMs) * time.Millisecond
}

// AdapterTimeout bounds a single venue call
func (s Strategy) AdapterTimeout() time.Duration {
	return time.Duration(s.AdapterTimeoutMs) * time.Millisecond
}

// FXRates returns the configured conversion rate of every venue
func (c *Config) FXRates() map[types.Venue]float64 {
	out := make(map[types.Venue]float64, len(c.Venues))
	for name, v := range c.Venues {
		out[name] = v.FXRate
	}
	return out
}

// StoreOption builds the event store connection.
// DATABASE_URL wins over the YAML section; ok is false when neither names a database.
func (c *Config) StoreOption(s *Secrets) (opt store.Option, ok bool) {
	if s != nil && s.DatabaseURL != "" {
		return store.Option{ConnString: s.DatabaseURL}, true
	}
	if c.Database.Name == "" {
		return store.Option{}, false
	}
	opt = store.Option{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Database: c.Database.Name,
		SSLMode:  c.Database.SSLMode,
	}
	if s != nil {
		opt.Password = s.DatabasePassword
	}
	return opt, true
}
