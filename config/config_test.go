package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyseaburg/venue-trader/types"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "venue-trader-test", cfg.App.Name)
	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "debug", cfg.App.LogLevel)

	assert.Equal(t, 10000.0, cfg.Risk.CapitalBase)
	assert.Equal(t, 2, cfg.Risk.MaxPositionsPerVenue[types.VenueEquities])
	// unset venue limits come from the defaults
	assert.Equal(t, 2, cfg.Risk.MaxPositionsPerVenue[types.VenueCrypto])

	assert.Equal(t, 10, cfg.Strategy.IndicatorPeriod)
	assert.Equal(t, 30*time.Second, cfg.Strategy.ScanInterval())
	assert.Equal(t, "15Min", cfg.Strategy.Timeframe)
	assert.Equal(t, defaultHistoryBars, cfg.Strategy.HistoryBars)
	assert.Equal(t, 3, cfg.Strategy.TopCandidateCount)
	assert.Equal(t, 50.0, cfg.Strategy.SignalThreshold())

	assert.Equal(t, map[types.Venue]float64{types.VenueEquities: 1, types.VenueCrypto: 1.5}, cfg.FXRates())
	assert.Equal(t, 8000.0, cfg.Venues[types.VenueEquities].PaperCash)
	assert.Equal(t, 0.0002, cfg.Venues[types.VenueCrypto].MinimumOrderSizes["BTC/USD"])

	require.Len(t, cfg.Universe, 2)
	assert.Equal(t, types.AssetClassEquity, cfg.Universe[0].AssetClass)
	assert.Equal(t, types.AssetClassCrypto, cfg.Universe[1].AssetClass)
	assert.Equal(t, "MATIC/USD", cfg.Universe[1].FallbackSymbol)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	want := Defaults()
	want.Strategy.OversoldThreshold = 20

	require.NoError(t, Save(path, want))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Error(t, Save(path, nil))
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, time.Minute, cfg.Strategy.ScanInterval())
	assert.Equal(t, 15*time.Second, cfg.Strategy.AssetTimeout())
	assert.Equal(t, 20*time.Second, cfg.Strategy.AdapterTimeout())
	assert.Len(t, cfg.Venues, 2)
	assert.NotEmpty(t, cfg.Universe)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"risk", func(c *Config) { c.Risk.Aggressiveness = 150 }},
		{"period", func(c *Config) { c.Strategy.IndicatorPeriod = 1 }},
		{"inverted thresholds", func(c *Config) { c.Strategy.OversoldThreshold, c.Strategy.OverboughtThreshold = 70, 30 }},
		{"fast interval", func(c *Config) { c.Strategy.ScanIntervalMs = 10 }},
		{"strength above range", func(c *Config) { c.Strategy.MinSignalStrength = ptr(101.0) }},
		{"zero strength", func(c *Config) { c.Strategy.MinSignalStrength = ptr(0.0) }},
		{"short history", func(c *Config) { c.Strategy.HistoryBars = 14 }},
		{"unknown venue", func(c *Config) { c.Venues["forex"] = Venue{FXRate: 1} }},
		{"negative fx", func(c *Config) { c.Venues[types.VenueCrypto] = Venue{FXRate: -1} }},
		{"empty symbol", func(c *Config) { c.Universe[0].Symbol = "" }},
		{"unconfigured venue", func(c *Config) {
			delete(c.Venues, types.VenueCrypto)
		}},
		{"class mismatch", func(c *Config) {
			c.Universe = []types.AssetSpec{{Symbol: "AAPL", Venue: types.VenueEquities, AssetClass: types.AssetClassCrypto}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EQUITIES_ALPACA_API_KEY=eq-key\nEQUITIES_ALPACA_SECRET_KEY=eq-secret\n"), 0o600))

	t.Setenv("CRYPTO_ALPACA_API_KEY", "c-key")
	t.Setenv("CRYPTO_ALPACA_SECRET_KEY", "")
	t.Setenv("ALPACA_PAPER", "false")
	t.Setenv("DATABASE_URL", "postgres://bot@db/trader")
	// godotenv only fills variables that are not already set
	t.Setenv("EQUITIES_ALPACA_API_KEY", "")
	t.Setenv("EQUITIES_ALPACA_SECRET_KEY", "")
	require.NoError(t, os.Unsetenv("EQUITIES_ALPACA_API_KEY"))
	require.NoError(t, os.Unsetenv("EQUITIES_ALPACA_SECRET_KEY"))

	s, err := LoadEnv(envFile)
	require.NoError(t, err)

	assert.Equal(t, "eq-key", s.EquitiesAPIKey)
	assert.True(t, s.HasEquitiesKeys())
	assert.Equal(t, "c-key", s.CryptoAPIKey)
	assert.False(t, s.HasCryptoKeys())
	assert.False(t, s.Paper)
	assert.Equal(t, "postgres://bot@db/trader", s.DatabaseURL)
}

func TestLoadEnvMissingFile(t *testing.T) {
	t.Setenv("ALPACA_PAPER", "")
	require.NoError(t, os.Unsetenv("ALPACA_PAPER"))

	s, err := LoadEnv(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.True(t, s.Paper)
}

func TestStoreOption(t *testing.T) {
	cfg := Defaults()
	_, ok := cfg.StoreOption(&Secrets{})
	assert.False(t, ok)

	opt, ok := cfg.StoreOption(&Secrets{DatabaseURL: "postgres://bot@db/trader"})
	require.True(t, ok)
	assert.Equal(t, "postgres://bot@db/trader", opt.ConnString)

	cfg.Database = Database{Host: "db", Port: 6543, User: "bot", Name: "trader", SSLMode: "require"}
	opt, ok = cfg.StoreOption(&Secrets{DatabasePassword: "secret"})
	require.True(t, ok)
	assert.Equal(t, "db", opt.Host)
	assert.Equal(t, 6543, opt.Port)
	assert.Equal(t, "trader", opt.Database)
	assert.Equal(t, "secret", opt.Password)
	assert.Empty(t, opt.ConnString)
}

func ptr[T any](v T) *T { return &v }

func TestMinSignalStrengthZeroIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy:\n  min_signal_strength: 0\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Strategy.MinSignalStrength)
	assert.Equal(t, 0.0, cfg.Strategy.SignalThreshold())
	assert.ErrorContains(t, cfg.Validate(), "min_signal_strength")

	require.NoError(t, os.WriteFile(path, []byte("strategy:\n  min_signal_strength: 35\n"), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 35.0, cfg.Strategy.SignalThreshold())
}
