package config

import (
	"fmt"

	"github.com/rileyseaburg/venue-trader/risk"
	"github.com/rileyseaburg/venue-trader/types"
)

const (
	defaultPort              = "8080"
	defaultScanIntervalMs    = 60_000
	defaultHistoryBars       = 100
	defaultTimeframe         = "1H"
	defaultAssetTimeoutMs    = 15_000
	defaultAdapterTimeoutMs  = 20_000
	defaultScanConcurrency   = 8
	defaultMinSignalStrength = 50
	defaultTopCandidates     = 3
	defaultPaperCash         = 5000
)

// Defaults returns the settings the bot ships with
func Defaults() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset value
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "venue-trader"
	}
	if c.App.Port == "" {
		c.App.Port = defaultPort
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	def := risk.DefaultConfig()
	r := &c.Risk
	if r.CapitalBase == 0 {
		r.CapitalBase = def.CapitalBase
	}
	if r.DailyProfitLimit == 0 {
		r.DailyProfitLimit = def.DailyProfitLimit
	}
	if r.DailyLossLimit == 0 {
		r.DailyLossLimit = def.DailyLossLimit
	}
	if r.Aggressiveness == 0 {
		r.Aggressiveness = def.Aggressiveness
	}
	if r.MaxTotalPositions == 0 {
		r.MaxTotalPositions = def.MaxTotalPositions
	}
	if r.MaxPositionsPerVenue == nil {
		r.MaxPositionsPerVenue = make(map[types.Venue]int)
	}
	for v, n := range def.MaxPositionsPerVenue {
		if _, ok := r.MaxPositionsPerVenue[v]; !ok {
			r.MaxPositionsPerVenue[v] = n
		}
	}
	if r.StopLossPercent == 0 {
		r.StopLossPercent = def.StopLossPercent
	}
	if r.TakeProfitPercent == 0 {
		r.TakeProfitPercent = def.TakeProfitPercent
	}

	s := &c.Strategy
	if s.IndicatorPeriod == 0 {
		s.IndicatorPeriod = 14
	}
	if s.OversoldThreshold == 0 {
		s.OversoldThreshold = 30
	}
	if s.OverboughtThreshold == 0 {
		s.OverboughtThreshold = 70
	}
	if s.ScanIntervalMs == 0 {
		s.ScanIntervalMs = defaultScanIntervalMs
	}
	if s.MinSignalStrength == nil {
		strength := float64(defaultMinSignalStrength)
		s.MinSignalStrength = &strength
	}
	if s.TopCandidateCount == 0 {
		s.TopCandidateCount = defaultTopCandidates
	}
	if s.HistoryBars == 0 {
		s.HistoryBars = defaultHistoryBars
	}
	if s.Timeframe == "" {
		s.Timeframe = defaultTimeframe
	}
	if s.AssetTimeoutMs == 0 {
		s.AssetTimeoutMs = defaultAssetTimeoutMs
	}
	if s.AdapterTimeoutMs == 0 {
		s.AdapterTimeoutMs = defaultAdapterTimeoutMs
	}
	if s.ScanConcurrency == 0 {
		s.ScanConcurrency = defaultScanConcurrency
	}

	if len(c.Venues) == 0 {
		c.Venues = map[types.Venue]Venue{
			types.VenueEquities: {},
			types.VenueCrypto:   {},
		}
	}
	for name, v := range c.Venues {
		if v.FXRate == 0 {
			v.FXRate = 1
		}
		if v.PaperCash == 0 {
			v.PaperCash = defaultPaperCash
		}
		c.Venues[name] = v
	}

	if len(c.Universe) == 0 {
		c.Universe = DefaultUniverse()
	}
	for i := range c.Universe {
		if c.Universe[i].AssetClass == "" {
			c.Universe[i].AssetClass = classFor(c.Universe[i].Venue)
		}
	}
}

// DefaultUniverse is the asset list scanned when none is configured
func DefaultUniverse() []types.AssetSpec {
	var out []types.AssetSpec
	for _, sym := range []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "TSLA", "AMD", "SPY", "QQQ"} {
		out = append(out, types.AssetSpec{Symbol: sym, Venue: types.VenueEquities, AssetClass: types.AssetClassEquity})
	}
	for _, sym := range []string{"BTC/USD", "ETH/USD", "SOL/USD", "AVAX/USD", "LINK/USD"} {
		out = append(out, types.AssetSpec{Symbol: sym, Venue: types.VenueCrypto, AssetClass: types.AssetClassCrypto})
	}
	return append(out, types.AssetSpec{Symbol: "POL/USD", Venue: types.VenueCrypto, AssetClass: types.AssetClassCrypto, FallbackSymbol: "MATIC/USD"})
}

func classFor(v types.Venue) types.AssetClass {
	if v == types.VenueCrypto {
		return types.AssetClassCrypto
	}
	return types.AssetClassEquity
}

// Validate rejects settings the trader cannot run with
func (c *Config) Validate() error {
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}

	s := c.Strategy
	if s.IndicatorPeriod < 2 {
		return fmt.Errorf("strategy: indicator_period must be at least 2")
	}
	if s.OversoldThreshold <= 0 || s.OverboughtThreshold >= 100 || s.OversoldThreshold >= s.OverboughtThreshold {
		return fmt.Errorf("strategy: need 0 < oversold_threshold < overbought_threshold < 100")
	}
	if s.ScanIntervalMs < 1000 {
		return fmt.Errorf("strategy: scan_interval_ms must be at least 1000")
	}
	if strength := s.SignalThreshold(); strength <= 0 || strength > 100 {
		return fmt.Errorf("strategy: min_signal_strength must be above 0 and at most 100, got %.2f", strength)
	}
	if s.TopCandidateCount < 1 {
		return fmt.Errorf("strategy: top_candidate_count must be positive")
	}
	if s.HistoryBars <= s.IndicatorPeriod {
		return fmt.Errorf("strategy: history_bars must exceed indicator_period")
	}

	for name, v := range c.Venues {
		if name != types.VenueEquities && name != types.VenueCrypto {
			return fmt.Errorf("venues: unknown venue %q", name)
		}
		if v.FXRate <= 0 {
			return fmt.Errorf("venues.%s: fx_rate must be positive", name)
		}
	}

	for i, a := range c.Universe {
		if a.Symbol == "" {
			return fmt.Errorf("universe[%d]: symbol is required", i)
		}
		if _, ok := c.Venues[a.Venue]; !ok {
			return fmt.Errorf("universe[%d] %s: venue %q is not configured", i, a.Symbol, a.Venue)
		}
		if a.AssetClass != classFor(a.Venue) {
			return fmt.Errorf("universe[%d] %s: asset_class %q does not trade on %s", i, a.Symbol, a.AssetClass, a.Venue)
		}
	}
	return nil
}
