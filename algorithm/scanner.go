package algorithm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rileyseaburg/venue-trader/algorithm/algo"
	"github.com/rileyseaburg/venue-trader/types"
	"github.com/rileyseaburg/venue-trader/venue"
)

const (
	// MinHistoryPoints is the shortest price history an asset is scanned with
	MinHistoryPoints = 20

	DefaultHistoryBars     = 100
	DefaultAssetTimeout    = 15 * time.Second
	DefaultScanConcurrency = 8
)

var (
	// ErrNoPrice is returned when a venue has no spot price for an asset
	ErrNoPrice = errors.New("no spot price")
	// ErrSymbolUnavailable is returned when neither the primary nor the fallback symbol trades
	ErrSymbolUnavailable = errors.New("symbol not available")
)

// ScannerConfig controls how much history is fetched and how the batch runs
type ScannerConfig struct {
	HistoryBars  int
	AssetTimeout time.Duration
	Concurrency  int
}

func (c ScannerConfig) withDefaults() ScannerConfig {
	if c.HistoryBars < MinHistoryPoints {
		c.HistoryBars = DefaultHistoryBars
	}
	if c.AssetTimeout <= 0 {
		c.AssetTimeout = DefaultAssetTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultScanConcurrency
	}
	return c
}

// ScanResult is the outcome of one pass over the universe.
// Buy and Sell are ordered by strength, strongest first.
type ScanResult struct {
	Buy     []types.Signal `json:"buy"`
	Sell    []types.Signal `json:"sell"`
	Hold    []types.Signal `json:"hold"`
	Scanned int            `json:"scanned"`
	Skipped int            `json:"skipped"`
	Errors  int            `json:"errors"`
	Elapsed time.Duration  `json:"elapsed"`
}

// Signals returns every signal of the scan, buys then sells then holds
func (r ScanResult) Signals() []types.Signal {
	out := make([]types.Signal, 0, len(r.Buy)+len(r.Sell)+len(r.Hold))
	out = append(out, r.Buy...)
	out = append(out, r.Sell...)
	return append(out, r.Hold...)
}

// Scanner runs the signal engine over a universe of assets
type Scanner struct {
	venues *venue.Registry
	engine algo.Engine
	cfg    ScannerConfig
	log    zerolog.Logger
}

// NewScanner creates a scanner reading prices from venues
func NewScanner(venues *venue.Registry, engine algo.Engine, cfg ScannerConfig, log zerolog.Logger) *Scanner {
	return &Scanner{
		venues: venues,
		engine: engine,
		cfg:    cfg.withDefaults(),
		log:    log.With().Str("component", "scanner").Logger(),
	}
}

// ScanAsset fetches history and spot price for spec and classifies it.
// Short histories fail with algo.ErrInsufficientData and missing prices with ErrNoPrice.
func (s *Scanner) ScanAsset(ctx context.Context, spec types.AssetSpec) (*types.Signal, error) {
	adapter, err := s.venues.Get(spec.Venue)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.AssetTimeout)
	defer cancel()

	if spec.FallbackSymbol != "" {
		if resolver, ok := adapter.(venue.SymbolResolver); ok {
			symbol, found, err := resolver.ResolveAvailableSymbol(ctx, spec.Symbol, spec.FallbackSymbol)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s: %w", spec.Symbol, err)
			}
			if !found {
				return nil, fmt.Errorf("%s/%s: %w", spec.Symbol, spec.FallbackSymbol, ErrSymbolUnavailable)
			}
			spec.Symbol = symbol
		}
	}

	series, err := adapter.HistoricalSeries(ctx, spec.Symbol, s.cfg.HistoryBars)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", spec.Symbol, err)
	}
	if len(series) < MinHistoryPoints {
		return nil, fmt.Errorf("%s: %d points: %w", spec.Symbol, len(series), algo.ErrInsufficientData)
	}

	price, ok, err := adapter.SpotPrice(ctx, spec.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price for %s: %w", spec.Symbol, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", spec.Symbol, ErrNoPrice)
	}

	signal, err := s.engine.Analyze(spec, price, series)
	if err != nil {
		return nil, err
	}
	return &signal, nil
}

type scanOutcome struct {
	signal *types.Signal
	err    error
}

// ScanAll scans every asset concurrently and waits for all of them.
// A failing asset is counted and dropped; it never cancels the rest of the batch.
func (s *Scanner) ScanAll(ctx context.Context, universe []types.AssetSpec) ScanResult {
	start := time.Now()
	outcomes := make([]scanOutcome, len(universe))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, spec := range universe {
		g.Go(func() error {
			outcomes[i] = s.scanOne(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()

	result := ScanResult{Scanned: len(universe)}
	for i, o := range outcomes {
		switch {
		case o.err == nil && o.signal != nil:
			switch o.signal.Type {
			case types.SignalBuy:
				result.Buy = append(result.Buy, *o.signal)
			case types.SignalSell:
				result.Sell = append(result.Sell, *o.signal)
			default:
				result.Hold = append(result.Hold, *o.signal)
			}
		case isSkip(o.err):
			result.Skipped++
			s.log.Debug().Str("sym", universe[i].Symbol).Err(o.err).Msg("asset skipped")
		default:
			result.Errors++
			s.log.Warn().Str("sym", universe[i].Symbol).Str("venue", string(universe[i].Venue)).Err(o.err).Msg("asset scan failed")
		}
	}

	sortByStrength(result.Buy)
	sortByStrength(result.Sell)
	result.Elapsed = time.Since(start)

	s.log.Info().
		Int("scanned", result.Scanned).
		Int("buy", len(result.Buy)).
		Int("sell", len(result.Sell)).
		Int("hold", len(result.Hold)).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Dur("elapsed", result.Elapsed).
		Msg("scan complete")
	return result
}

// scanOne turns a panic in one asset into that asset's error
func (s *Scanner) scanOne(ctx context.Context, spec types.AssetSpec) (out scanOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = scanOutcome{err: fmt.Errorf("panic scanning %s: %v", spec.Symbol, r)}
		}
	}()
	signal, err := s.ScanAsset(ctx, spec)
	return scanOutcome{signal: signal, err: err}
}

func isSkip(err error) bool {
	return errors.Is(err, algo.ErrInsufficientData) ||
		errors.Is(err, ErrNoPrice) ||
		errors.Is(err, ErrSymbolUnavailable)
}

// sortByStrength orders strongest first, keeping enumeration order on ties
func sortByStrength(signals []types.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Strength > signals[j].Strength
	})
}

// FindBestOpportunities keeps actionable signals at or above minStrength, strongest first.
// A limit of zero or less returns all of them.
func FindBestOpportunities(signals []types.Signal, minStrength float64, limit int) []types.Signal {
	out := make([]types.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig.Type == types.SignalHold || sig.Strength < minStrength {
			continue
		}
		out = append(out, sig)
	}
	sortByStrength(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
