package algorithm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rileyseaburg/venue-trader/metrics"
	"github.com/rileyseaburg/venue-trader/notification"
	"github.com/rileyseaburg/venue-trader/risk"
	"github.com/rileyseaburg/venue-trader/store"
	"github.com/rileyseaburg/venue-trader/types"
	"github.com/rileyseaburg/venue-trader/venue"
)

const (
	DefaultScanInterval   = time.Minute
	DefaultAdapterTimeout = 20 * time.Second

	// MinSignalStrength is the weakest buy signal considered for entry
	MinSignalStrength = 50.0
	// TopCandidateCount is how many of the best opportunities a cycle tries to enter
	TopCandidateCount = 3

	opportunityLimit = 5
)

var (
	// ErrConnectivity is returned by Start when a venue cannot be reached
	ErrConnectivity = errors.New("venue connectivity check failed")
	// ErrAlreadyRunning is returned by Start while the loop is running
	ErrAlreadyRunning = errors.New("trading algorithm is already running")
)

// Config holds the loop cadence and candidate policy.
// Zero values select the package defaults; callers validate before passing a threshold.
type Config struct {
	ScanInterval      time.Duration
	AdapterTimeout    time.Duration
	MinSignalStrength float64
	TopCandidateCount int
	// FXRates converts each venue's balance into the base currency.
	// This is a fixed approximation; a venue without a rate counts at 1.
	FXRates map[types.Venue]float64
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = DefaultAdapterTimeout
	}
	if c.MinSignalStrength <= 0 {
		c.MinSignalStrength = MinSignalStrength
	}
	if c.TopCandidateCount <= 0 {
		c.TopCandidateCount = TopCandidateCount
	}
	return c
}

// Option customizes a TradingAlgorithm
type Option func(*TradingAlgorithm)

// WithRecorder sends trade and signal events to r
func WithRecorder(r store.Recorder) Option {
	return func(a *TradingAlgorithm) { a.recorder = r }
}

// WithNotifier posts trade, halt and lifecycle events to n
func WithNotifier(n *notification.Manager) Option {
	return func(a *TradingAlgorithm) { a.notifier = n }
}

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(a *TradingAlgorithm) { a.now = now }
}

// TradingAlgorithm runs the scan, decide and act loop across venues.
// State changes are serialized by mu; cycles are serialized by cycleMu.
type TradingAlgorithm struct {
	venues   *venue.Registry
	scanner  *Scanner
	risk     *risk.Manager
	recorder store.Recorder
	notifier *notification.Manager
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time

	cycleMu sync.Mutex
	wg      sync.WaitGroup

	mu          sync.RWMutex
	state       RunState
	generation  uint64
	stopTicker  chan struct{}
	universe    []types.AssetSpec
	startedAt   time.Time
	stoppedAt   time.Time
	stopReason  string
	lastCycleAt time.Time
	cycles      int
	cycleErrors int
	lastError   string
	balance     float64
	positions   []types.Position
	lastScan    *ScanResult
	candidates  []types.Signal
	listeners   []func(Status)
}

// NewTradingAlgorithm wires the loop to its venues, scanner and risk manager
func NewTradingAlgorithm(venues *venue.Registry, scanner *Scanner, riskManager *risk.Manager, cfg Config, log zerolog.Logger, opts ...Option) *TradingAlgorithm {
	a := &TradingAlgorithm{
		venues:   venues,
		scanner:  scanner,
		risk:     riskManager,
		recorder: store.Nop{},
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("component", "algorithm").Logger(),
		now:      time.Now,
		state:    StateStopped,
	}
	for _, opt := range opts {
		opt(a)
	}
	metrics.RunState.Set(StateStopped.gauge())
	return a
}

// Start moves the loop to Running once every venue answers a ping.
// It runs one cycle before returning and then schedules further cycles every ScanInterval.
// The schedule outlives ctx's cancellation but keeps its values.
func (a *TradingAlgorithm) Start(ctx context.Context, universe []types.AssetSpec) error {
	a.mu.RLock()
	running := a.state == StateRunning
	a.mu.RUnlock()
	if running {
		return ErrAlreadyRunning
	}

	if a.venues.Len() == 0 {
		return fmt.Errorf("%w: no venues configured", ErrConnectivity)
	}
	for _, adapter := range a.venues.All() {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.AdapterTimeout)
		err := adapter.Ping(callCtx)
		cancel()
		if err != nil {
			a.log.Error().Str("venue", string(adapter.Venue())).Err(err).Msg("venue unreachable, not starting")
			return fmt.Errorf("%w: %s: %v", ErrConnectivity, adapter.Venue(), err)
		}
	}

	balance, _, err := a.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	if a.risk.ResetDailySession(balance) {
		a.log.Info().Float64("balance", balance).Msg("new daily session")
	}

	a.mu.Lock()
	if a.state == StateRunning {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.state = StateRunning
	a.generation++
	gen := a.generation
	a.universe = append([]types.AssetSpec(nil), universe...)
	a.startedAt = a.now()
	a.stopReason = ""
	a.mu.Unlock()
	metrics.RunState.Set(StateRunning.gauge())

	a.log.Info().Int("assets", len(universe)).Dur("interval", a.cfg.ScanInterval).Msg("trading started")
	a.notify(notification.SystemAlert("Trading started", fmt.Sprintf("Scanning %d assets every %s", len(universe), a.cfg.ScanInterval), notification.PriorityMedium))
	a.publish()

	cycleCtx := context.WithoutCancel(ctx)
	a.runCycle(cycleCtx, gen)

	a.mu.Lock()
	if a.state == StateRunning && a.generation == gen {
		a.startSchedulerLocked(cycleCtx, gen)
	}
	a.mu.Unlock()
	return nil
}

// Pause stops scheduling cycles and leaves positions untouched.
// It reports false unless the loop was running.
func (a *TradingAlgorithm) Pause() bool {
	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return false
	}
	a.state = StatePaused
	a.generation++
	a.cancelSchedulerLocked()
	a.mu.Unlock()

	metrics.RunState.Set(StatePaused.gauge())
	a.log.Info().Msg("trading paused")
	a.notify(notification.SystemAlert("Trading paused", "No new cycles will run until restarted", notification.PriorityLow))
	a.publish()
	return true
}

// Stop moves the loop to Stopped from any other state.
// A cycle already in progress runs to completion.
func (a *TradingAlgorithm) Stop() bool {
	if !a.transitionToStopped("stopped by request") {
		return false
	}
	a.notify(notification.SystemAlert("Trading stopped", "Stopped by request, open positions are kept", notification.PriorityMedium))
	return true
}

// Wait blocks until the scheduler has exited and no cycle is in progress
func (a *TradingAlgorithm) Wait() {
	a.wg.Wait()
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()
}

// UpdateRiskConfig replaces the risk policy
func (a *TradingAlgorithm) UpdateRiskConfig(cfg risk.Config) error {
	return a.risk.UpdateConfig(cfg)
}

// RiskConfig returns the active risk policy
func (a *TradingAlgorithm) RiskConfig() risk.Config {
	return a.risk.Config()
}

func (a *TradingAlgorithm) transitionToStopped(reason string) bool {
	a.mu.Lock()
	if a.state == StateStopped {
		a.mu.Unlock()
		return false
	}
	a.state = StateStopped
	a.generation++
	a.stoppedAt = a.now()
	a.stopReason = reason
	a.cancelSchedulerLocked()
	a.mu.Unlock()

	metrics.RunState.Set(StateStopped.gauge())
	a.log.Info().Str("reason", reason).Msg("trading stopped")
	a.publish()
	return true
}

func (a *TradingAlgorithm) startSchedulerLocked(ctx context.Context, gen uint64) {
	stop := make(chan struct{})
	a.stopTicker = stop
	interval := a.cfg.ScanInterval

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				a.runCycle(ctx, gen)
			}
		}
	}()
}

func (a *TradingAlgorithm) cancelSchedulerLocked() {
	if a.stopTicker != nil {
		close(a.stopTicker)
		a.stopTicker = nil
	}
}

// isCurrent reports whether a cycle scheduled under gen may still run
func (a *TradingAlgorithm) isCurrent(gen uint64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state == StateRunning && a.generation == gen
}

// runCycle runs one guarded cycle and accounts for its outcome.
// Failures and panics are counted; they never stop the schedule.
func (a *TradingAlgorithm) runCycle(ctx context.Context, gen uint64) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	if !a.isCurrent(gen) {
		a.log.Debug().Msg("cycle skipped, state changed since it was scheduled")
		return
	}

	start := time.Now()
	err := a.safeCycle(ctx)
	elapsed := time.Since(start)

	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(elapsed.Seconds())

	a.mu.Lock()
	a.cycles++
	a.lastCycleAt = a.now()
	if err != nil {
		a.cycleErrors++
		a.lastError = err.Error()
	}
	a.mu.Unlock()

	if err != nil {
		metrics.CycleErrorsTotal.Inc()
		a.log.Error().Err(err).Dur("elapsed", elapsed).Msg("cycle failed")
	} else {
		a.log.Debug().Dur("elapsed", elapsed).Msg("cycle complete")
	}
	a.publish()
}

func (a *TradingAlgorithm) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in cycle: %v", r)
		}
	}()
	return a.cycle(ctx)
}

// cycle is one pass of account refresh, limit checks, exits, scan and entries
func (a *TradingAlgorithm) cycle(ctx context.Context) error {
	balance, positions, err := a.snapshot(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.balance = balance
	a.positions = positions
	a.mu.Unlock()

	if a.risk.ResetDailySession(balance) {
		a.log.Info().Float64("balance", balance).Msg("new daily session")
	}
	a.risk.UpdateDailyPnL(balance)
	stats := a.risk.SessionStats()
	metrics.SessionPnL.Set(stats.CurrentPnL)

	if a.risk.ShouldHalt() {
		reason := "daily loss limit reached"
		if a.risk.HitProfitLimit() {
			reason = "daily profit limit reached"
		}
		a.log.Warn().Float64("pnl", stats.CurrentPnL).Str("reason", reason).Msg("halting")
		a.notify(notification.Halted(reason, stats.CurrentPnL))
		a.transitionToStopped(reason)
		return nil
	}

	if a.risk.CircuitBreaker(balance) {
		closed, failed := a.liquidate(ctx, positions)
		a.log.Error().Float64("pnl_percent", stats.PnLPercent).Int("closed", closed).Int("failed", failed).Msg("circuit breaker tripped")
		a.notify(notification.CircuitBreakerTripped(stats.PnLPercent, closed, failed))
		a.transitionToStopped("circuit breaker")
		return nil
	}

	positions, exited := a.checkExits(ctx, positions)

	a.mu.RLock()
	universe := a.universe
	a.mu.RUnlock()

	scan := a.scanner.ScanAll(ctx, universe)
	metrics.ScanErrorsTotal.Add(float64(scan.Errors))
	if err := a.recorder.RecordSignals(ctx, scan.Signals()); err != nil {
		a.log.Warn().Err(err).Msg("failed to record signals")
	}

	candidates := FindBestOpportunities(scan.Buy, a.cfg.MinSignalStrength, opportunityLimit)
	if len(candidates) > a.cfg.TopCandidateCount {
		candidates = candidates[:a.cfg.TopCandidateCount]
	}
	a.mu.Lock()
	a.lastScan = &scan
	a.candidates = candidates
	a.mu.Unlock()

	positions = a.enterCandidates(ctx, candidates, positions, exited, balance)

	a.mu.Lock()
	a.positions = positions
	a.mu.Unlock()
	return nil
}

// snapshot returns the FX-adjusted balance across venues and every open position
func (a *TradingAlgorithm) snapshot(ctx context.Context) (float64, []types.Position, error) {
	var (
		total     float64
		positions []types.Position
	)
	for _, adapter := range a.venues.All() {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.AdapterTimeout)
		balance, err := adapter.Balance(callCtx)
		if err != nil {
			cancel()
			return 0, nil, fmt.Errorf("failed to get %s balance: %w", adapter.Venue(), err)
		}
		open, err := adapter.Positions(callCtx)
		cancel()
		if err != nil {
			return 0, nil, fmt.Errorf("failed to get %s positions: %w", adapter.Venue(), err)
		}
		total += balance * a.fxRate(adapter.Venue())
		positions = append(positions, open...)
	}
	return total, positions, nil
}

func (a *TradingAlgorithm) fxRate(v types.Venue) float64 {
	if rate, ok := a.cfg.FXRates[v]; ok && rate > 0 {
		return rate
	}
	return 1
}

func (a *TradingAlgorithm) notify(n notification.Notification) {
	if a.notifier != nil {
		a.notifier.Add(n)
	}
}
