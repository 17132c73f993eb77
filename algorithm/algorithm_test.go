package algorithm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyseaburg/venue-trader/algorithm/algo"
	"github.com/rileyseaburg/venue-trader/notification"
	"github.com/rileyseaburg/venue-trader/risk"
	"github.com/rileyseaburg/venue-trader/types"
	"github.com/rileyseaburg/venue-trader/venue"
	"github.com/rileyseaburg/venue-trader/venue/paper"
)

type recordingRecorder struct {
	mu      sync.Mutex
	trades  []types.TradeEvent
	signals int
}

func (r *recordingRecorder) RecordTrade(_ context.Context, ev types.TradeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, ev)
	return nil
}

func (r *recordingRecorder) RecordSignals(_ context.Context, signals []types.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals += len(signals)
	return nil
}

func (r *recordingRecorder) Trades() []types.TradeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.TradeEvent(nil), r.trades...)
}

type harness struct {
	algo     *TradingAlgorithm
	notes    *notification.Manager
	recorder *recordingRecorder
}

func newHarness(t *testing.T, riskCfg risk.Config, cfg Config, adapters ...venue.Adapter) *harness {
	t.Helper()
	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = time.Hour
	}
	reg := venue.NewRegistry(adapters...)
	scanner := NewScanner(reg, algo.NewEngine(0, 0, 0), ScannerConfig{}, zerolog.Nop())
	h := &harness{
		notes:    notification.NewManager(100),
		recorder: &recordingRecorder{},
	}
	h.algo = NewTradingAlgorithm(reg, scanner, risk.NewManager(riskCfg, zerolog.Nop()), cfg, zerolog.Nop(),
		WithRecorder(h.recorder), WithNotifier(h.notes))
	t.Cleanup(func() {
		h.algo.Stop()
		h.algo.Wait()
	})
	return h
}

// tick runs a cycle as the scheduler would under the current generation
func (h *harness) tick() {
	h.algo.mu.RLock()
	gen := h.algo.generation
	h.algo.mu.RUnlock()
	h.algo.runCycle(context.Background(), gen)
}

func listFalling(v *paper.Venue, price float64, symbols ...string) {
	for _, sym := range symbols {
		v.SetSeries(sym, falling(40))
		v.SetPrice(sym, price)
	}
}

func TestStartFailsWhenVenueUnreachable(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 5000)
	cr := paper.NewVenue(types.VenueCrypto, 5000)
	cr.Fail(paper.OpPing, errors.New("dial tcp: i/o timeout"))
	h := newHarness(t, risk.DefaultConfig(), Config{}, eq, cr)

	err := h.algo.Start(context.Background(), nil)
	require.ErrorIs(t, err, ErrConnectivity)

	st := h.algo.GetStatus()
	assert.Equal(t, StateStopped, st.State)
	assert.Zero(t, st.CycleCount)
}

func TestLifecycleTransitions(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 5000)
	h := newHarness(t, risk.DefaultConfig(), Config{}, eq)
	ctx := context.Background()

	assert.False(t, h.algo.Pause(), "pause while stopped")
	assert.False(t, h.algo.Stop(), "stop while stopped")

	require.NoError(t, h.algo.Start(ctx, nil))
	st := h.algo.GetStatus()
	assert.Equal(t, StateRunning, st.State)
	assert.True(t, st.IsRunning)
	assert.Equal(t, 1, st.CycleCount, "first cycle runs during Start")
	assert.Equal(t, 5000.0, h.algo.GetSessionStats().StartBalance)

	assert.ErrorIs(t, h.algo.Start(ctx, nil), ErrAlreadyRunning)

	assert.True(t, h.algo.Pause())
	assert.False(t, h.algo.Pause())
	assert.Equal(t, StatePaused, h.algo.GetStatus().State)

	require.NoError(t, h.algo.Start(ctx, nil))
	assert.Equal(t, StateRunning, h.algo.GetStatus().State)

	assert.True(t, h.algo.Stop())
	st = h.algo.GetStatus()
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, "stopped by request", st.StopReason)
}

func TestSchedulerStopsTickingAfterPause(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 5000)
	h := newHarness(t, risk.DefaultConfig(), Config{ScanInterval: 5 * time.Millisecond}, eq)

	require.NoError(t, h.algo.Start(context.Background(), nil))
	require.Eventually(t, func() bool { return h.algo.GetStatus().CycleCount >= 3 }, 2*time.Second, time.Millisecond)

	require.True(t, h.algo.Pause())
	h.algo.Wait()
	count := h.algo.GetStatus().CycleCount

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, h.algo.GetStatus().CycleCount)
}

func TestHaltStopsAndNoFurtherTicksRun(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 4000)
	eq.SeedPosition("AAA", 10, 100)
	eq.SetPrice("AAA", 100)
	h := newHarness(t, risk.DefaultConfig(), Config{ScanInterval: 5 * time.Millisecond}, eq)

	require.NoError(t, h.algo.Start(context.Background(), nil))
	eq.SetPrice("AAA", 84) // balance 4840, P&L -160 past the 150 loss limit

	require.Eventually(t, func() bool { return h.algo.GetStatus().State == StateStopped }, 2*time.Second, time.Millisecond)
	h.algo.Wait()

	st := h.algo.GetStatus()
	assert.Equal(t, "daily loss limit reached", st.StopReason)
	assert.Empty(t, eq.Orders(), "a halt does not liquidate")
	assert.Len(t, h.notes.ByType(notification.TypeHalt), 1)

	count := st.CycleCount
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, h.algo.GetStatus().CycleCount)

	h.tick()
	assert.Equal(t, count, h.algo.GetStatus().CycleCount, "stale generation must not run")
}

func TestCircuitBreakerLiquidatesAndStops(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.DailyLossLimit = 1000
	eq := paper.NewVenue(types.VenueEquities, 4000)
	eq.SeedPosition("AAA", 10, 100)
	eq.SetPrice("AAA", 100)
	h := newHarness(t, cfg, Config{}, eq)

	require.NoError(t, h.algo.Start(context.Background(), nil))
	eq.SetPrice("AAA", 74) // balance 4740, -5.2%
	h.tick()

	st := h.algo.GetStatus()
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, "circuit breaker", st.StopReason)

	orders := eq.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, types.SideSell, orders[0].Side)
	assert.Equal(t, 10.0, orders[0].Quantity)

	positions, err := eq.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Equal(t, 1, h.algo.GetSessionStats().TradeCount)
	assert.Len(t, h.recorder.Trades(), 1)
	assert.Len(t, h.notes.ByType(notification.TypeCircuitBreaker), 1)
}

func TestExitFailureDoesNotBlockOtherExits(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 4800)
	eq.SeedPosition("AAA", 1, 100)
	eq.SeedPosition("BBB", 1, 100)
	eq.SetPrice("AAA", 100)
	eq.SetPrice("BBB", 100)
	h := newHarness(t, risk.DefaultConfig(), Config{}, eq)

	require.NoError(t, h.algo.Start(context.Background(), nil))
	eq.SetPrice("AAA", 90)
	eq.SetPrice("BBB", 90)
	eq.Fail(paper.OpClose+":AAA", errors.New("order rejected by exchange"))
	h.tick()

	orders := eq.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "BBB", orders[0].Symbol)

	st := h.algo.GetStatus()
	assert.Equal(t, StateRunning, st.State)
	assert.Zero(t, st.ErrorCount)
	require.Len(t, st.Positions, 1)
	assert.Equal(t, "AAA", st.Positions[0].Symbol)

	trades := h.recorder.Trades()
	require.Len(t, trades, 1)
	assert.Contains(t, trades[0].Reason, "stop loss")
}

func TestCandidatesRespectVenueLimit(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxPositionsPerVenue[types.VenueEquities] = 2
	eq := paper.NewVenue(types.VenueEquities, 5000)
	cr := paper.NewVenue(types.VenueCrypto, 5000)
	listFalling(eq, 161, "E1", "E2", "E3", "E4")
	h := newHarness(t, cfg, Config{}, eq, cr)

	universe := []types.AssetSpec{equity("E1"), equity("E2"), equity("E3"), equity("E4")}
	require.NoError(t, h.algo.Start(context.Background(), universe))

	orders := eq.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, "E1", orders[0].Symbol)
	assert.Equal(t, "E2", orders[1].Symbol)
	assert.Equal(t, 1.0, orders[0].Quantity, "minimum one share")

	st := h.algo.GetStatus()
	assert.Len(t, st.Candidates, TopCandidateCount)
	assert.Len(t, st.Positions, 2)
	assert.Equal(t, 2, h.algo.GetSessionStats().TradeCount)
	assert.Equal(t, 4, h.recorder.signals)
}

func TestCandidatesSkipHeldSymbols(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxPositionsPerVenue[types.VenueEquities] = 2
	eq := paper.NewVenue(types.VenueEquities, 5000)
	listFalling(eq, 161, "E1", "E2", "E3")
	eq.SeedPosition("E1", 1, 161)
	h := newHarness(t, cfg, Config{}, eq)

	universe := []types.AssetSpec{equity("E1"), equity("E2"), equity("E3")}
	require.NoError(t, h.algo.Start(context.Background(), universe))

	orders := eq.Orders()
	require.Len(t, orders, 1, "E1 is held and E2 fills the venue limit")
	assert.Equal(t, "E2", orders[0].Symbol)
}

func TestCandidatesSkipClosedMarket(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 5000)
	cr := paper.NewVenue(types.VenueCrypto, 5000)
	listFalling(eq, 161, "E1")
	listFalling(cr, 161, "BTC/USD")
	eq.SetMarketOpen(false)
	h := newHarness(t, risk.DefaultConfig(), Config{}, eq, cr)

	require.NoError(t, h.algo.Start(context.Background(), []types.AssetSpec{equity("E1"), crypto("BTC/USD")}))

	assert.Empty(t, eq.Orders())
	orders := cr.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "BTC/USD", orders[0].Symbol)
	assert.InDelta(t, 140.0/161.0, orders[0].Quantity, 1e-8)
}

func TestCandidatesSkipBelowMinimumOrderSize(t *testing.T) {
	cr := paper.NewVenue(types.VenueCrypto, 10000)
	listFalling(cr, 161, "BTC/USD")
	cr.SetMinimumOrderSize("BTC/USD", 1)
	h := newHarness(t, risk.DefaultConfig(), Config{}, cr)

	require.NoError(t, h.algo.Start(context.Background(), []types.AssetSpec{crypto("BTC/USD")}))
	assert.Empty(t, cr.Orders())
	assert.Zero(t, h.algo.GetSessionStats().TradeCount)
}

func TestRejectedOrderIsNotRecorded(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 5000)
	listFalling(eq, 161, "E1", "E2")
	eq.Fail(paper.OpOrder+":E1", venue.ErrOrderRejected)
	h := newHarness(t, risk.DefaultConfig(), Config{}, eq)

	require.NoError(t, h.algo.Start(context.Background(), []types.AssetSpec{equity("E1"), equity("E2")}))

	orders := eq.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "E2", orders[0].Symbol)
	assert.Equal(t, 1, h.algo.GetSessionStats().TradeCount)
	require.Len(t, h.recorder.Trades(), 1)
	assert.Equal(t, "E2", h.recorder.Trades()[0].Symbol)
	assert.Zero(t, h.algo.GetStatus().ErrorCount)
}

func TestBalanceAppliesVenueFXRate(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 5000)
	cr := paper.NewVenue(types.VenueCrypto, 5000)
	h := newHarness(t, risk.DefaultConfig(), Config{FXRates: map[types.Venue]float64{types.VenueCrypto: 0.5}}, eq, cr)

	require.NoError(t, h.algo.Start(context.Background(), nil))
	assert.Equal(t, 7500.0, h.algo.GetStatus().Balance)
	assert.Equal(t, 7500.0, h.algo.GetSessionStats().StartBalance)
}

func TestCycleErrorIsCountedAndScheduleContinues(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 5000)
	h := newHarness(t, risk.DefaultConfig(), Config{}, eq)
	require.NoError(t, h.algo.Start(context.Background(), nil))

	eq.Fail(paper.OpBalance, errors.New("502 bad gateway"))
	h.tick()
	st := h.algo.GetStatus()
	assert.Equal(t, 1, st.ErrorCount)
	assert.Contains(t, st.LastError, "502 bad gateway")
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, 5000.0, st.Balance, "last known balance is kept")

	eq.Fail(paper.OpBalance, nil)
	h.tick()
	st = h.algo.GetStatus()
	assert.Equal(t, 3, st.CycleCount)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestManualClosePosition(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 4900)
	eq.SeedPosition("AAA", 1, 100)
	eq.SetPrice("AAA", 101)
	h := newHarness(t, risk.DefaultConfig(), Config{}, eq)
	ctx := context.Background()

	require.NoError(t, h.algo.Start(ctx, nil))
	require.NoError(t, h.algo.ClosePosition(ctx, "AAA"))

	orders := eq.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, types.SideSell, orders[0].Side)
	assert.Equal(t, 1, h.algo.GetSessionStats().TradeCount)
	assert.Empty(t, h.algo.GetStatus().Positions)

	assert.ErrorIs(t, h.algo.ClosePosition(ctx, "ZZZ"), venue.ErrNoPosition)
}

func TestStatusListenerReceivesSnapshots(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 5000)
	h := newHarness(t, risk.DefaultConfig(), Config{}, eq)

	var mu sync.Mutex
	var states []RunState
	h.algo.OnStatus(func(st Status) {
		mu.Lock()
		states = append(states, st.State)
		mu.Unlock()
	})

	require.NoError(t, h.algo.Start(context.Background(), nil))
	h.algo.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, StateRunning, states[0])
	assert.Equal(t, StateStopped, states[len(states)-1])
}

func TestStatusListenersAllNotified(t *testing.T) {
	eq := paper.NewVenue(types.VenueEquities, 5000)
	h := newHarness(t, risk.DefaultConfig(), Config{}, eq)

	var mu sync.Mutex
	calls := map[string]int{}
	for _, name := range []string{"stream", "audit"} {
		h.algo.OnStatus(func(Status) {
			mu.Lock()
			calls[name]++
			mu.Unlock()
		})
	}

	require.False(t, h.algo.Pause())
	require.NoError(t, h.algo.Start(context.Background(), nil))
	require.True(t, h.algo.Pause())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, calls["stream"], calls["audit"])
	assert.GreaterOrEqual(t, calls["stream"], 3)
}
