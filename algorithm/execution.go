package algorithm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rileyseaburg/venue-trader/metrics"
	"github.com/rileyseaburg/venue-trader/notification"
	"github.com/rileyseaburg/venue-trader/types"
	"github.com/rileyseaburg/venue-trader/venue"
)

// checkExits closes every position past its stop loss or take profit.
// A failed close is logged and the remaining positions are still checked.
// It returns the positions still open and the symbols closed.
func (a *TradingAlgorithm) checkExits(ctx context.Context, positions []types.Position) ([]types.Position, map[string]bool) {
	remaining := make([]types.Position, 0, len(positions))
	exited := make(map[string]bool)

	for _, pos := range positions {
		if !a.risk.ShouldExit(pos) {
			remaining = append(remaining, pos)
			continue
		}

		reason := "take profit"
		if pos.UnrealizedPnLPercent < 0 {
			reason = "stop loss"
		}
		if err := a.closePosition(ctx, pos, reason); err != nil {
			a.log.Error().Str("sym", pos.Symbol).Str("venue", string(pos.Venue)).Err(err).Msg("failed to close position")
			remaining = append(remaining, pos)
			continue
		}
		exited[pos.Symbol] = true
	}
	return remaining, exited
}

// liquidate closes every position, continuing past failures
func (a *TradingAlgorithm) liquidate(ctx context.Context, positions []types.Position) (closed, failed int) {
	for _, pos := range positions {
		if err := a.closePosition(ctx, pos, "circuit breaker"); err != nil {
			a.log.Error().Str("sym", pos.Symbol).Str("venue", string(pos.Venue)).Err(err).Msg("failed to liquidate position")
			failed++
			continue
		}
		closed++
	}
	return closed, failed
}

func (a *TradingAlgorithm) closePosition(ctx context.Context, pos types.Position, reason string) error {
	adapter, err := a.venues.Get(pos.Venue)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.AdapterTimeout)
	defer cancel()
	res, err := adapter.ClosePosition(callCtx, pos.Symbol)
	if err != nil {
		return err
	}

	qty := res.Quantity
	if qty <= 0 {
		qty = pos.Quantity
	}
	price := res.FilledPrice
	if price <= 0 {
		price = pos.CurrentPrice
	}
	a.recordTrade(ctx, types.TradeEvent{
		ID:        uuid.NewString(),
		Symbol:    pos.Symbol,
		Venue:     pos.Venue,
		Side:      types.SideSell,
		Quantity:  qty,
		Price:     price,
		Total:     qty * price,
		Reason:    fmt.Sprintf("%s at %.2f%%", reason, pos.UnrealizedPnLPercent),
		Timestamp: a.now(),
	})
	return nil
}

// enterCandidates tries each candidate in order, strongest first.
// Every accepted order adds a provisional position so later candidates see the new counts.
func (a *TradingAlgorithm) enterCandidates(ctx context.Context, candidates []types.Signal, positions []types.Position, exited map[string]bool, balance float64) []types.Position {
	for _, sig := range candidates {
		log := a.log.With().Str("sym", sig.Symbol).Str("venue", string(sig.Venue)).Float64("strength", sig.Strength).Logger()

		pos, ok := a.enter(ctx, sig, positions, exited, balance, log)
		if ok {
			positions = append(positions, pos)
		}
	}
	return positions
}

func (a *TradingAlgorithm) enter(ctx context.Context, sig types.Signal, positions []types.Position, exited map[string]bool, balance float64, log zerolog.Logger) (types.Position, bool) {
	if !a.risk.CanOpenPosition(positions, sig.Venue) {
		log.Debug().Msg("skip: position limit reached")
		return types.Position{}, false
	}
	if exited[sig.Symbol] || holds(positions, sig.Symbol) {
		log.Debug().Msg("skip: already holding or just exited")
		return types.Position{}, false
	}

	adapter, err := a.venues.Get(sig.Venue)
	if err != nil {
		log.Warn().Err(err).Msg("skip: no adapter")
		return types.Position{}, false
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.AdapterTimeout)
	defer cancel()

	open, err := adapter.IsMarketOpen(callCtx)
	if err != nil {
		log.Warn().Err(err).Msg("skip: market hours unavailable")
		return types.Position{}, false
	}
	if !open {
		log.Debug().Msg("skip: market closed")
		return types.Position{}, false
	}

	// Sizing and the reserve check work in the base currency.
	basePrice := sig.CurrentPrice * a.fxRate(sig.Venue)
	qty := a.risk.PositionSize(balance, basePrice, sig.AssetClass)
	if qty.IsZero() {
		log.Debug().Msg("skip: zero size")
		return types.Position{}, false
	}

	if sizer, ok := adapter.(venue.MinimumOrderSizer); ok {
		minimum, err := sizer.MinimumOrderSize(callCtx, sig.Symbol)
		if err != nil {
			log.Warn().Err(err).Msg("skip: minimum order size unavailable")
			return types.Position{}, false
		}
		if qty.Float64() < minimum {
			log.Debug().Str("qty", qty.String()).Float64("minimum", minimum).Msg("skip: below minimum order size")
			return types.Position{}, false
		}
	}

	if v := a.risk.ValidateTrade(types.SideBuy, sig.Symbol, sig.Venue, qty.Float64(), basePrice, positions, balance); !v.Valid {
		log.Info().Str("reason", v.Reason).Msg("skip: trade rejected by risk")
		return types.Position{}, false
	}

	res, err := adapter.SubmitMarketOrder(callCtx, sig.Symbol, qty, types.SideBuy)
	if err != nil {
		log.Error().Err(err).Msg("order failed")
		return types.Position{}, false
	}

	price := res.FilledPrice
	if price <= 0 {
		price = sig.CurrentPrice
	}
	filled := qty.Float64()
	a.recordTrade(ctx, types.TradeEvent{
		ID:             uuid.NewString(),
		Symbol:         sig.Symbol,
		Venue:          sig.Venue,
		Side:           types.SideBuy,
		Quantity:       filled,
		Price:          price,
		Total:          filled * price,
		IndicatorValue: sig.IndicatorValue,
		Reason:         fmt.Sprintf("RSI %.2f, strength %.1f", sig.IndicatorValue, sig.Strength),
		Timestamp:      a.now(),
	})

	return types.Position{
		Symbol:       sig.Symbol,
		Venue:        sig.Venue,
		Quantity:     filled,
		EntryPrice:   price,
		CurrentPrice: price,
		MarketValue:  filled * price,
	}, true
}

// ClosePosition closes symbol on whichever venue holds it.
// It is serialized with cycles and returns venue.ErrNoPosition when nothing is held.
func (a *TradingAlgorithm) ClosePosition(ctx context.Context, symbol string) error {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	for _, adapter := range a.venues.All() {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.AdapterTimeout)
		positions, err := adapter.Positions(callCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to get %s positions: %w", adapter.Venue(), err)
		}
		for _, pos := range positions {
			if pos.Symbol != symbol {
				continue
			}
			if err := a.closePosition(ctx, pos, "manual close"); err != nil {
				return fmt.Errorf("failed to close %s: %w", symbol, err)
			}
			a.mu.Lock()
			a.positions = without(a.positions, symbol)
			a.mu.Unlock()
			a.publish()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", venue.ErrNoPosition, symbol)
}

// recordTrade counts the trade against the session and forwards it.
// Recorder failures are logged only.
func (a *TradingAlgorithm) recordTrade(ctx context.Context, ev types.TradeEvent) {
	a.risk.RecordTrade()
	metrics.OrdersTotal.WithLabelValues(string(ev.Venue), string(ev.Side)).Inc()

	a.log.Info().
		Str("sym", ev.Symbol).
		Str("venue", string(ev.Venue)).
		Str("side", string(ev.Side)).
		Float64("qty", ev.Quantity).
		Float64("price", ev.Price).
		Str("reason", ev.Reason).
		Msg("trade executed")

	if err := a.recorder.RecordTrade(ctx, ev); err != nil {
		a.log.Warn().Str("trade_id", ev.ID).Err(err).Msg("failed to record trade")
	}
	a.notify(notification.TradeExecuted(ev))
}

func holds(positions []types.Position, symbol string) bool {
	for _, p := range positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

func without(positions []types.Position, symbol string) []types.Position {
	out := make([]types.Position, 0, len(positions))
	for _, p := range positions {
		if p.Symbol != symbol {
			out = append(out, p)
		}
	}
	return out
}
