// Package paper is an in-memory venue that fills market orders at the last set price.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rileyseaburg/venue-trader/types"
	"github.com/rileyseaburg/venue-trader/venue"
)

const epsilon = 1e-9

type holding struct {
	Qty     float64
	AvgCost float64
}

// Venue tracks virtual cash and average-cost holdings for one venue
type Venue struct {
	mu       sync.Mutex
	venue    types.Venue
	cash     float64
	holdings map[string]holding
	prices   map[string]float64
	series   map[string][]types.PricePoint
	minimums map[string]float64
	open     bool
	orders   []types.OrderResult
	failures map[string]error
	now      func() time.Time
}

// NewVenue creates a paper venue with starting cash. The market starts open.
func NewVenue(v types.Venue, cash float64) *Venue {
	return &Venue{
		venue:    v,
		cash:     cash,
		holdings: make(map[string]holding),
		prices:   make(map[string]float64),
		series:   make(map[string][]types.PricePoint),
		minimums: make(map[string]float64),
		open:     true,
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// Failure keys accepted by Fail
const (
	OpPing      = "ping"
	OpBalance   = "balance"
	OpPositions = "positions"
	OpHistory   = "history"
	OpPrice     = "price"
	OpOrder     = "order"
	OpClose     = "close"
)

// Fail makes op fail with err. For per-symbol ops, pass "op:SYMBOL".
// A nil err clears the failure.
func (p *Venue) Fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

func (p *Venue) failure(op, symbol string) error {
	if err, ok := p.failures[op]; ok {
		return err
	}
	if symbol != "" {
		if err, ok := p.failures[op+":"+symbol]; ok {
			return err
		}
	}
	return nil
}

// SetPrice sets the spot price used for fills and marking
func (p *Venue) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

// SetSeries sets the price history returned for symbol
func (p *Venue) SetSeries(symbol string, series []types.PricePoint) {
	p.mu.Lock()
	p.series[symbol] = append([]types.PricePoint(nil), series...)
	p.mu.Unlock()
}

// AppendBar appends a close to symbol's history and makes it the spot price.
// The history keeps at most keep points; keep <= 0 keeps everything.
func (p *Venue) AppendBar(symbol string, price float64, at time.Time, keep int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	series := append(p.series[symbol], types.PricePoint{Timestamp: at, Close: price})
	if keep > 0 && len(series) > keep {
		series = series[len(series)-keep:]
	}
	p.series[symbol] = series
	p.prices[symbol] = price
}

// SetMarketOpen toggles whether the venue reports an open market
func (p *Venue) SetMarketOpen(open bool) {
	p.mu.Lock()
	p.open = open
	p.mu.Unlock()
}

// SetMinimumOrderSize sets the smallest accepted quantity for symbol
func (p *Venue) SetMinimumOrderSize(symbol string, size float64) {
	p.mu.Lock()
	p.minimums[symbol] = size
	p.mu.Unlock()
}

// SeedPosition opens a holding directly without touching cash
func (p *Venue) SeedPosition(symbol string, qty, avgCost float64) {
	p.mu.Lock()
	p.holdings[symbol] = holding{Qty: qty, AvgCost: avgCost}
	p.mu.Unlock()
}

// Orders returns every accepted order in submission order
func (p *Venue) Orders() []types.OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.OrderResult, len(p.orders))
	copy(out, p.orders)
	return out
}

// Cash returns uninvested cash
func (p *Venue) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

func (p *Venue) Venue() types.Venue { return p.venue }

func (p *Venue) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure(OpPing, "")
}

// Balance returns cash plus holdings marked at the last price
func (p *Venue) Balance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpBalance, ""); err != nil {
		return 0, err
	}
	equity := p.cash
	for sym, h := range p.holdings {
		equity += h.Qty * p.mark(sym, h)
	}
	return equity, nil
}

func (p *Venue) mark(symbol string, h holding) float64 {
	if px, ok := p.prices[symbol]; ok && px > 0 {
		return px
	}
	return h.AvgCost
}

func (p *Venue) Positions(ctx context.Context) ([]types.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpPositions, ""); err != nil {
		return nil, err
	}

	out := make([]types.Position, 0, len(p.holdings))
	for sym, h := range p.holdings {
		px := p.mark(sym, h)
		pos := types.Position{
			Symbol:        sym,
			Venue:         p.venue,
			Quantity:      h.Qty,
			EntryPrice:    h.AvgCost,
			CurrentPrice:  px,
			MarketValue:   h.Qty * px,
			UnrealizedPnL: (px - h.AvgCost) * h.Qty,
		}
		if h.AvgCost > 0 {
			pos.UnrealizedPnLPercent = (px - h.AvgCost) / h.AvgCost * 100
		}
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (p *Venue) HistoricalSeries(ctx context.Context, symbol string, count int) ([]types.PricePoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpHistory, symbol); err != nil {
		return nil, err
	}
	s := p.series[symbol]
	if count > 0 && len(s) > count {
		s = s[len(s)-count:]
	}
	return append([]types.PricePoint(nil), s...), nil
}

func (p *Venue) SpotPrice(ctx context.Context, symbol string) (float64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpPrice, symbol); err != nil {
		return 0, false, err
	}
	px, ok := p.prices[symbol]
	return px, ok && px > 0, nil
}

func (p *Venue) IsMarketOpen(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open, nil
}

// MinimumOrderSize returns the configured minimum, zero when unset
func (p *Venue) MinimumOrderSize(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minimums[symbol], nil
}

// ResolveAvailableSymbol picks the first of primary and fallback that has a price
func (p *Venue) ResolveAvailableSymbol(ctx context.Context, primary, fallback string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sym := range []string{primary, fallback} {
		if sym == "" {
			continue
		}
		if _, ok := p.prices[sym]; ok {
			return sym, true, nil
		}
	}
	return "", false, nil
}

func (p *Venue) SubmitMarketOrder(ctx context.Context, symbol string, qty types.Quantity, side types.Side) (types.OrderResult, error) {
	if err := qty.Validate(); err != nil {
		return types.OrderResult{}, fmt.Errorf("%w: %v", venue.ErrOrderRejected, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpOrder, symbol); err != nil {
		return types.OrderResult{}, err
	}
	return p.fill(symbol, qty.Float64(), side)
}

func (p *Venue) ClosePosition(ctx context.Context, symbol string) (types.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpClose, symbol); err != nil {
		return types.OrderResult{}, err
	}
	h, ok := p.holdings[symbol]
	if !ok || h.Qty <= epsilon {
		return types.OrderResult{}, fmt.Errorf("%w: %s", venue.ErrNoPosition, symbol)
	}
	return p.fill(symbol, h.Qty, types.SideSell)
}

func (p *Venue) fill(symbol string, qty float64, side types.Side) (types.OrderResult, error) {
	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		return types.OrderResult{}, fmt.Errorf("%w: no price for %s", venue.ErrOrderRejected, symbol)
	}
	notional := qty * price
	h := p.holdings[symbol]

	switch side {
	case types.SideBuy:
		if notional > p.cash+epsilon {
			return types.OrderResult{}, fmt.Errorf("%w: insufficient cash for %s", venue.ErrOrderRejected, symbol)
		}
		newQty := h.Qty + qty
		p.holdings[symbol] = holding{Qty: newQty, AvgCost: (h.AvgCost*h.Qty + notional) / newQty}
		p.cash -= notional
	case types.SideSell:
		if h.Qty+epsilon < qty {
			return types.OrderResult{}, fmt.Errorf("%w: insufficient position in %s", venue.ErrOrderRejected, symbol)
		}
		p.cash += notional
		if left := h.Qty - qty; left <= epsilon {
			delete(p.holdings, symbol)
		} else {
			p.holdings[symbol] = holding{Qty: left, AvgCost: h.AvgCost}
		}
	default:
		return types.OrderResult{}, fmt.Errorf("%w: unknown side %q", venue.ErrOrderRejected, side)
	}

	result := types.OrderResult{
		OrderID:     uuid.NewString(),
		Symbol:      symbol,
		Venue:       p.venue,
		Side:        side,
		Quantity:    qty,
		FilledPrice: price,
		Status:      "filled",
		SubmittedAt: p.now(),
	}
	p.orders = append(p.orders, result)
	return result, nil
}
