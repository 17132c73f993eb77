// Package venue defines the contract the trading loop uses to talk to a market.
package venue

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rileyseaburg/venue-trader/types"
)

var (
	// ErrOrderRejected is returned when a venue refuses an order
	ErrOrderRejected = errors.New("order rejected")
	// ErrNoPosition is returned when closing a symbol that is not held
	ErrNoPosition = errors.New("no open position")
	// ErrUnknownVenue is returned for a venue without a registered adapter
	ErrUnknownVenue = errors.New("unknown venue")
)

// Adapter is one connected venue
type Adapter interface {
	Venue() types.Venue
	// Ping checks that the venue is reachable and the account can trade
	Ping(ctx context.Context) error
	// Balance is the account value in the venue's own currency
	Balance(ctx context.Context) (float64, error)
	Positions(ctx context.Context) ([]types.Position, error)
	// HistoricalSeries returns up to count closes, oldest first
	HistoricalSeries(ctx context.Context, symbol string, count int) ([]types.PricePoint, error)
	// SpotPrice returns ok=false when the venue has no price for symbol
	SpotPrice(ctx context.Context, symbol string) (price float64, ok bool, err error)
	IsMarketOpen(ctx context.Context) (bool, error)
	SubmitMarketOrder(ctx context.Context, symbol string, qty types.Quantity, side types.Side) (types.OrderResult, error)
	ClosePosition(ctx context.Context, symbol string) (types.OrderResult, error)
}

// MinimumOrderSizer is implemented by venues with per-symbol minimum order sizes
type MinimumOrderSizer interface {
	MinimumOrderSize(ctx context.Context, symbol string) (float64, error)
}

// SymbolResolver is implemented by venues where an asset may trade under an alternate symbol
type SymbolResolver interface {
	ResolveAvailableSymbol(ctx context.Context, primary, fallback string) (string, bool, error)
}

// Registry maps venues to their adapters
type Registry struct {
	adapters map[types.Venue]Adapter
}

// NewRegistry builds a registry from adapters, keyed by their Venue()
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[types.Venue]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Venue()] = a
	}
	return r
}

// Get returns the adapter for v
func (r *Registry) Get(v types.Venue) (Adapter, error) {
	a, ok := r.adapters[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, v)
	}
	return a, nil
}

// All returns the adapters ordered by venue name
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Venue() < out[j].Venue() })
	return out
}

// Len returns the number of registered venues
func (r *Registry) Len() int { return len(r.adapters) }
