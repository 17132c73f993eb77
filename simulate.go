package main

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rileyseaburg/venue-trader/config"
	"github.com/rileyseaburg/venue-trader/types"
	"github.com/rileyseaburg/venue-trader/venue"
	"github.com/rileyseaburg/venue-trader/venue/paper"
)

// simulated bar volatility per step
const simVolatility = 0.01

func buildPaperVenues(cfg *config.Config) ([]venue.Adapter, []*paper.Venue) {
	var adapters []venue.Adapter
	var sims []*paper.Venue
	for _, name := range []types.Venue{types.VenueEquities, types.VenueCrypto} {
		vc, ok := cfg.Venues[name]
		if !ok {
			continue
		}
		sim := paper.NewVenue(name, vc.PaperCash)
		for sym, size := range vc.MinimumOrderSizes {
			sim.SetMinimumOrderSize(sym, size)
		}
		adapters = append(adapters, sim)
		sims = append(sims, sim)
	}
	return adapters, sims
}

// simMarket drives the paper venues with a geometric random walk per asset
type simMarket struct {
	venues   map[types.Venue]*paper.Venue
	universe []types.AssetSpec
	prices   map[string]float64
	rng      *rand.Rand
	keep     int
}

// newSimMarket seeds keep bars of history for every asset, one per interval
func newSimMarket(sims []*paper.Venue, universe []types.AssetSpec, interval time.Duration, keep int) *simMarket {
	m := &simMarket{
		venues:   make(map[types.Venue]*paper.Venue, len(sims)),
		universe: universe,
		prices:   make(map[string]float64, len(universe)),
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		keep:     keep,
	}
	for _, sim := range sims {
		m.venues[sim.Venue()] = sim
	}

	now := time.Now()
	for _, a := range universe {
		m.prices[a.Symbol] = 20 + m.rng.Float64()*480
		for i := keep; i > 0; i-- {
			m.step(a, now.Add(-time.Duration(i)*interval))
		}
	}
	return m
}

func (m *simMarket) step(a types.AssetSpec, at time.Time) {
	sim, ok := m.venues[a.Venue]
	if !ok {
		return
	}
	price := m.prices[a.Symbol] * math.Exp(m.rng.NormFloat64()*simVolatility)
	m.prices[a.Symbol] = price
	sim.AppendBar(a.Symbol, price, at, m.keep)
}

// run adds a bar to every asset each interval until ctx is done
func (m *simMarket) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			for _, a := range m.universe {
				m.step(a, at)
			}
		}
	}
}
