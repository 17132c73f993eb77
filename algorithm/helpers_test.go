package algorithm

import (
	"time"

	"github.com/rileyseaburg/venue-trader/types"
)

var seriesStart = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

// trend builds n hourly closes starting at first and moving by step each bar
func trend(n int, first, step float64) []types.PricePoint {
	out := make([]types.PricePoint, n)
	for i := range out {
		out[i] = types.PricePoint{Timestamp: seriesStart.Add(time.Duration(i) * time.Hour), Close: first + step*float64(i)}
	}
	return out
}

func falling(n int) []types.PricePoint { return trend(n, 200, -1) }
func rising(n int) []types.PricePoint  { return trend(n, 100, 1) }
func flat(n int) []types.PricePoint    { return trend(n, 100, 0) }

func equity(symbol string) types.AssetSpec {
	return types.AssetSpec{Symbol: symbol, Venue: types.VenueEquities, AssetClass: types.AssetClassEquity}
}

func crypto(symbol string) types.AssetSpec {
	return types.AssetSpec{Symbol: symbol, Venue: types.VenueCrypto, AssetClass: types.AssetClassCrypto}
}
