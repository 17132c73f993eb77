package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"

	"github.com/rileyseaburg/venue-trader/types"
)

// equitiesPadding stretches the history window over nights, weekends and holidays
const equitiesPadding = 4.0

// Equities is the US equities venue
type Equities struct {
	account
}

// NewEquities creates the equities venue. timeframe is one of 1Min, 5Min, 15Min, 1H, 1D.
func NewEquities(client TradingAPI, md MarketDataAPI, timeframe string, log zerolog.Logger) (*Equities, error) {
	tf, err := ParseTimeFrame(timeframe)
	if err != nil {
		return nil, err
	}
	return &Equities{account{
		venue:       types.VenueEquities,
		assetClass:  assetClassEquity,
		timeInForce: alpaca.Day,
		client:      client,
		md:          md,
		timeframe:   tf,
		now:         time.Now,
		log:         log.With().Str("venue", string(types.VenueEquities)).Logger(),
	}}, nil
}

// HistoricalSeries fetches the last count bars for symbol
func (e *Equities) HistoricalSeries(ctx context.Context, symbol string, count int) ([]types.PricePoint, error) {
	end := e.now()
	req := marketdata.GetBarsRequest{
		TimeFrame: e.timeframe,
		Start:     end.Add(-lookback(e.timeframe, count, equitiesPadding)),
		End:       end,
	}
	bars, err := call(ctx, func() ([]marketdata.Bar, error) { return e.md.GetBars(symbol, req) })
	if err != nil {
		return nil, fmt.Errorf("failed to fetch historical data for %s: %w", symbol, err)
	}

	points := make([]types.PricePoint, len(bars))
	for i, bar := range bars {
		points[i] = types.PricePoint{Timestamp: bar.Timestamp, Close: bar.Close}
	}
	return tail(points, count), nil
}

// SpotPrice returns the latest ask, or bid when there is no ask
func (e *Equities) SpotPrice(ctx context.Context, symbol string) (float64, bool, error) {
	quote, err := call(ctx, func() (*marketdata.Quote, error) {
		return e.md.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if quote == nil {
		return 0, false, nil
	}
	return quotePrice(quote.AskPrice, quote.BidPrice)
}

// IsMarketOpen asks the Alpaca clock
func (e *Equities) IsMarketOpen(ctx context.Context) (bool, error) {
	clock, err := call(ctx, e.client.GetClock)
	if err != nil {
		return false, fmt.Errorf("failed to get clock: %w", err)
	}
	return clock.IsOpen, nil
}

func quotePrice(ask, bid float64) (float64, bool, error) {
	switch {
	case ask > 0:
		return ask, true, nil
	case bid > 0:
		return bid, true, nil
	default:
		return 0, false, nil
	}
}

func tail(points []types.PricePoint, count int) []types.PricePoint {
	if count > 0 && len(points) > count {
		return points[len(points)-count:]
	}
	return points
}
