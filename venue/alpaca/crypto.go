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

const (
	cryptoPadding = 1.2
	// DefaultMinimumOrderSize applies to pairs without a configured minimum
	DefaultMinimumOrderSize = 0.0001
)

// Crypto is the crypto venue. It trades around the clock.
type Crypto struct {
	account
	minimums map[string]float64
}

// NewCrypto creates the crypto venue. minimums maps pair symbols to their smallest order size.
func NewCrypto(client TradingAPI, md MarketDataAPI, timeframe string, minimums map[string]float64, log zerolog.Logger) (*Crypto, error) {
	tf, err := ParseTimeFrame(timeframe)
	if err != nil {
		return nil, err
	}
	return &Crypto{
		account: account{
			venue:       types.VenueCrypto,
			assetClass:  assetClassCrypto,
			timeInForce: alpaca.GTC,
			client:      client,
			md:          md,
			timeframe:   tf,
			now:         time.Now,
			log:         log.With().Str("venue", string(types.VenueCrypto)).Logger(),
		},
		minimums: minimums,
	}, nil
}

// HistoricalSeries fetches the last count bars for the pair
func (c *Crypto) HistoricalSeries(ctx context.Context, symbol string, count int) ([]types.PricePoint, error) {
	end := c.now()
	req := marketdata.GetCryptoBarsRequest{
		TimeFrame: c.timeframe,
		Start:     end.Add(-lookback(c.timeframe, count, cryptoPadding)),
		End:       end,
	}
	bars, err := call(ctx, func() ([]marketdata.CryptoBar, error) { return c.md.GetCryptoBars(symbol, req) })
	if err != nil {
		return nil, fmt.Errorf("failed to fetch crypto bars for %s: %w", symbol, err)
	}

	points := make([]types.PricePoint, len(bars))
	for i, bar := range bars {
		points[i] = types.PricePoint{Timestamp: bar.Timestamp, Close: bar.Close}
	}
	return tail(points, count), nil
}

// SpotPrice returns the latest ask, or bid when there is no ask
func (c *Crypto) SpotPrice(ctx context.Context, symbol string) (float64, bool, error) {
	quote, err := call(ctx, func() (*marketdata.CryptoQuote, error) {
		return c.md.GetLatestCryptoQuote(symbol, marketdata.GetLatestCryptoQuoteRequest{})
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to get crypto quote for %s: %w", symbol, err)
	}
	if quote == nil {
		return 0, false, nil
	}
	return quotePrice(quote.AskPrice, quote.BidPrice)
}

// IsMarketOpen is always true for crypto
func (c *Crypto) IsMarketOpen(ctx context.Context) (bool, error) {
	return true, nil
}

// MinimumOrderSize returns the configured minimum for symbol
func (c *Crypto) MinimumOrderSize(ctx context.Context, symbol string) (float64, error) {
	if size, ok := c.minimums[symbol]; ok {
		return size, nil
	}
	return DefaultMinimumOrderSize, nil
}

// ResolveAvailableSymbol returns the first of primary and fallback that Alpaca lists as tradable
func (c *Crypto) ResolveAvailableSymbol(ctx context.Context, primary, fallback string) (string, bool, error) {
	for _, symbol := range []string{primary, fallback} {
		if symbol == "" {
			continue
		}
		asset, err := call(ctx, func() (*alpaca.Asset, error) { return c.client.GetAsset(symbol) })
		if err != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			c.log.Debug().Str("sym", symbol).Err(err).Msg("asset lookup failed")
			continue
		}
		if asset != nil && asset.Tradable {
			return symbol, true, nil
		}
	}
	return "", false, nil
}
