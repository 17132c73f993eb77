// Package alpaca implements the equities and crypto venues on top of the Alpaca trading and market data APIs.
package alpaca

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rileyseaburg/venue-trader/types"
	"github.com/rileyseaburg/venue-trader/venue"
)

const (
	paperTradingURL = "https://paper-api.alpaca.markets"
	liveTradingURL  = "https://api.alpaca.markets"

	assetClassEquity = "us_equity"
	assetClassCrypto = "crypto"
)

// TradingAPI is the subset of *alpaca.Client the venues use
type TradingAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	GetPosition(symbol string) (*alpaca.Position, error)
	GetClock() (*alpaca.Clock, error)
	GetAsset(symbol string) (*alpaca.Asset, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
}

// MarketDataAPI is the subset of *marketdata.Client the venues use
type MarketDataAPI interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestQuote(symbol string, req marketdata.GetLatestQuoteRequest) (*marketdata.Quote, error)
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
	GetLatestCryptoQuote(symbol string, req marketdata.GetLatestCryptoQuoteRequest) (*marketdata.CryptoQuote, error)
}

// Credentials select an Alpaca account
type Credentials struct {
	APIKey    string
	APISecret string
	Paper     bool
}

// NewClients builds the trading and market data clients for creds
func NewClients(creds Credentials) (*alpaca.Client, *marketdata.Client) {
	baseURL := liveTradingURL
	if creds.Paper {
		baseURL = paperTradingURL
	}
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
		BaseURL:   baseURL,
	})
	mdClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
	})
	return client, mdClient
}

// account holds what both venues share: one Alpaca account scoped to one asset class
type account struct {
	venue       types.Venue
	assetClass  string
	timeInForce alpaca.TimeInForce
	client      TradingAPI
	md          MarketDataAPI
	timeframe   marketdata.TimeFrame
	now         func() time.Time
	log         zerolog.Logger
}

func (a *account) Venue() types.Venue { return a.venue }

// Ping checks the account is reachable and allowed to trade
func (a *account) Ping(ctx context.Context) error {
	acct, err := call(ctx, a.client.GetAccount)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if acct.TradingBlocked {
		return fmt.Errorf("%s account is blocked from trading", a.venue)
	}
	return nil
}

// Balance returns account equity
func (a *account) Balance(ctx context.Context) (float64, error) {
	acct, err := call(ctx, a.client.GetAccount)
	if err != nil {
		return 0, fmt.Errorf("failed to get account: %w", err)
	}
	equity, _ := acct.Equity.Float64()
	return equity, nil
}

// Positions returns the open positions of this venue's asset class
func (a *account) Positions(ctx context.Context) ([]types.Position, error) {
	positions, err := call(ctx, a.client.GetPositions)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	out := make([]types.Position, 0, len(positions))
	for _, pos := range positions {
		if string(pos.AssetClass) != a.assetClass {
			continue
		}
		out = append(out, a.toPosition(pos))
	}
	return out, nil
}

func (a *account) toPosition(pos alpaca.Position) types.Position {
	qty, _ := pos.Qty.Float64()
	avgPrice, _ := pos.AvgEntryPrice.Float64()
	marketValue, _ := pos.MarketValue.Float64()
	profit, _ := pos.UnrealizedPL.Float64()

	p := types.Position{
		Symbol:        pos.Symbol,
		Venue:         a.venue,
		Quantity:      qty,
		EntryPrice:    avgPrice,
		MarketValue:   marketValue,
		UnrealizedPnL: profit,
	}
	if a.assetClass == assetClassCrypto {
		p.Symbol = normalizeCryptoSymbol(pos.Symbol)
	}
	if qty != 0 {
		p.CurrentPrice = marketValue / qty
	}
	if avgPrice > 0 && qty != 0 {
		p.UnrealizedPnLPercent = (p.CurrentPrice - avgPrice) / avgPrice * 100
	}
	return p
}

// SubmitMarketOrder places a market order for qty
func (a *account) SubmitMarketOrder(ctx context.Context, symbol string, qty types.Quantity, side types.Side) (types.OrderResult, error) {
	if err := qty.Validate(); err != nil {
		return types.OrderResult{}, fmt.Errorf("%w: %v", venue.ErrOrderRejected, err)
	}
	return a.placeOrder(ctx, symbol, qty.Value, side)
}

func (a *account) placeOrder(ctx context.Context, symbol string, qty decimal.Decimal, side types.Side) (types.OrderResult, error) {
	orderRequest := alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &qty,
		Side:        alpaca.Side(side),
		Type:        alpaca.OrderType("market"),
		TimeInForce: a.timeInForce,
	}

	order, err := call(ctx, func() (*alpaca.Order, error) { return a.client.PlaceOrder(orderRequest) })
	if err != nil {
		return types.OrderResult{}, fmt.Errorf("%w: failed to place %s order for %s: %v", venue.ErrOrderRejected, side, symbol, err)
	}

	a.log.Info().Str("sym", symbol).Str("side", string(side)).Str("qty", qty.String()).Str("order_id", order.ID).Msg("order placed")
	return types.OrderResult{
		OrderID:     order.ID,
		Symbol:      symbol,
		Venue:       a.venue,
		Side:        side,
		Quantity:    qty.InexactFloat64(),
		Status:      string(order.Status),
		SubmittedAt: a.now(),
	}, nil
}

// ClosePosition sells the entire position in symbol
func (a *account) ClosePosition(ctx context.Context, symbol string) (types.OrderResult, error) {
	lookup := symbol
	if a.assetClass == assetClassCrypto {
		lookup = strings.ReplaceAll(symbol, "/", "")
	}
	position, err := call(ctx, func() (*alpaca.Position, error) { return a.client.GetPosition(lookup) })
	if err != nil {
		return types.OrderResult{}, fmt.Errorf("%w: %s: %v", venue.ErrNoPosition, symbol, err)
	}
	if !position.Qty.IsPositive() {
		return types.OrderResult{}, fmt.Errorf("%w: %s", venue.ErrNoPosition, symbol)
	}

	result, err := a.placeOrder(ctx, symbol, position.Qty, types.SideSell)
	if err != nil {
		return types.OrderResult{}, err
	}
	result.FilledPrice = a.toPosition(*position).CurrentPrice
	return result, nil
}

// normalizeCryptoSymbol turns Alpaca's position symbol (BTCUSD) into the pair form (BTC/USD)
func normalizeCryptoSymbol(symbol string) string {
	if strings.Contains(symbol, "/") {
		return symbol
	}
	for _, quote := range []string{"USDT", "USDC", "USD", "BTC"} {
		if base, ok := strings.CutSuffix(symbol, quote); ok && base != "" {
			return base + "/" + quote
		}
	}
	return symbol
}

// call runs fn and gives up when ctx is done.
// The Alpaca SDK takes no context, so an abandoned call finishes in the background.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
