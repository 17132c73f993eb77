package types

import "time"

// SignalType classifies an indicator reading
type SignalType string

// Constants for signal types
const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal is the per-asset output of the signal engine.
// A HOLD signal always carries zero strength.
type Signal struct {
	Symbol         string     `json:"symbol"`
	Venue          Venue      `json:"venue"`
	AssetClass     AssetClass `json:"asset_class"`
	CurrentPrice   float64    `json:"current_price"`
	IndicatorValue float64    `json:"indicator_value"`
	Type           SignalType `json:"signal_type"`
	Strength       float64    `json:"strength"` // 0-100
	Timestamp      time.Time  `json:"timestamp"`
}

// TradeEvent is emitted for every order the bot gets filled or accepted
type TradeEvent struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Venue          Venue     `json:"venue"`
	Side           Side      `json:"side"`
	Quantity       float64   `json:"quantity"`
	Price          float64   `json:"price"`
	Total          float64   `json:"total"`
	IndicatorValue float64   `json:"indicator_value"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}
