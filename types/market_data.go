package types

import "time"

// PricePoint is a single close in an ascending price history
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`
}

// Closes extracts the close prices of a series in order
func Closes(series []PricePoint) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Close
	}
	return out
}

// Position mirrors what a venue reports for an open holding.
// It is refetched every cycle and never persisted.
type Position struct {
	Symbol               string  `json:"symbol"`
	Venue                Venue   `json:"venue"`
	Quantity             float64 `json:"quantity"`
	EntryPrice           float64 `json:"entry_price"`
	CurrentPrice         float64 `json:"current_price"`
	MarketValue          float64 `json:"market_value"`
	UnrealizedPnL        float64 `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64 `json:"unrealized_pnl_percent"`
}

// OrderResult is what a venue hands back after accepting an order
type OrderResult struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Venue       Venue     `json:"venue"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	FilledPrice float64   `json:"filled_price"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}
