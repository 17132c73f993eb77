package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Venue identifies a trading destination
type Venue string

const (
	VenueEquities Venue = "equities"
	VenueCrypto   Venue = "crypto"
)

// AssetClass selects quantity rounding rules
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassCrypto AssetClass = "crypto"
)

// Side is an order direction
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// AssetSpec describes one tradable asset in the scan universe
type AssetSpec struct {
	Symbol         string     `json:"symbol" yaml:"symbol"`
	Venue          Venue      `json:"venue" yaml:"venue"`
	AssetClass     AssetClass `json:"asset_class" yaml:"asset_class"`
	FallbackSymbol string     `json:"fallback_symbol,omitempty" yaml:"fallback_symbol,omitempty"`
}

// cryptoPrecision is the number of decimal places kept for crypto amounts
const cryptoPrecision = 8

// Quantity is an order size tagged with the asset class it was sized for.
// Equity quantities are always whole units.
type Quantity struct {
	Class AssetClass
	Value decimal.Decimal
}

// NewQuantity builds a quantity following the rounding rules of class
func NewQuantity(class AssetClass, raw float64) Quantity {
	d := decimal.NewFromFloat(raw)
	switch class {
	case AssetClassEquity:
		d = d.Truncate(0)
	default:
		d = d.Truncate(cryptoPrecision)
	}
	return Quantity{Class: class, Value: d}
}

// Float64 returns the quantity as a float
func (q Quantity) Float64() float64 {
	return q.Value.InexactFloat64()
}

// IsZero reports whether the quantity is zero or negative
func (q Quantity) IsZero() bool {
	return !q.Value.IsPositive()
}

func (q Quantity) String() string {
	return q.Value.String()
}

// Validate rejects fractional equity quantities
func (q Quantity) Validate() error {
	if q.Class == AssetClassEquity && !q.Value.Equal(q.Value.Truncate(0)) {
		return fmt.Errorf("fractional quantity %s not allowed for %s", q.Value, q.Class)
	}
	if !q.Value.IsPositive() {
		return fmt.Errorf("quantity must be positive, got %s", q.Value)
	}
	return nil
}
