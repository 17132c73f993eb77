package algo

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/rileyseaburg/venue-trader/types"
)

// ErrInsufficientData is returned when a series is too short for the indicator period
var ErrInsufficientData = errors.New("insufficient data")

// Default indicator parameters
const (
	DefaultPeriod     = 14
	DefaultOversold   = 30.0
	DefaultOverbought = 70.0
)

// RSI computes a Wilder-smoothed relative strength index over closes.
// ok is false when len(closes) < period+1.
func RSI(closes []float64, period int) (value float64, ok bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i-1] = delta
		} else {
			losses[i-1] = -delta
		}
	}

	avgGain := stat.Mean(gains[:period], nil)
	avgLoss := stat.Mean(losses[:period], nil)

	p := float64(period)
	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*(p-1) + gains[i]) / p
		avgLoss = (avgLoss*(p-1) + losses[i]) / p
	}

	if avgLoss == 0 {
		// A flat window carries no momentum either way.
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// Classify maps an indicator value to a signal and its strength
func Classify(value, oversold, overbought float64) (types.SignalType, float64) {
	switch {
	case value < oversold:
		if oversold <= 0 {
			return types.SignalBuy, 0
		}
		return types.SignalBuy, clamp((oversold-value)/oversold*100, 0, 100)
	case value > overbought:
		if overbought >= 100 {
			return types.SignalSell, 0
		}
		return types.SignalSell, clamp((value-overbought)/(100-overbought)*100, 0, 100)
	default:
		return types.SignalHold, 0
	}
}

// Engine turns a price history into a classified signal.
// It holds no state, so Analyze is safe to call concurrently.
type Engine struct {
	Period     int
	Oversold   float64
	Overbought float64
}

// NewEngine returns an engine with defaults for any unset parameter
func NewEngine(period int, oversold, overbought float64) Engine {
	if period <= 0 {
		period = DefaultPeriod
	}
	if oversold <= 0 {
		oversold = DefaultOversold
	}
	if overbought <= 0 || overbought <= oversold {
		overbought = DefaultOverbought
	}
	return Engine{Period: period, Oversold: oversold, Overbought: overbought}
}

// Name returns the name of the indicator
func (e Engine) Name() string {
	return fmt.Sprintf("RSI(%d)", e.Period)
}

// Analyze computes the signal for spec at price from series.
// The signal timestamp is taken from the last point so that the same
// inputs always produce the same signal.
func (e Engine) Analyze(spec types.AssetSpec, price float64, series []types.PricePoint) (types.Signal, error) {
	value, ok := RSI(types.Closes(series), e.Period)
	if !ok {
		return types.Signal{}, fmt.Errorf("%s: %d points for period %d: %w", spec.Symbol, len(series), e.Period, ErrInsufficientData)
	}

	signalType, strength := Classify(value, e.Oversold, e.Overbought)
	return types.Signal{
		Symbol:         spec.Symbol,
		Venue:          spec.Venue,
		AssetClass:     spec.AssetClass,
		CurrentPrice:   price,
		IndicatorValue: value,
		Type:           signalType,
		Strength:       strength,
		Timestamp:      series[len(series)-1].Timestamp,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
