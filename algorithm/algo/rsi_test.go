package algo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyseaburg/venue-trader/types"
)

func series(closes ...float64) []types.PricePoint {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]types.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = types.PricePoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Close: c}
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestRSIInsufficientData(t *testing.T) {
	_, ok := RSI(constant(14, 10), 14)
	assert.False(t, ok)

	_, ok = RSI(constant(15, 10), 14)
	assert.True(t, ok)
}

func TestRSIConstantSeriesIsNeutral(t *testing.T) {
	value, ok := RSI(constant(40, 25), 14)
	require.True(t, ok)
	assert.Equal(t, 50.0, value)
}

func TestRSIMonotonicSeries(t *testing.T) {
	rising := make([]float64, 30)
	falling := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(100 + i)
		falling[i] = float64(100 - i)
	}

	up, ok := RSI(rising, 14)
	require.True(t, ok)
	assert.Equal(t, 100.0, up)

	down, ok := RSI(falling, 14)
	require.True(t, ok)
	assert.InDelta(t, 0.0, down, 1e-9)
}

func TestRSIWilderSmoothing(t *testing.T) {
	// period 2: deltas +2, -1, +1
	// seed gain=(2+0)/2=1, loss=(0+1)/2=0.5
	// step: gain=(1*1+1)/2=1, loss=(0.5*1+0)/2=0.25 -> RS=4 -> 80
	value, ok := RSI([]float64{10, 12, 11, 12}, 2)
	require.True(t, ok)
	assert.InDelta(t, 80.0, value, 1e-9)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		value        float64
		wantType     types.SignalType
		wantStrength float64
	}{
		{name: "oversold buy", value: 20, wantType: types.SignalBuy, wantStrength: 33.3333},
		{name: "overbought sell", value: 85, wantType: types.SignalSell, wantStrength: 50},
		{name: "neutral hold", value: 50, wantType: types.SignalHold, wantStrength: 0},
		{name: "at oversold is hold", value: 30, wantType: types.SignalHold, wantStrength: 0},
		{name: "zero is full buy", value: 0, wantType: types.SignalBuy, wantStrength: 100},
		{name: "hundred is full sell", value: 100, wantType: types.SignalSell, wantStrength: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotStrength := Classify(tt.value, 30, 70)
			assert.Equal(t, tt.wantType, gotType)
			assert.InDelta(t, tt.wantStrength, gotStrength, 0.001)
		})
	}
}

func TestEngineAnalyzeIsIdempotent(t *testing.T) {
	engine := NewEngine(14, 30, 70)
	spec := types.AssetSpec{Symbol: "AAPL", Venue: types.VenueEquities, AssetClass: types.AssetClassEquity}

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 200 - float64(i)*1.5 + float64(i%3)
	}
	s := series(closes...)

	first, err := engine.Analyze(spec, 155, s)
	require.NoError(t, err)
	second, err := engine.Analyze(spec, 155, s)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, types.VenueEquities, first.Venue)
	assert.Equal(t, s[len(s)-1].Timestamp, first.Timestamp)
	if first.Type == types.SignalHold {
		assert.Zero(t, first.Strength)
	}
}

func TestEngineAnalyzeShortSeries(t *testing.T) {
	engine := NewEngine(14, 30, 70)
	_, err := engine.Analyze(types.AssetSpec{Symbol: "ETH/USD"}, 10, series(1, 2, 3))
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestNewEngineDefaults(t *testing.T) {
	engine := NewEngine(0, 0, 0)
	assert.Equal(t, DefaultPeriod, engine.Period)
	assert.Equal(t, DefaultOversold, engine.Oversold)
	assert.Equal(t, DefaultOverbought, engine.Overbought)
	assert.Equal(t, "RSI(14)", engine.Name())
}
