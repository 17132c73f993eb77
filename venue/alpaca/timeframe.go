package alpaca

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// ParseTimeFrame converts a string timeframe (e.g. "1H") to Alpaca's TimeFrame type
func ParseTimeFrame(timeframe string) (marketdata.TimeFrame, error) {
	switch timeframe {
	case "1Min":
		return marketdata.OneMin, nil
	case "5Min":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15Min":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case "1H", "":
		return marketdata.OneHour, nil
	case "1D":
		return marketdata.OneDay, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
}

// barDuration is the wall time covered by one bar of tf
func barDuration(tf marketdata.TimeFrame) time.Duration {
	n := time.Duration(tf.N)
	if n <= 0 {
		n = 1
	}
	switch tf.Unit {
	case marketdata.Min:
		return n * time.Minute
	case marketdata.Hour:
		return n * time.Hour
	case marketdata.Day:
		return n * 24 * time.Hour
	case marketdata.Week:
		return n * 7 * 24 * time.Hour
	default:
		return n * 30 * 24 * time.Hour
	}
}

// lookback returns how far back to request so that count bars come back.
// padding covers hours the market is closed.
func lookback(tf marketdata.TimeFrame, count int, padding float64) time.Duration {
	if padding < 1 {
		padding = 1
	}
	return time.Duration(float64(barDuration(tf)) * float64(count) * padding)
}
