package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyseaburg/venue-trader/types"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		want    string
		wantErr bool
	}{
		{
			name: "defaults",
			opt:  Option{Database: "trader"},
			want: "postgres://localhost:5432/trader?sslmode=disable",
		},
		{
			name: "credentials and params",
			opt: Option{
				Host: "db", Port: 6543, User: "bot", Password: "p@ss",
				Database: "trader", SSLMode: "require",
				Params: map[string]string{"application_name": "venue-trader", "": "ignored"},
			},
			want: "postgres://bot:p%40ss@db:6543/trader?application_name=venue-trader&sslmode=require",
		},
		{
			name: "conn string wins",
			opt:  Option{ConnString: "postgres://x@y/z", Database: "ignored"},
			want: "postgres://x@y/z",
		},
		{
			name:    "database required",
			opt:     Option{Host: "db"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opt.dsn()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordMapping(t *testing.T) {
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	rec := toTradeRecord(types.TradeEvent{
		ID: "t-1", Symbol: "AAPL", Venue: types.VenueEquities, Side: types.SideBuy,
		Quantity: 3, Price: 101.5, Total: 304.5, IndicatorValue: 24.2, Reason: "RSI oversold", Timestamp: at,
	})
	assert.Equal(t, "equities", rec.Venue)
	assert.Equal(t, "buy", rec.Side)
	assert.Equal(t, 304.5, rec.Total)
	assert.Equal(t, at, rec.ExecutedAt)

	back := rec.event()
	assert.Equal(t, types.VenueEquities, back.Venue)
	assert.Equal(t, types.SideBuy, back.Side)
	assert.Equal(t, "RSI oversold", back.Reason)
	assert.Equal(t, at, back.Timestamp)

	sigs := toSignalRecords([]types.Signal{
		{Symbol: "BTC/USD", Venue: types.VenueCrypto, AssetClass: types.AssetClassCrypto, CurrentPrice: 60000, IndicatorValue: 78, Type: types.SignalSell, Strength: 26.7, Timestamp: at},
	})
	require.Len(t, sigs, 1)
	assert.Equal(t, "SELL", sigs[0].SignalType)
	assert.Equal(t, 60000.0, sigs[0].Price)
	assert.Equal(t, at, sigs[0].ComputedAt)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NoError(t, r.RecordTrade(context.Background(), types.TradeEvent{}))
	assert.NoError(t, r.RecordSignals(context.Background(), nil))
}

var _ Recorder = (*GormRecorder)(nil)

func TestGormRecorderCloseWithoutConnection(t *testing.T) {
	var nilRecorder *GormRecorder
	assert.NoError(t, nilRecorder.Close())
	assert.NoError(t, (&GormRecorder{}).Close())
}
