// Package store persists trade-executed and signal-computed events.
// The trading loop only ever writes to it.
package store

import (
	"context"

	"github.com/rileyseaburg/venue-trader/types"
)

// Recorder receives events from the trading loop
type Recorder interface {
	RecordTrade(ctx context.Context, ev types.TradeEvent) error
	RecordSignals(ctx context.Context, signals []types.Signal) error
}

// Nop discards every event. It is used when no database is configured.
type Nop struct{}

func (Nop) RecordTrade(context.Context, types.TradeEvent) error { return nil }
func (Nop) RecordSignals(context.Context, []types.Signal) error { return nil }
