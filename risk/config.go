// Package risk holds the per-session accounting and the policy that sizes and gates trades.
package risk

import (
	"fmt"

	"github.com/rileyseaburg/venue-trader/types"
)

// Config is the risk policy. It only changes through Manager.UpdateConfig.
type Config struct {
	CapitalBase          float64             `json:"capital_base" yaml:"capital_base"`
	DailyProfitLimit     float64             `json:"daily_profit_limit" yaml:"daily_profit_limit"`
	DailyLossLimit       float64             `json:"daily_loss_limit" yaml:"daily_loss_limit"`
	Aggressiveness       float64             `json:"aggressiveness" yaml:"aggressiveness"` // 50-100
	MaxTotalPositions    int                 `json:"max_total_positions" yaml:"max_total_positions"`
	MaxPositionsPerVenue map[types.Venue]int `json:"max_positions_per_venue" yaml:"max_positions_per_venue"`
	StopLossPercent      float64             `json:"stop_loss_percent" yaml:"stop_loss_percent"`
	TakeProfitPercent    float64             `json:"take_profit_percent" yaml:"take_profit_percent"`
}

// DefaultConfig mirrors the settings the bot ships with
func DefaultConfig() Config {
	return Config{
		CapitalBase:       5000,
		DailyProfitLimit:  250,
		DailyLossLimit:    150,
		Aggressiveness:    70,
		MaxTotalPositions: 5,
		MaxPositionsPerVenue: map[types.Venue]int{
			types.VenueEquities: 3,
			types.VenueCrypto:   2,
		},
		StopLossPercent:   3,
		TakeProfitPercent: 6,
	}
}

// MaxPositionsFor returns the open position cap for venue.
// A venue without an explicit cap falls back to the total cap.
func (c Config) MaxPositionsFor(venue types.Venue) int {
	if n, ok := c.MaxPositionsPerVenue[venue]; ok {
		return n
	}
	return c.MaxTotalPositions
}

// Validate checks every field is in range
func (c Config) Validate() error {
	if c.CapitalBase <= 0 {
		return fmt.Errorf("capital_base must be positive")
	}
	if c.DailyProfitLimit <= 0 {
		return fmt.Errorf("daily_profit_limit must be positive")
	}
	if c.DailyLossLimit <= 0 {
		return fmt.Errorf("daily_loss_limit must be positive")
	}
	if c.Aggressiveness < 50 || c.Aggressiveness > 100 {
		return fmt.Errorf("aggressiveness must be between 50 and 100, got %.2f", c.Aggressiveness)
	}
	if c.MaxTotalPositions <= 0 {
		return fmt.Errorf("max_total_positions must be positive")
	}
	for venue, n := range c.MaxPositionsPerVenue {
		if n < 0 {
			return fmt.Errorf("max_positions_per_venue[%s] must not be negative", venue)
		}
	}
	if c.StopLossPercent <= 0 {
		return fmt.Errorf("stop_loss_percent must be positive")
	}
	if c.TakeProfitPercent <= 0 {
		return fmt.Errorf("take_profit_percent must be positive")
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.MaxPositionsPerVenue = make(map[types.Venue]int, len(c.MaxPositionsPerVenue))
	for k, v := range c.MaxPositionsPerVenue {
		out.MaxPositionsPerVenue[k] = v
	}
	return out
}
