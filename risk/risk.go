package risk

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rileyseaburg/venue-trader/types"
)

const (
	// CircuitBreakerPercent is the session loss, in percent, that forces a full liquidation
	CircuitBreakerPercent = -5.0
	// CashReserve is the share of the balance a single buy may consume
	CashReserve = 0.95
	// baseRiskFraction is scaled by aggressiveness/100 to get the per-trade allocation
	baseRiskFraction = 0.02

	minEquityQuantity = 1.0
	minCryptoQuantity = 0.001

	sessionDateLayout = "2006-01-02"
)

// DailySession is the accounting window for the daily limits
type DailySession struct {
	StartBalance float64 `json:"start_balance"`
	CurrentPnL   float64 `json:"current_pnl"`
	TradeCount   int     `json:"trade_count"`
	SessionDate  string  `json:"session_date"`
}

// SessionStats is the read model of the current session
type SessionStats struct {
	SessionDate          string  `json:"session_date"`
	StartBalance         float64 `json:"start_balance"`
	CurrentPnL           float64 `json:"current_pnl"`
	PnLPercent           float64 `json:"pnl_percent"`
	TradeCount           int     `json:"trade_count"`
	ProfitLimitRemaining float64 `json:"profit_limit_remaining"`
	LossLimitRemaining   float64 `json:"loss_limit_remaining"`
	CanTrade             bool    `json:"can_trade"`
}

// Validation is the outcome of ValidateTrade
type Validation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Manager owns the daily session and applies the risk policy.
// Writes come from the trading loop only; reads may come from anywhere.
type Manager struct {
	mu      sync.RWMutex
	cfg     Config
	session DailySession
	now     func() time.Time
	log     zerolog.Logger
}

// Option customizes a Manager
type Option func(*Manager)

// WithClock overrides the wall clock used to date sessions
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a risk manager with the given policy
func NewManager(cfg Config, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg: cfg.clone(),
		now: time.Now,
		log: log.With().Str("component", "risk").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) today() string {
	return m.now().Format(sessionDateLayout)
}

// ResetDailySession starts a new session at balance unless one already exists for today.
// It reports whether a new session was created.
func (m *Manager) ResetDailySession(balance float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.today()
	if m.session.SessionDate == today {
		return false
	}

	m.session = DailySession{
		StartBalance: balance,
		SessionDate:  today,
	}
	m.log.Info().Str("date", today).Float64("start_balance", balance).Msg("new trading session")
	return true
}

// UpdateDailyPnL marks the session against the current balance
func (m *Manager) UpdateDailyPnL(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.CurrentPnL = balance - m.session.StartBalance
}

// RecordTrade counts an executed trade against the session
func (m *Manager) RecordTrade() {
	m.mu.Lock()
	m.session.TradeCount++
	m.mu.Unlock()
}

// HitProfitLimit reports whether the daily profit target is reached
func (m *Manager) HitProfitLimit() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hitProfitLimit()
}

// HitLossLimit reports whether the daily loss limit is reached
func (m *Manager) HitLossLimit() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hitLossLimit()
}

// ShouldHalt reports whether either daily limit is reached
func (m *Manager) ShouldHalt() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hitProfitLimit() || m.hitLossLimit()
}

func (m *Manager) hitProfitLimit() bool {
	return m.session.CurrentPnL >= m.cfg.DailyProfitLimit
}

func (m *Manager) hitLossLimit() bool {
	return m.session.CurrentPnL <= -m.cfg.DailyLossLimit
}

// CircuitBreaker reports whether balance has fallen CircuitBreakerPercent or more below the session start
func (m *Manager) CircuitBreaker(balance float64) bool {
	m.mu.RLock()
	start := m.session.StartBalance
	m.mu.RUnlock()

	if start <= 0 {
		return false
	}
	lossPercent := (balance - start) / start * 100
	return lossPercent <= CircuitBreakerPercent
}

// CanOpenPosition checks the total and per-venue position caps
func (m *Manager) CanOpenPosition(open []types.Position, venue types.Venue) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.canOpenPosition(open, venue)
}

func (m *Manager) canOpenPosition(open []types.Position, venue types.Venue) bool {
	if len(open) >= m.cfg.MaxTotalPositions {
		return false
	}
	venueCount := 0
	for _, p := range open {
		if p.Venue == venue {
			venueCount++
		}
	}
	return venueCount < m.cfg.MaxPositionsFor(venue)
}

// PositionSize returns the order quantity for a new position at price.
// Equities get whole units with a minimum of one, crypto gets a fractional amount with a minimum of 0.001.
func (m *Manager) PositionSize(balance, price float64, class types.AssetClass) types.Quantity {
	if price <= 0 || balance <= 0 {
		return types.Quantity{Class: class}
	}

	m.mu.RLock()
	aggressiveness := m.cfg.Aggressiveness
	m.mu.RUnlock()

	// riskFraction = 2% * aggressiveness/100
	positionValue := balance * baseRiskFraction * aggressiveness / 100
	switch class {
	case types.AssetClassEquity:
		qty := math.Floor(positionValue / price)
		return types.NewQuantity(class, math.Max(qty, minEquityQuantity))
	default:
		qty := positionValue / price
		return types.NewQuantity(class, math.Max(qty, minCryptoQuantity))
	}
}

// ShouldExit reports whether pos crossed its stop loss or take profit
func (m *Manager) ShouldExit(pos types.Position) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pos.UnrealizedPnLPercent <= -m.cfg.StopLossPercent ||
		pos.UnrealizedPnLPercent >= m.cfg.TakeProfitPercent
}

// ValidateTrade checks a proposed order against the position caps, cash reserve and daily limits.
// Sells are always allowed.
func (m *Manager) ValidateTrade(side types.Side, symbol string, venue types.Venue, qty, price float64, open []types.Position, balance float64) Validation {
	if side != types.SideBuy {
		return Validation{Valid: true}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.canOpenPosition(open, venue) {
		return Validation{Reason: "position limit reached for " + string(venue)}
	}
	if qty*price > balance*CashReserve {
		return Validation{Reason: "insufficient balance for " + symbol + " after reserve"}
	}
	if m.hitProfitLimit() || m.hitLossLimit() {
		return Validation{Reason: "daily limit reached"}
	}
	return Validation{Valid: true}
}

// Session returns a copy of the current session
func (m *Manager) Session() DailySession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// SessionStats summarizes the current session and the headroom left to each limit
func (m *Manager) SessionStats() SessionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.session
	pct := 0.0
	if s.StartBalance > 0 {
		pct = s.CurrentPnL / s.StartBalance * 100
	}
	return SessionStats{
		SessionDate:          s.SessionDate,
		StartBalance:         s.StartBalance,
		CurrentPnL:           s.CurrentPnL,
		PnLPercent:           pct,
		TradeCount:           s.TradeCount,
		ProfitLimitRemaining: m.cfg.DailyProfitLimit - s.CurrentPnL,
		LossLimitRemaining:   m.cfg.DailyLossLimit + s.CurrentPnL,
		CanTrade:             !(m.hitProfitLimit() || m.hitLossLimit()),
	}
}

// Config returns a copy of the active policy
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.clone()
}

// UpdateConfig replaces the policy after validating it
func (m *Manager) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg.clone()
	m.mu.Unlock()
	m.log.Info().Float64("aggressiveness", cfg.Aggressiveness).Int("max_total_positions", cfg.MaxTotalPositions).Msg("risk config updated")
	return nil
}
