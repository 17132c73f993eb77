// Package notification keeps a bounded, newest-first feed of trading events for the dashboard.
package notification

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rileyseaburg/venue-trader/types"
)

// Priority defines the priority level of a notification
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Type defines the kind of event a notification reports
type Type string

const (
	TypeTradeExecuted  Type = "trade_executed"
	TypePositionClosed Type = "position_closed"
	TypeHalt           Type = "halt"
	TypeCircuitBreaker Type = "circuit_breaker"
	TypeSystemAlert    Type = "system_alert"
)

// DefaultCapacity is used when a manager is created with a non-positive capacity
const DefaultCapacity = 200

// Notification is one entry of the feed
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  Priority       `json:"priority"`
	Timestamp time.Time      `json:"timestamp"`
	Read      bool           `json:"read"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Manager stores notifications newest first, dropping the oldest past capacity
type Manager struct {
	mu            sync.RWMutex
	notifications []Notification
	capacity      int
	listeners     []func(Notification)
}

// NewManager creates a manager holding at most capacity notifications
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{capacity: capacity}
}

// Subscribe registers fn to be called with every added notification
func (m *Manager) Subscribe(fn func(Notification)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Add stores n, filling in its ID and timestamp when unset
func (m *Manager) Add(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.notifications = append([]Notification{n}, m.notifications...)
	if len(m.notifications) > m.capacity {
		m.notifications = m.notifications[:m.capacity]
	}
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
	return n
}

// List returns all notifications, newest first
func (m *Manager) List() []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

func (m *Manager) filter(keep func(Notification) bool) []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Notification{}
	for _, n := range m.notifications {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// Unread returns notifications not yet marked as read
func (m *Manager) Unread() []Notification {
	return m.filter(func(n Notification) bool { return !n.Read })
}

// ByType returns notifications of type t
func (m *Manager) ByType(t Type) []Notification {
	return m.filter(func(n Notification) bool { return n.Type == t })
}

// BySymbol returns notifications tagged with symbol or mentioning it
func (m *Manager) BySymbol(symbol string) []Notification {
	return m.filter(func(n Notification) bool {
		if sym, ok := n.Metadata["symbol"].(string); ok && sym == symbol {
			return true
		}
		return strings.Contains(n.Title, symbol) || strings.Contains(n.Message, symbol)
	})
}

// Delete removes a notification by ID and reports whether it was found
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, n := range m.notifications {
		if n.ID == id {
			m.notifications = append(m.notifications[:i], m.notifications[i+1:]...)
			return true
		}
	}
	return false
}

// MarkAsRead marks a notification as read and reports whether it was found
func (m *Manager) MarkAsRead(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllAsRead marks all notifications as read
func (m *Manager) MarkAllAsRead() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.notifications {
		m.notifications[i].Read = true
	}
}

// Clear removes all notifications
func (m *Manager) Clear() {
	m.mu.Lock()
	m.notifications = nil
	m.mu.Unlock()
}

// TradeExecuted reports a filled or accepted order
func TradeExecuted(ev types.TradeEvent) Notification {
	action := "Bought"
	t := TypeTradeExecuted
	if ev.Side == types.SideSell {
		action = "Sold"
		t = TypePositionClosed
	}
	return Notification{
		ID:        uuid.NewString(),
		Type:      t,
		Title:     fmt.Sprintf("%s %s", ev.Symbol, action),
		Message:   fmt.Sprintf("%s %s %s at $%.2f ($%.2f) on %s: %s", action, formatQuantity(ev.Quantity), ev.Symbol, ev.Price, ev.Total, ev.Venue, ev.Reason),
		Priority:  PriorityHigh,
		Timestamp: ev.Timestamp,
		Metadata: map[string]any{
			"symbol":   ev.Symbol,
			"venue":    string(ev.Venue),
			"side":     string(ev.Side),
			"quantity": ev.Quantity,
			"price":    ev.Price,
			"trade_id": ev.ID,
		},
	}
}

// Halted reports that a daily limit stopped trading
func Halted(reason string, pnl float64) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Type:      TypeHalt,
		Title:     "Trading halted",
		Message:   fmt.Sprintf("%s (session P&L $%.2f)", reason, pnl),
		Priority:  PriorityHigh,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"reason": reason, "pnl": pnl},
	}
}

// CircuitBreakerTripped reports an emergency liquidation
func CircuitBreakerTripped(lossPercent float64, closed, failed int) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Type:      TypeCircuitBreaker,
		Title:     "Circuit breaker tripped",
		Message:   fmt.Sprintf("Session down %.2f%%, liquidated %d positions (%d failed)", -lossPercent, closed, failed),
		Priority:  PriorityHigh,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"loss_percent": lossPercent, "closed": closed, "failed": failed},
	}
}

// SystemAlert reports lifecycle events such as start and stop
func SystemAlert(title, message string, priority Priority) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Type:      TypeSystemAlert,
		Title:     title,
		Message:   message,
		Priority:  priority,
		Timestamp: time.Now(),
	}
}

// formatQuantity prints whole quantities without decimals and fractional ones up to 8 places
func formatQuantity(q float64) string {
	s := fmt.Sprintf("%.8f", q)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
