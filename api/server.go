// Package api exposes the trading loop over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rileyseaburg/venue-trader/algorithm"
	"github.com/rileyseaburg/venue-trader/metrics"
	"github.com/rileyseaburg/venue-trader/notification"
	"github.com/rileyseaburg/venue-trader/risk"
	"github.com/rileyseaburg/venue-trader/types"
	"github.com/rileyseaburg/venue-trader/venue"
)

// Stream event types
const (
	EventStatus       = "status"
	EventNotification = "notification"
)

// Trader is the part of the trading loop the control surface drives
type Trader interface {
	Start(ctx context.Context, universe []types.AssetSpec) error
	Pause() bool
	Stop() bool
	GetStatus() algorithm.Status
	GetSessionStats() risk.SessionStats
	RiskConfig() risk.Config
	UpdateRiskConfig(cfg risk.Config) error
	ClosePosition(ctx context.Context, symbol string) error
}

// TradeHistory reads back persisted trades
type TradeHistory interface {
	RecentTrades(ctx context.Context, limit int) ([]types.TradeEvent, error)
}

// Trade history page sizes
const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
)

// Server routes control requests to the trader
type Server struct {
	trader   Trader
	universe []types.AssetSpec
	history  TradeHistory
	hub      *Hub
	log      zerolog.Logger
	mux      *http.ServeMux
}

// Option customizes a Server
type Option func(*Server)

// WithTradeHistory serves GET /api/trades from h
func WithTradeHistory(h TradeHistory) Option {
	return func(s *Server) { s.history = h }
}

// NewServer builds the control surface.
// universe is what POST /api/start trades when the request names none.
func NewServer(trader Trader, universe []types.AssetSpec, notes *notification.Manager, hub *Hub, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		trader:   trader,
		universe: universe,
		hub:      hub,
		log:      log.With().Str("component", "api").Logger(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("/api/start", s.handleStart)
	s.mux.HandleFunc("/api/pause", s.handlePause)
	s.mux.HandleFunc("/api/stop", s.handleStop)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.HandleFunc("/api/risk", s.handleRisk)
	// GET /api/trades[?limit=n]
	s.mux.HandleFunc("/api/trades", s.handleTrades)
	// POST /api/positions/{symbol}/close; crypto symbols keep their slash
	s.mux.HandleFunc("/api/positions/", s.handleClosePosition)
	s.mux.Handle("/api/stream", hub)
	s.mux.Handle("/metrics", metrics.Handler())
	notification.NewHandler(notes, s.log).RegisterRoutes(s.mux)
	return s
}

// Handler returns the routes wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// PublishStatus pushes a status snapshot to stream clients
func (s *Server) PublishStatus(st algorithm.Status) {
	s.hub.Publish(EventStatus, st)
}

// PublishNotification pushes a notification to stream clients
func (s *Server) PublishNotification(n notification.Notification) {
	s.hub.Publish(EventNotification, n)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type startRequest struct {
	Universe []types.AssetSpec `json:"universe"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	universe := s.universe
	if len(req.Universe) > 0 {
		universe = req.Universe
	}

	err := s.trader.Start(r.Context(), universe)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": s.trader.GetStatus()})
	case errors.Is(err, algorithm.ErrAlreadyRunning):
		s.writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "error": err.Error()})
	case errors.Is(err, algorithm.ErrConnectivity):
		s.log.Warn().Err(err).Msg("start refused")
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
	default:
		s.log.Error().Err(err).Msg("start failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
	}
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.trader.Pause)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.trader.Stop)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func() bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !fn() {
		s.writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "state": s.trader.GetStatus().State})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": s.trader.GetStatus()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.trader.GetStatus())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.trader.GetSessionStats())
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.trader.RiskConfig())

	case http.MethodPost:
		// Fields missing from the body keep their current values.
		cfg := s.trader.RiskConfig()
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.trader.UpdateRiskConfig(cfg); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		s.log.Info().Interface("risk", cfg).Msg("risk parameters updated")
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "risk": s.trader.RiskConfig()})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "no trade store configured"})
		return
	}

	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := s.history.RecentTrades(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load trades")
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/positions/")
	symbol, ok := strings.CutSuffix(rest, "/close")
	if !ok || symbol == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := s.trader.ClosePosition(r.Context(), symbol)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "symbol": symbol})
	case errors.Is(err, venue.ErrNoPosition):
		s.writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": err.Error()})
	default:
		s.log.Error().Str("sym", symbol).Err(err).Msg("manual close failed")
		s.writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "error": err.Error()})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}
