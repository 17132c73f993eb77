package algorithm

import (
	"slices"
	"time"

	"github.com/rileyseaburg/venue-trader/risk"
	"github.com/rileyseaburg/venue-trader/types"
)

// RunState is the lifecycle state of the trading loop
type RunState string

const (
	StateStopped RunState = "stopped"
	StateRunning RunState = "running"
	StatePaused  RunState = "paused"
)

// gauge maps the state onto the run state metric
func (s RunState) gauge() float64 {
	switch s {
	case StateRunning:
		return 1
	case StatePaused:
		return 2
	default:
		return 0
	}
}

// Status is a snapshot of the trading loop for the control surface.
// It reflects the last known values even when the latest cycle failed.
type Status struct {
	State       RunState          `json:"state"`
	IsRunning   bool              `json:"is_running"`
	Strategy    string            `json:"strategy"`
	Universe    int               `json:"universe"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	StoppedAt   time.Time         `json:"stopped_at,omitempty"`
	StopReason  string            `json:"stop_reason,omitempty"`
	LastCycleAt time.Time         `json:"last_cycle_at,omitempty"`
	CycleCount  int               `json:"cycle_count"`
	ErrorCount  int               `json:"error_count"`
	LastError   string            `json:"last_error,omitempty"`
	Balance     float64           `json:"balance"`
	Positions   []types.Position  `json:"positions"`
	LastScan    *ScanResult       `json:"last_scan,omitempty"`
	Candidates  []types.Signal    `json:"candidates"`
	Session     risk.SessionStats `json:"session"`
}

// GetStatus returns the current status of the trading loop
func (a *TradingAlgorithm) GetStatus() Status {
	a.mu.RLock()
	st := Status{
		State:       a.state,
		IsRunning:   a.state == StateRunning,
		Strategy:    a.scanner.engine.Name(),
		Universe:    len(a.universe),
		StartedAt:   a.startedAt,
		StoppedAt:   a.stoppedAt,
		StopReason:  a.stopReason,
		LastCycleAt: a.lastCycleAt,
		CycleCount:  a.cycles,
		ErrorCount:  a.cycleErrors,
		LastError:   a.lastError,
		Balance:     a.balance,
		Positions:   append([]types.Position{}, a.positions...),
		Candidates:  append([]types.Signal{}, a.candidates...),
	}
	if a.lastScan != nil {
		scan := *a.lastScan
		st.LastScan = &scan
	}
	a.mu.RUnlock()

	st.Session = a.risk.SessionStats()
	return st
}

// GetSessionStats returns the daily session accounting
func (a *TradingAlgorithm) GetSessionStats() risk.SessionStats {
	return a.risk.SessionStats()
}

// OnStatus registers fn to receive a status snapshot after every cycle and state change
func (a *TradingAlgorithm) OnStatus(fn func(Status)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

func (a *TradingAlgorithm) publish() {
	a.mu.RLock()
	listeners := slices.Clone(a.listeners)
	a.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	st := a.GetStatus()
	for _, fn := range listeners {
		fn(st)
	}
}
