// Package metrics exposes Prometheus instruments for the trading loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "trader_cycles_total", Help: "Trading cycles run"},
	)
	CycleErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "trader_cycle_errors_total", Help: "Trading cycles that failed"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trader_cycle_duration_seconds",
			Help:    "Wall time of one trading cycle",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_orders_total", Help: "Orders submitted"},
		[]string{"venue", "side"},
	)
	ScanErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "trader_scan_errors_total", Help: "Assets that failed to scan"},
	)
	SessionPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "trader_session_pnl", Help: "Current daily session P&L"},
	)
	RunState = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "trader_run_state", Help: "0 stopped, 1 running, 2 paused"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		CycleErrorsTotal,
		CycleDuration,
		OrdersTotal,
		ScanErrorsTotal,
		SessionPnL,
		RunState,
	)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
