// Package metrics exposes the engine's Prometheus metrics:
//   - trader_trades_opened_total{type}        - positions opened, by trade type
//   - trader_trades_closed_total{reason}      - terminal transitions, by close reason
//   - trader_monitor_evaluations_total{action} - exit-policy verdicts (hold|sell|adjust)
//   - trader_retry_exhausted_total{op}        - retry wrappers that ran out of attempts
//   - trader_active_monitors                  - currently running monitor loops (gauge)
//
// Registered in init() and served at /metrics on the status server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TradesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_trades_opened_total",
			Help: "Positions opened",
		},
		[]string{"type"},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_trades_closed_total",
			Help: "Positions closed, by reason",
		},
		[]string{"reason"},
	)

	MonitorEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_monitor_evaluations_total",
			Help: "Exit-policy verdicts taken by monitor loops",
		},
		[]string{"action"},
	)

	RetryExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_retry_exhausted_total",
			Help: "Operations whose retry budget ran out",
		},
		[]string{"op"},
	)

	ActiveMonitors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_active_monitors",
			Help: "Currently running position monitors",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TradesOpened,
		TradesClosed,
		MonitorEvaluations,
		RetryExhausted,
		ActiveMonitors,
	)
}
