// Package metrics exposes the bot's Prometheus collectors. Everything is
// registered on the default registry; serve it with promhttp.Handler().
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_signals_total",
		Help: "Signals seen, by pipeline outcome.",
	}, []string{"outcome"})

	OrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_orders_total",
		Help: "Orders placed, by mode (live/sim) and type (market/limit).",
	}, []string{"mode", "type"})

	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_open_positions",
		Help: "Positions currently tracked in the book.",
	})

	ForcedFlattens = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_forced_flattens_total",
		Help: "Positions force-closed by a watchdog or operator.",
	})

	ExitReasons = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_exit_reasons_total",
		Help: "Closed positions, by close reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		SignalsTotal,
		OrdersTotal,
		OpenPositions,
		ForcedFlattens,
		ExitReasons,
	)
}
