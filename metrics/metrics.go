package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_ticks_total",
			Help: "Total number of scheduler ticks (by outcome).",
		},
		[]string{"outcome"},
	)

	TicksSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_ticks_skipped_total",
			Help: "Timer fires skipped because the previous tick was still running.",
		},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_orders_submitted_total",
			Help: "Total number of orders submitted (by strategy).",
		},
		[]string{"strategy"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_positions_open",
			Help: "Current number of open synthetic positions.",
		},
	)

	// Gauge because realized PnL moves in both directions.
	RealizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_realized_pnl_total",
			Help: "Cumulative realized PnL in quote currency (by strategy).",
		},
		[]string{"strategy"},
	)

	BusDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_bus_events_dropped_total",
			Help: "Events dropped by the bus because no consumer kept up.",
		},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, TicksSkipped, OrdersSubmitted, PositionsOpen, RealizedPnL, BusDropped)
}
