package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CellsTested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsweep_cells_tested_total",
			Help: "Grid cells simulated (by symbol and timeframe).",
		},
		[]string{"symbol", "timeframe"},
	)

	CellsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsweep_cells_rejected_total",
			Help: "Grid cells that ended with the sentinel profit.",
		},
		[]string{"symbol", "timeframe"},
	)

	BestProfit = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trendsweep_best_profit",
			Help: "Best realised profit found for a pair.",
		},
		[]string{"symbol", "timeframe"},
	)

	PairDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendsweep_pair_duration_seconds",
			Help:    "Wall time spent searching one pair.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"symbol", "timeframe"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsweep_orders_submitted_total",
			Help: "Orders accepted by the broker in the live loop.",
		},
		[]string{"side"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trendsweep_equity",
			Help: "Account balance seen by the live loop.",
		},
	)
)

func init() {
	prometheus.MustRegister(CellsTested, CellsRejected, BestProfit, PairDuration, OrdersSubmitted, EquityGauge)
}
