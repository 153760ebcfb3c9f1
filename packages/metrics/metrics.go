// Package metrics defines the Prometheus collectors exported by sheetd.
// collectors register with the default registry on package init and are
// served by the admin /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts protocol commands by command and result
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetd_commands_total",
		Help: "Total protocol commands by command and result",
	}, []string{"command", "result"})

	// SetDuration tracks the synchronous part of a set, before propagation
	SetDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sheetd_set_duration_seconds",
		Help:    "Time spent handling a set command, excluding propagation",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10us to ~300ms
	})

	// PropagationDuration tracks how long one change event takes to settle
	PropagationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sheetd_propagation_duration_seconds",
		Help:    "Time to recompute every dependent of one change",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 18),
	})

	// PropagationCells tracks the number of cells recomputed per change
	PropagationCells = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sheetd_propagation_cells",
		Help:    "Number of cells recomputed per change event",
		Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 1000, 10000},
	})

	// CyclesTotal counts cells stamped with a circular reference error
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetd_circular_cells_total",
		Help: "Total cells stamped with a circular reference error",
	})

	// QueueDepth is the number of change events waiting for the worker
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sheetd_queue_depth",
		Help: "Change events waiting for the recompute worker",
	})

	// ConnectionsActive is the number of open client connections
	ConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sheetd_connections_active",
		Help: "Open client connections by transport",
	}, []string{"transport"})

	// ConnectionsTotal counts accepted client connections
	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetd_connections_total",
		Help: "Total accepted client connections by transport",
	}, []string{"transport"})

	// RateLimited counts messages delayed by the per-connection limiter
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetd_rate_limited_total",
		Help: "Total messages delayed by the per-connection rate limit",
	})
)
