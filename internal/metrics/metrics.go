package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics of the reconciler
type Metrics struct {
	// Reconciliation
	Passes         prometheus.Counter
	PassDuration   prometheus.Histogram
	Errors         *prometheus.CounterVec
	RoutesCreated  prometheus.Counter
	EventsReceived prometheus.Counter

	// Current state of the sink
	RoutedSources prometheus.Gauge
	Consumers     prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Passes: f.NewCounter(prometheus.CounterOpts{
			Name: "vsink_reconcile_passes_total",
			Help: "Total number of reconciliation passes",
		}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vsink_pass_duration_seconds",
			Help:    "Duration of a reconciliation pass",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vsink_reconcile_errors_total",
			Help: "Failed graph operations by failure class",
		}, []string{"reason"}),
		RoutesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "vsink_routes_created_total",
			Help: "Loopback routes created",
		}),
		EventsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "vsink_events_received_total",
			Help: "Change events drained from the listener queue",
		}),
		RoutedSources: f.NewGauge(prometheus.GaugeOpts{
			Name: "vsink_routed_sources",
			Help: "Sources currently routed into the sink",
		}),
		Consumers: f.NewGauge(prometheus.GaugeOpts{
			Name: "vsink_consumers",
			Help: "Applications currently reading the sink monitor",
		}),
	}
}
