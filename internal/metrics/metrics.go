// Package metrics declares the Prometheus collectors exported by solarcast.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes used as the "outcome" label.
const (
	OutcomePublished = "published"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

var (
	// CyclesTotal counts poll cycles by outcome
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarcast_cycles_total",
			Help: "Total number of poll cycles by outcome",
		},
		[]string{"outcome"},
	)

	// CycleErrors counts failed cycles by error kind and stage
	CycleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarcast_cycle_errors_total",
			Help: "Total number of failed poll cycles by error kind and stage",
		},
		[]string{"kind", "stage"},
	)

	// CycleDuration is the wall time of one cycle, excluding the interval sleep
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solarcast_cycle_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// PredictedDCPower is the latest forecast
	PredictedDCPower = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solarcast_predicted_dc_power",
			Help: "Latest forecast DC power",
		},
		[]string{"device_id"},
	)

	// DefaultedFields counts reading fields replaced by the default fill
	DefaultedFields = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarcast_defaulted_fields_total",
			Help: "Total number of missing reading fields filled with the default",
		},
		[]string{"field"},
	)

	// StoreOperations counts remote store calls by operation and status
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarcast_store_operations_total",
			Help: "Total number of remote store operations",
		},
		[]string{"operation", "status"},
	)

	// LogPatches counts attempts to patch the newest sensorLog entry
	LogPatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarcast_log_patch_total",
			Help: "Total number of sensorLog patch attempts by result",
		},
		[]string{"result"},
	)

	// SideWrites counts journal and event stream writes
	SideWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarcast_side_writes_total",
			Help: "Total number of journal and event stream writes",
		},
		[]string{"sink", "status"},
	)

	// RequestsTotal counts on-demand HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarcast_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// RequestDuration is the on-demand request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solarcast_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)
