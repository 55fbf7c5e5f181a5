// Package observability provides Prometheus metrics and the tracer used by the pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Construction metrics
	CandlesBuilt      *prometheus.CounterVec
	BookFeaturesBuilt *prometheus.CounterVec
	MissingInputs     *prometheus.CounterVec

	// Unit metrics
	UnitsTotal    *prometheus.CounterVec
	UnitDuration  prometheus.Histogram
	GroupsSkipped prometheus.Counter

	// Storage metrics
	RowGroupsScanned prometheus.Counter
	RowGroupsSkipped prometheus.Counter
	SinkRetries      *prometheus.CounterVec
	PublishErrors    prometheus.Counter

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "market_candles"
	}
	f := promauto.With(reg)

	return &Metrics{
		CandlesBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "construction",
			Name:      "candles_built_total",
			Help:      "Candles persisted by timeframe",
		}, []string{"timeframe"}),
		BookFeaturesBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "construction",
			Name:      "book_features_built_total",
			Help:      "Book snapshot feature rows persisted by timeframe",
		}, []string{"timeframe"}),
		MissingInputs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "construction",
			Name:      "missing_inputs_total",
			Help:      "Raw feeds absent or unreadable for a unit, by data type",
		}, []string{"data_type"}),

		UnitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "units_total",
			Help:      "Instrument-day units by final status",
		}, []string{"status"}),
		UnitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "unit_duration_seconds",
			Help:      "Wall time to build one instrument-day unit",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		GroupsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "groups_skipped_total",
			Help:      "Underlying groups skipped by the validator",
		}),

		RowGroupsScanned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "row_groups_scanned_total",
			Help:      "Row groups decoded by columnar reads",
		}),
		RowGroupsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "row_groups_skipped_total",
			Help:      "Row groups pruned by statistics",
		}),
		SinkRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "sink_retries_total",
			Help:      "Retried sink writes by sink",
		}, []string{"sink"}),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "publish_errors_total",
			Help:      "Completion events that could not be published",
		}),

		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last run without failed units",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is registered on the default Prometheus registry.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// ObserveScan records one columnar read's pruning outcome. It matches
// columnar.ScanObserver.
func (m *Metrics) ObserveScan(scanned, skipped int) {
	m.RowGroupsScanned.Add(float64(scanned))
	m.RowGroupsSkipped.Add(float64(skipped))
}

// RecordUnit records a finished unit.
func (m *Metrics) RecordUnit(status string, seconds float64) {
	m.UnitsTotal.WithLabelValues(status).Inc()
	m.UnitDuration.Observe(seconds)
}

// Tracer returns the pipeline tracer. Spans are no-ops unless the binary
// installs a global TracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer("market-candle-lab")
}
