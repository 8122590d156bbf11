// Package metrics holds the ledger's business and storage Prometheus metrics.
// HTTP metrics live in the http middleware package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "payledger"

// Business metrics
var (
	// PaymentsTotal counts commands by type and outcome
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "business",
			Name:      "payments_total",
			Help:      "Total number of payment commands by event type and outcome",
		},
		[]string{"event_type", "outcome", "currency"},
	)

	// PaymentAmount tracks payment amounts
	PaymentAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "business",
			Name:      "payment_amount",
			Help:      "Payment amounts in minor units",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"event_type", "currency"},
	)
)

// Event store metrics
var (
	EventStoreAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventstore",
			Name:      "appends_total",
			Help:      "Total number of appended events",
		},
		[]string{"event_type"},
	)

	EventStoreConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventstore",
			Name:      "conflicts_total",
			Help:      "Appends rejected because the aggregate version was already taken",
		},
		[]string{"aggregate_type"},
	)
)

// Publisher and projection metrics
var (
	PublisherQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "queue_depth",
			Help:      "Events waiting for delivery per shard",
		},
		[]string{"shard"},
	)

	PublisherDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "dropped_total",
			Help:      "Events not enqueued because the shard queue was full",
		},
	)

	ProjectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "errors_total",
			Help:      "Projection handler failures after retries",
		},
		[]string{"event_type"},
	)
)

// Database metrics
var (
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "table"},
	)

	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "errors_total",
			Help:      "Total number of database errors",
		},
		[]string{"operation", "error_type"},
	)

	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connections",
			Help:      "Number of database connections",
		},
		[]string{"state"}, // idle, in_use, max
	)
)

// RecordPayment records the outcome of a payment command.
func RecordPayment(eventType, outcome, currency string, cents int64) {
	PaymentsTotal.WithLabelValues(eventType, outcome, currency).Inc()
	if outcome == "success" {
		PaymentAmount.WithLabelValues(eventType, currency).Observe(float64(cents))
	}
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, start time.Time) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// RecordDBError records a database error metric
func RecordDBError(operation, errorType string) {
	DBErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// UpdateDBConnections updates database connection metrics
func UpdateDBConnections(idle, inUse, max int32) {
	DBConnections.WithLabelValues("idle").Set(float64(idle))
	DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	DBConnections.WithLabelValues("max").Set(float64(max))
}
