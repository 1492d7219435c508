// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Trading metrics
	TradesExecuted  *prometheus.CounterVec
	TradeRejections *prometheus.CounterVec
	TradeDuration   *prometheus.HistogramVec
	TradeRetries    prometheus.Counter

	// Coin lifecycle metrics
	CoinsCreated     prometheus.Counter
	CoinsGraduated   prometheus.Counter
	CoinsDeactivated prometheus.Counter

	// Feed metrics
	FeedClients       prometheus.Gauge
	FeedMessagesSent  prometheus.Counter
	FeedClientsDropped prometheus.Counter

	// Database metrics
	DBQueryErrors *prometheus.CounterVec
	TicksWritten  prometheus.Counter
	TickWriteErrors prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "curve_exchange"
	}

	return &Metrics{
		// Trading metrics
		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_executed_total",
			Help:      "Total number of committed trades by side",
		}, []string{"side"}),
		TradeRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trade_rejections_total",
			Help:      "Total number of rejected trades by reason",
		}, []string{"reason"}),
		TradeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trade_duration_seconds",
			Help:      "Full validate-price-apply duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"side"}),
		TradeRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trade_retries_total",
			Help:      "Total number of trade retries after version conflicts",
		}),

		// Coin lifecycle metrics
		CoinsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coins",
			Name:      "created_total",
			Help:      "Total number of coins created",
		}),
		CoinsGraduated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coins",
			Name:      "graduated_total",
			Help:      "Total number of coins that crossed the graduation threshold",
		}),
		CoinsDeactivated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coins",
			Name:      "deactivated_total",
			Help:      "Total number of coins soft-deactivated",
		}),

		// Feed metrics
		FeedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Current number of connected websocket clients",
		}),
		FeedMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_sent_total",
			Help:      "Total number of trade events pushed to clients",
		}),
		FeedClientsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients_dropped_total",
			Help:      "Total number of clients dropped for slow consumption",
		}),

		// Database metrics
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		TicksWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "ticks_written_total",
			Help:      "Total number of trade ticks written to ClickHouse",
		}),
		TickWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "tick_write_errors_total",
			Help:      "Total number of failed trade tick writes",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTradeExecuted increments the committed trades counter.
func RecordTradeExecuted(side string, durationSeconds float64) {
	DefaultMetrics.TradesExecuted.WithLabelValues(side).Inc()
	DefaultMetrics.TradeDuration.WithLabelValues(side).Observe(durationSeconds)
}

// RecordTradeRejected increments the rejection counter for a reason.
func RecordTradeRejected(reason string) {
	DefaultMetrics.TradeRejections.WithLabelValues(reason).Inc()
}

// RecordTradeRetry increments the version-conflict retry counter.
func RecordTradeRetry() {
	DefaultMetrics.TradeRetries.Inc()
}

// RecordCoinCreated increments the coins created counter.
func RecordCoinCreated() {
	DefaultMetrics.CoinsCreated.Inc()
}

// RecordCoinGraduated increments the coins graduated counter.
func RecordCoinGraduated() {
	DefaultMetrics.CoinsGraduated.Inc()
}

// RecordCoinDeactivated increments the coins deactivated counter.
func RecordCoinDeactivated() {
	DefaultMetrics.CoinsDeactivated.Inc()
}

// SetFeedClients updates the connected websocket clients gauge.
func SetFeedClients(n int) {
	DefaultMetrics.FeedClients.Set(float64(n))
}

// RecordFeedMessage increments the feed messages counter.
func RecordFeedMessage() {
	DefaultMetrics.FeedMessagesSent.Inc()
}

// RecordFeedClientDropped increments the dropped clients counter.
func RecordFeedClientDropped() {
	DefaultMetrics.FeedClientsDropped.Inc()
}

// RecordDBError records a database query error.
func RecordDBError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}

// RecordTickWrite records the outcome of a trade tick write.
func RecordTickWrite(count int, err error) {
	if err != nil {
		DefaultMetrics.TickWriteErrors.Inc()
		return
	}
	DefaultMetrics.TicksWritten.Add(float64(count))
}
