// Package metrics provides Prometheus metrics for the companion relay.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the number of relay connections open on this node.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Number of currently open relay connections",
		},
	)

	// ConnectionsOpened tracks the total number of accepted connections.
	ConnectionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_connections_opened_total",
			Help: "Total number of relay connections opened",
		},
	)

	// ConnectionsClosed tracks the total number of closed connections.
	ConnectionsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_connections_closed_total",
			Help: "Total number of relay connections closed",
		},
	)

	// ConnectionLifetime tracks how long connections stay open.
	ConnectionLifetime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_connection_lifetime_seconds",
			Help:    "Lifetime of relay connections",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	// Exchanges tracks finished exchanges by outcome and error kind.
	Exchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_exchanges_total",
			Help: "Total number of chat exchanges by outcome",
		},
		[]string{"outcome", "kind"},
	)

	// StateTransitions tracks exchange state machine transitions.
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_state_transitions_total",
			Help: "Total number of exchange state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// FirstTokenLatency tracks time from frame receipt to first forwarded increment.
	FirstTokenLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_first_token_latency_seconds",
			Help:    "Latency until the first token frame of an exchange",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// ExchangeDuration tracks total exchange time.
	ExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_exchange_duration_seconds",
			Help:    "Duration of chat exchanges",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// CompletionTokens tracks tokens recorded per exchange by exactness.
	CompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_completion_tokens_total",
			Help: "Completion tokens recorded, split by reported or approximate",
		},
		[]string{"approximate"},
	)

	// DeliveryFailures tracks frames that could not reach their connection.
	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "Total number of frame delivery failures by exchange state",
		},
		[]string{"state"},
	)

	// HTTPRequests tracks REST requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks REST request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordConnectionOpened increments connection metrics.
func RecordConnectionOpened() {
	ConnectionsOpened.Inc()
	ActiveConnections.Inc()
}

// RecordConnectionClosed decrements connection metrics.
func RecordConnectionClosed(lifetime time.Duration) {
	ConnectionsClosed.Inc()
	ActiveConnections.Dec()
	ConnectionLifetime.Observe(lifetime.Seconds())
}

// RecordStateTransition records an exchange state change.
func RecordStateTransition(fromState, toState string) {
	StateTransitions.WithLabelValues(fromState, toState).Inc()
}

// RecordExchange records a finished exchange.
func RecordExchange(outcome, kind string, duration time.Duration) {
	Exchanges.WithLabelValues(outcome, kind).Inc()
	ExchangeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordTokens records the token count of an assistant message.
func RecordTokens(tokens int, approximate bool) {
	CompletionTokens.WithLabelValues(strconv.FormatBool(approximate)).Add(float64(tokens))
}

// RecordDeliveryFailure records a failed frame delivery.
func RecordDeliveryFailure(state string) {
	DeliveryFailures.WithLabelValues(state).Inc()
}

// RecordHTTPRequest records a REST request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
