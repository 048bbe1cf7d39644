// Package metrics holds the Prometheus instrumentation for the bridge:
// connection lifecycle, command dispatch outcomes, confirmation flow and
// graph mutations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the bridge process.
type Registry struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectionsActive   prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	ConnectionsRejected prometheus.Counter

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	FramingErrors   prometheus.Counter

	// Confirmation metrics
	ConfirmationsIssued   *prometheus.CounterVec
	ConfirmationsAccepted *prometheus.CounterVec
	ConfirmationsRejected *prometheus.CounterVec
	WhitelistHits         prometheus.Counter

	// Graph metrics
	GraphMutationsTotal *prometheus.CounterVec
	HostTimeouts        prometheus.Counter
}

// NewRegistry creates a registry with all bridge metrics registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.ConnectionsActive = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "nodebridge_connections_active",
		Help: "Current number of client connections",
	})
	r.ConnectionsTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "nodebridge_connections_total",
		Help: "Total number of accepted client connections",
	})
	r.ConnectionsRejected = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "nodebridge_connections_rejected_total",
		Help: "Connections rejected at handler capacity",
	})

	r.CommandsTotal = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "nodebridge_commands_total",
		Help: "Commands dispatched, by type and outcome",
	}, []string{"type", "status"})
	r.CommandDuration = promauto.With(r.registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nodebridge_command_duration_seconds",
		Help:    "Command execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	r.FramingErrors = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "nodebridge_framing_errors_total",
		Help: "Malformed or oversized envelopes received",
	})

	r.ConfirmationsIssued = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "nodebridge_confirmations_issued_total",
		Help: "Confirmation tokens issued, by risk tier",
	}, []string{"tier"})
	r.ConfirmationsAccepted = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "nodebridge_confirmations_accepted_total",
		Help: "Confirmation tokens redeemed successfully, by risk tier",
	}, []string{"tier"})
	r.ConfirmationsRejected = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "nodebridge_confirmations_rejected_total",
		Help: "Confirmation tokens rejected, by reason",
	}, []string{"reason"})
	r.WhitelistHits = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "nodebridge_whitelist_hits_total",
		Help: "Commands executed via a session whitelist entry",
	})

	r.GraphMutationsTotal = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "nodebridge_graph_mutations_total",
		Help: "Successful graph mutations, by kind",
	}, []string{"kind"})
	r.HostTimeouts = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "nodebridge_host_timeouts_total",
		Help: "Commands that timed out waiting for the host thread",
	})

	return r
}

// ObserveHostQueue registers a gauge that samples the host thread's queue
// depth at scrape time.
func (r *Registry) ObserveHostQueue(depth func() int) {
	promauto.With(r.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nodebridge_host_queue_depth",
		Help: "Tasks waiting for the host authoritative thread",
	}, func() float64 { return float64(depth()) })
}

// RecordCommand records one dispatched command with its outcome.
func (r *Registry) RecordCommand(cmdType, status string, duration time.Duration) {
	r.CommandsTotal.WithLabelValues(cmdType, status).Inc()
	r.CommandDuration.WithLabelValues(cmdType).Observe(duration.Seconds())
}

// Handler returns an HTTP handler serving this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
