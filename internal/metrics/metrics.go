// Package metrics exposes monitor telemetry as Prometheus collectors.
//
// Every [Metrics] owns its own registry so several monitors can live in one
// process. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/dnsmonitor/internal/store"
)

const namespace = "dnsmonitor"

// Poll outcomes recorded by [Metrics.PollCompleted].
const (
	OutcomeOK         = "ok"
	OutcomeTimeout    = "timeout"
	OutcomeError      = "error"
	OutcomeEmpty      = "empty"
	OutcomeParseError = "parse_error"
	OutcomeStuck      = "stuck"
)

// Metrics holds the collectors for one monitor instance.
type Metrics struct {
	registry *prometheus.Registry

	polls           *prometheus.CounterVec
	channelAttempts *prometheus.CounterVec
	payloads        *prometheus.CounterVec
	responseTime    prometheus.Histogram
	sanitized       prometheus.Counter

	nodeQPS    *prometheus.GaugeVec
	summaryQPS prometheus.Gauge
	nodes      prometheus.Gauge
	staleNodes prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Request/response status polls by outcome.",
		}, []string{"outcome"}),
		channelAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_attempts_total",
			Help:      "Push channel connection attempts by result.",
		}, []string{"result"}),
		payloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_total",
			Help:      "Status payloads received by transport and result.",
		}, []string{"transport", "result"}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_response_seconds",
			Help:      "Round-trip time of answered status polls.",
			Buckets:   prometheus.DefBuckets,
		}),
		sanitized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sanitized_total",
			Help:      "Stale node resets performed by the sanitizer.",
		}),
		nodeQPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_qps",
			Help:      "Queries per second derived for each node.",
		}, []string{"address", "name"}),
		summaryQPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "summary_qps",
			Help:      "Sum of node rates excluding configured addresses.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Number of monitored node addresses.",
		}),
		staleNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_nodes",
			Help:      "Nodes without a recent status update.",
		}),
	}

	m.registry.MustRegister(
		m.polls,
		m.channelAttempts,
		m.payloads,
		m.responseTime,
		m.sanitized,
		m.nodeQPS,
		m.summaryQPS,
		m.nodes,
		m.staleNodes,
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PollCompleted counts a finished request/response poll.
func (m *Metrics) PollCompleted(outcome string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(outcome).Inc()
}

// ChannelAttempt counts a push channel dial.
func (m *Metrics) ChannelAttempt(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.channelAttempts.WithLabelValues(result).Inc()
}

// PayloadReceived counts a status payload and whether it parsed.
func (m *Metrics) PayloadReceived(transport string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "parse_error"
	}
	m.payloads.WithLabelValues(transport, result).Inc()
}

// ObserveResponseTime records the round trip of an answered poll.
func (m *Metrics) ObserveResponseTime(d time.Duration) {
	if m == nil {
		return
	}
	m.responseTime.Observe(d.Seconds())
}

// Sanitized counts one stale node reset.
func (m *Metrics) Sanitized() {
	if m == nil {
		return
	}
	m.sanitized.Inc()
}

// ObserveSnapshot updates the gauges from snap. Nodes missing from snap are
// dropped from the per-node gauge.
func (m *Metrics) ObserveSnapshot(snap store.Snapshot) {
	if m == nil {
		return
	}

	m.nodeQPS.Reset()
	for addr, s := range snap.Servers {
		var qps float64
		if s.QPS != nil {
			qps = float64(*s.QPS)
		}
		m.nodeQPS.WithLabelValues(addr, s.Name).Set(qps)
	}

	m.summaryQPS.Set(float64(snap.Summary.QPS))
	m.nodes.Set(float64(snap.Summary.Nodes))
	m.staleNodes.Set(float64(snap.Summary.Stale))
}
