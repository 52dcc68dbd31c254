// Package metrics exposes gateway counters and latencies to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of observations the gateway records.
type Metrics interface {
	// ObserveUpstreamRequest records one bridge round trip. status is
	// "ok", "error", "timeout" or "closed".
	ObserveUpstreamRequest(upstream, method, status string, durationSeconds float64)
	// IncToolCall counts one tool call. route must come from a bounded set
	// (an upstream name, a local tool name or "unknown"), never the raw
	// caller-supplied tool name.
	IncToolCall(route, status string)
	IncRateLimited()
	IncProfileRead(source string)
	SetBridgeState(upstream string, ready bool)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveUpstreamRequest(string, string, string, float64) {}
func (Noop) IncToolCall(string, string)                             {}
func (Noop) IncRateLimited()                                        {}
func (Noop) IncProfileRead(string)                                  {}
func (Noop) SetBridgeState(string, bool)                            {}

// Prom implements Metrics backed by Prometheus collectors registered on the
// default registerer. Building a second Prom with the same namespace reuses
// the collectors already registered.
type Prom struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	toolCalls        *prometheus.CounterVec
	rateLimited      prometheus.Counter
	profileReads     *prometheus.CounterVec
	bridgeReady      *prometheus.GaugeVec
}

func NewProm(namespace string) *Prom {
	return &Prom{
		upstreamRequests: register(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream requests by upstream/method/status",
		}, []string{"upstream", "method", "status"})),
		upstreamLatency: register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream round-trip latency by upstream/method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"upstream", "method"})),
		toolCalls: register(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by route (upstream or local tool) and status",
		}, []string{"route", "status"})),
		rateLimited: register(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Tool calls rejected by the rate limiter",
		})),
		profileReads: register(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_reads_total",
			Help:      "Company profile reads by source",
		}, []string{"source"})),
		bridgeReady: register(prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridge_ready",
			Help:      "1 when the upstream bridge is ready, 0 otherwise",
		}, []string{"upstream"})),
	}
}

// register adds c to the default registerer, returning the collector already
// registered under the same descriptor if there is one.
func register[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (p *Prom) ObserveUpstreamRequest(upstream, method, status string, durationSeconds float64) {
	p.upstreamRequests.WithLabelValues(upstream, method, status).Inc()
	p.upstreamLatency.WithLabelValues(upstream, method).Observe(durationSeconds)
}

func (p *Prom) IncToolCall(route, status string) {
	p.toolCalls.WithLabelValues(route, status).Inc()
}

func (p *Prom) IncRateLimited() {
	p.rateLimited.Inc()
}

func (p *Prom) IncProfileRead(source string) {
	p.profileReads.WithLabelValues(source).Inc()
}

func (p *Prom) SetBridgeState(upstream string, ready bool) {
	v := 0.0
	if ready {
		v = 1
	}
	p.bridgeReady.WithLabelValues(upstream).Set(v)
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
