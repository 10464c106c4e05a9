// Package metrics provides application-level metrics collection backed by a
// private Prometheus registry.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "coinsync"

// Label values.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
	resultHit    = "hit"
	resultMiss   = "miss"
)

// Metrics holds application metrics. All methods are safe for concurrent use.
type Metrics struct {
	mu sync.RWMutex
	c  *collectors
}

type collectors struct {
	registry *prometheus.Registry

	rpcCalls   *prometheus.CounterVec
	rpcLatency *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec

	staleDiscards *prometheus.CounterVec
	dispatches    prometheus.Counter
	dropped       prometheus.Counter

	sends *prometheus.CounterVec
}

// Global is the global metrics instance.
// Use this for recording metrics throughout the application.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = New()

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	return &Metrics{c: newCollectors()}
}

func newCollectors() *collectors {
	c := &collectors{
		registry: prometheus.NewRegistry(),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Node RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Node RPC call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_cache_lookups_total",
			Help:      "Balance cache lookups by result.",
		}, []string{"result"}),
		staleDiscards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_discarded_total",
			Help:      "Fetch results dropped because their token was superseded.",
		}, []string{"source"}),
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_dispatches_total",
			Help:      "Balance updates dispatched to application state.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_dispatches_dropped_total",
			Help:      "Balance updates not delivered to a slow subscriber.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Submitted transactions by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(
		c.rpcCalls, c.rpcLatency, c.cacheLookups,
		c.staleDiscards, c.dispatches, c.dropped, c.sends,
	)
	return c
}

func (m *Metrics) current() *collectors {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c
}

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeOK
}

// RecordRPCCall records an RPC call with its duration and success status.
func (m *Metrics) RecordRPCCall(method string, duration time.Duration, err error) {
	c := m.current()
	c.rpcCalls.WithLabelValues(method, outcome(err)).Inc()
	c.rpcLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.current().cacheLookups.WithLabelValues(resultHit).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.current().cacheLookups.WithLabelValues(resultMiss).Inc()
}

// RecordStaleDiscard records a result dropped for a superseded token.
// source is "balance" or "fee".
func (m *Metrics) RecordStaleDiscard(source string) {
	m.current().staleDiscards.WithLabelValues(source).Inc()
}

// RecordDispatch records a balance update published to application state.
func (m *Metrics) RecordDispatch() {
	m.current().dispatches.Inc()
}

// RecordDroppedDispatch records an update a subscriber could not take.
func (m *Metrics) RecordDroppedDispatch() {
	m.current().dropped.Inc()
}

// RecordSend records a transaction submission.
func (m *Metrics) RecordSend(err error) {
	m.current().sends.WithLabelValues(outcome(err)).Inc()
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.current().registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	RPCCallsTotal     int64
	RPCErrorsTotal    int64
	RPCLatencyNanos   int64
	CacheHits         int64
	CacheMisses       int64
	StaleDiscards     int64
	Dispatches        int64
	DroppedDispatches int64
	SendsTotal        int64
	SendErrors        int64
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	families, err := m.Registry().Gather()
	if err != nil {
		return Snapshot{}
	}

	var s Snapshot
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			s.add(f.GetName(), metric)
		}
	}
	return s
}

func (s *Snapshot) add(name string, metric *dto.Metric) {
	count := int64(metric.GetCounter().GetValue())
	switch name {
	case namespace + "_rpc_calls_total":
		s.RPCCallsTotal += count
		if label(metric, "outcome") == outcomeError {
			s.RPCErrorsTotal += count
		}
	case namespace + "_rpc_call_duration_seconds":
		s.RPCLatencyNanos += int64(metric.GetHistogram().GetSampleSum() * float64(time.Second))
	case namespace + "_balance_cache_lookups_total":
		if label(metric, "result") == resultHit {
			s.CacheHits += count
		} else {
			s.CacheMisses += count
		}
	case namespace + "_stale_results_discarded_total":
		s.StaleDiscards += count
	case namespace + "_balance_dispatches_total":
		s.Dispatches += count
	case namespace + "_balance_dispatches_dropped_total":
		s.DroppedDispatches += count
	case namespace + "_sends_total":
		s.SendsTotal += count
		if label(metric, "outcome") == outcomeError {
			s.SendErrors += count
		}
	}
}

func label(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// RPCLatencyAvgMs returns the average RPC latency in milliseconds.
// Returns 0 if no calls have been made.
func (s Snapshot) RPCLatencyAvgMs() float64 {
	if s.RPCCallsTotal == 0 {
		return 0
	}
	return float64(s.RPCLatencyNanos) / float64(s.RPCCallsTotal) / 1e6
}

// CacheHitRate returns the cache hit rate as a percentage (0-100).
// Returns 0 if no cache operations have occurred.
func (s Snapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total) * 100
}

// Reset replaces every collector with a fresh one on a new registry.
// Useful for testing.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c = newCollectors()
}
