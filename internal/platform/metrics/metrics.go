package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Methods are
// nil-safe so components can run unmetered in tests.
type Metrics struct {
	ValidationsTotal  *prometheus.CounterVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	CacheEvictions    prometheus.Counter
	QueueDropped      prometheus.Counter
	QueueSuperseded   prometheus.Counter
	RetryAttempts     prometheus.Counter
	ProxyRequests     *prometheus.CounterVec
	ProxyRateLimited  prometheus.Counter
	UpstreamLatencyMs prometheus.Histogram
}

// New creates and registers all metrics. A nil registerer falls back to the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ValidationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldgate_validations_total",
			Help: "Validation verdicts produced, by outcome",
		}, []string{"outcome"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "fieldgate_cache_hits_total",
			Help: "Verdict cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "fieldgate_cache_misses_total",
			Help: "Verdict cache misses",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "fieldgate_cache_evictions_total",
			Help: "Verdict cache entries evicted by expiry or capacity",
		}),
		QueueDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "fieldgate_queue_dropped_total",
			Help: "Validation jobs dropped because the queue was full",
		}),
		QueueSuperseded: factory.NewCounter(prometheus.CounterOpts{
			Name: "fieldgate_queue_superseded_total",
			Help: "Validation jobs cancelled by a newer job for the same value",
		}),
		RetryAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "fieldgate_retry_attempts_total",
			Help: "Remote check attempts beyond the first",
		}),
		ProxyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldgate_proxy_requests_total",
			Help: "Proxy verification requests, by response status",
		}, []string{"status"}),
		ProxyRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "fieldgate_proxy_rate_limited_total",
			Help: "Proxy requests rejected by the per-IP rate gate",
		}),
		UpstreamLatencyMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldgate_upstream_latency_ms",
			Help:    "Latency of upstream lookup calls in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 8000},
		}),
	}
}

func (m *Metrics) IncValidation(outcome string) {
	if m == nil {
		return
	}
	m.ValidationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) AddCacheEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictions.Add(float64(n))
}

func (m *Metrics) IncQueueDropped() {
	if m == nil {
		return
	}
	m.QueueDropped.Inc()
}

func (m *Metrics) IncQueueSuperseded() {
	if m == nil {
		return
	}
	m.QueueSuperseded.Inc()
}

func (m *Metrics) IncRetryAttempt() {
	if m == nil {
		return
	}
	m.RetryAttempts.Inc()
}

func (m *Metrics) IncProxyRequest(status string) {
	if m == nil {
		return
	}
	m.ProxyRequests.WithLabelValues(status).Inc()
}

func (m *Metrics) IncProxyRateLimited() {
	if m == nil {
		return
	}
	m.ProxyRateLimited.Inc()
}

func (m *Metrics) ObserveUpstreamLatencyMs(ms float64) {
	if m == nil {
		return
	}
	m.UpstreamLatencyMs.Observe(ms)
}
