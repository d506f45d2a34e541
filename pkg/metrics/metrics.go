package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics counts per-domain cache activity.
type CacheMetrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
}

// NewCacheMetrics registers the cache counters on the provided registerer.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache hits per domain.",
	}, []string{"domain"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache misses (including expirations) per domain.",
	}, []string{"domain"})
	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "LRU evictions per domain.",
	}, []string{"domain"})
	reg.MustRegister(hits, misses, evictions)
	return &CacheMetrics{hits: hits, misses: misses, evictions: evictions}
}

// IncHit increments the hit counter for the named domain.
func (c *CacheMetrics) IncHit(domain string) {
	if c == nil || c.hits == nil {
		return
	}
	c.hits.WithLabelValues(normalizeLabel(domain)).Inc()
}

// IncMiss increments the miss counter for the named domain.
func (c *CacheMetrics) IncMiss(domain string) {
	if c == nil || c.misses == nil {
		return
	}
	c.misses.WithLabelValues(normalizeLabel(domain)).Inc()
}

// IncEviction increments the eviction counter for the named domain.
func (c *CacheMetrics) IncEviction(domain string) {
	if c == nil || c.evictions == nil {
		return
	}
	c.evictions.WithLabelValues(normalizeLabel(domain)).Inc()
}

// PlatformMetrics records upstream platform call outcomes.
type PlatformMetrics struct {
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPlatformMetrics registers the platform counters on the provided registerer.
func NewPlatformMetrics(reg prometheus.Registerer) *PlatformMetrics {
	if reg == nil {
		return &PlatformMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platform_requests_total",
		Help: "Upstream platform API calls.",
	}, []string{"platform", "operation"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platform_failures_total",
		Help: "Failed upstream platform API calls.",
	}, []string{"platform", "operation"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platform_request_duration_seconds",
		Help:    "Duration of upstream platform API calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform", "operation"})
	reg.MustRegister(requests, failures, duration)
	return &PlatformMetrics{requests: requests, failures: failures, duration: duration}
}

// ObserveCall records one upstream call outcome.
func (p *PlatformMetrics) ObserveCall(platform, operation string, elapsed time.Duration, err error) {
	if p == nil || p.requests == nil {
		return
	}
	platform = normalizeLabel(platform)
	operation = normalizeLabel(operation)
	p.requests.WithLabelValues(platform, operation).Inc()
	p.duration.WithLabelValues(platform, operation).Observe(elapsed.Seconds())
	if err != nil {
		p.failures.WithLabelValues(platform, operation).Inc()
	}
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return strings.ReplaceAll(value, " ", "_")
}
