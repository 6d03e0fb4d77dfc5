package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics counts lookups against the in-memory insight caches.
type CacheMetrics struct {
	hits    *prometheus.CounterVec
	misses  *prometheus.CounterVec
	evicted *prometheus.CounterVec
}

// NewCacheMetrics registers the cache collectors. A nil registerer yields a
// no-op recorder.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Cache lookups served from memory.",
	}, []string{"cache"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Cache lookups that went to the remote service.",
	}, []string{"cache"})
	evicted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_expired_purged_total",
		Help:      "Expired cache entries removed by the sweep job.",
	}, []string{"cache"})
	reg.MustRegister(hits, misses, evicted)
	return &CacheMetrics{hits: hits, misses: misses, evicted: evicted}
}

func (m *CacheMetrics) Hit(cache string) {
	if m == nil || m.hits == nil {
		return
	}
	m.hits.WithLabelValues(normalizeLabel(cache)).Inc()
}

func (m *CacheMetrics) Miss(cache string) {
	if m == nil || m.misses == nil {
		return
	}
	m.misses.WithLabelValues(normalizeLabel(cache)).Inc()
}

func (m *CacheMetrics) Purged(cache string, n int) {
	if m == nil || m.evicted == nil || n <= 0 {
		return
	}
	m.evicted.WithLabelValues(normalizeLabel(cache)).Add(float64(n))
}
