package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slot_cache_lookups_total",
		Help: "Total number of slot cache lookups.",
	}, []string{"cache", "status" /* hit | miss */})
	evictionsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slot_cache_evictions_total",
		Help: "Total number of least recently used entries evicted to make room for a miss.",
	}, []string{"cache"})
	releasesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slot_cache_releases_total",
		Help: "Total number of values handed to the releaser, on eviction or on close.",
	}, []string{"cache"})
	errorsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slot_cache_errors_total",
		Help: "Total number of failed constructor / releaser calls.",
	}, []string{"cache", "kind" /* construct | release */})
	reconstructionsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slot_cache_reconstructions_total",
		Help: "Approximate number of values constructed again for a key that had been constructed before.",
	}, []string{"cache"})
)

// cacheMetrics holds the counters of a single named cache, curried once at construction.
type cacheMetrics struct {
	hits            prometheus.Counter
	misses          prometheus.Counter
	evictions       prometheus.Counter
	releases        prometheus.Counter
	constructErrors prometheus.Counter
	releaseErrors   prometheus.Counter
	reconstructions prometheus.Counter
}

func newCacheMetrics(name string) *cacheMetrics {
	return &cacheMetrics{
		hits:            lookupsMetric.WithLabelValues(name, "hit"),
		misses:          lookupsMetric.WithLabelValues(name, "miss"),
		evictions:       evictionsMetric.WithLabelValues(name),
		releases:        releasesMetric.WithLabelValues(name),
		constructErrors: errorsMetric.WithLabelValues(name, "construct"),
		releaseErrors:   errorsMetric.WithLabelValues(name, "release"),
		reconstructions: reconstructionsMetric.WithLabelValues(name),
	}
}
