// Package metrics holds the prometheus collectors of the tile server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_cache_hits_total",
		Help: "Cache hits by cache name",
	}, []string{"cache"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_cache_misses_total",
		Help: "Cache misses by cache name",
	}, []string{"cache"})
	ImageLoadFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_image_load_failures_total",
		Help: "Tile images that could not be loaded while stitching",
	})
	NetworkLoadFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_network_load_failures_total",
		Help: "Tile network files that failed to load (missing files excluded)",
	})
	SelectionRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_selection_rejections_total",
		Help: "Rejected multi-tile selections by reason",
	}, []string{"reason"})
	StitchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timeline_stitch_duration_ms",
		Help:    "Image stitch duration in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})
	PrefetchJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_prefetch_jobs_total",
		Help: "Finished prefetch jobs by status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ImageLoadFailuresTotal)
	prometheus.MustRegister(NetworkLoadFailuresTotal)
	prometheus.MustRegister(SelectionRejectionsTotal)
	prometheus.MustRegister(StitchDurationMs)
	prometheus.MustRegister(PrefetchJobsTotal)
}

// Hit records a cache lookup outcome.
func Hit(cache string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	CacheMissesTotal.WithLabelValues(cache).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
