/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Exposes operational counters for the HTTP surface, the aggregate
  cache, and consolidation outcomes on /metrics.

METRICS:
  studio_http_requests_total{method,route,status}
  studio_http_request_duration_seconds{route}
  studio_cache_hits_total / misses / evictions / expirations / timeouts
  studio_cache_entries / studio_cache_memory_bytes
  studio_consolidation_records_total{kind,outcome}

  Cache series are read straight off cache.Stats() at scrape time
  (GaugeFunc), so the cache itself carries no prometheus dependency.

SEE ALSO:
  - server.go: Middleware wiring and the /metrics route
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quartertone/studio-engine/cache"
	"github.com/quartertone/studio-engine/consolidate"
)

// Metrics owns a private registry so tests can build handlers without
// colliding on the global one.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	records      *prometheus.CounterVec
}

// NewMetrics registers all series. c feeds the cache gauges; it must
// outlive the metrics.
func NewMetrics(c *cache.Cache) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studio_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_consolidation_records_total",
			Help: "Consolidated legacy records by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration, m.records)

	counter := func(name, help string, get func(cache.Stats) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return get(c.Stats()) })
	}
	reg.MustRegister(
		counter("studio_cache_hits_total", "Cache hits.",
			func(s cache.Stats) float64 { return float64(s.Hits) }),
		counter("studio_cache_misses_total", "Cache misses (including expirations).",
			func(s cache.Stats) float64 { return float64(s.Misses) }),
		counter("studio_cache_evictions_total", "LRU evictions.",
			func(s cache.Stats) float64 { return float64(s.Evictions) }),
		counter("studio_cache_expirations_total", "TTL expirations.",
			func(s cache.Stats) float64 { return float64(s.Expirations) }),
		counter("studio_cache_timeouts_total", "Compute timeouts.",
			func(s cache.Stats) float64 { return float64(s.Timeouts) }),
		counter("studio_cache_entries", "Live cache entries.",
			func(s cache.Stats) float64 { return float64(s.Entries) }),
		counter("studio_cache_memory_bytes", "Estimated cache memory.",
			func(s cache.Stats) float64 { return float64(s.MemoryBytes) }),
	)
	return m
}

// Handler serves the registry on /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts and times every routed request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveReport books a finished run's per-kind outcome counts.
func (m *Metrics) ObserveReport(r *consolidate.Report) {
	if r == nil {
		return
	}
	for kind, kr := range r.Kinds {
		m.records.WithLabelValues(string(kind), string(consolidate.Migrated)).Add(float64(kr.Migrated))
		m.records.WithLabelValues(string(kind), "errors").Add(float64(kr.Errors))
	}
}
