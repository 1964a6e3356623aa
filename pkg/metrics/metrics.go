// Package metrics exposes Prometheus counters for panels, ingest and HTTP.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jigsaw-map/pkg/panel"
)

type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	dataPasses        *prometheus.CounterVec
	samples           *prometheus.GaugeVec
	cells             *prometheus.GaugeVec
	regions           *prometheus.GaugeVec
	hoverLookups      *prometheus.CounterVec
	refreshErrors     *prometheus.CounterVec
	ingestMessages    *prometheus.CounterVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

// New builds the collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		dataPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jigsaw_data_passes_total",
			Help: "Data batches drawn per panel.",
		}, []string{"panel"}),
		samples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jigsaw_samples",
			Help: "Samples on the path after the last data pass.",
		}, []string{"panel"}),
		cells: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jigsaw_cells",
			Help: "Grid cells holding at least one sample after the last data pass.",
		}, []string{"panel"}),
		regions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jigsaw_regions",
			Help: "Rectangles drawn after the last data pass.",
		}, []string{"panel"}),
		hoverLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jigsaw_hover_lookups_total",
			Help: "Hover locator lookups by outcome.",
		}, []string{"panel", "hit"}),
		refreshErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jigsaw_refresh_errors_total",
			Help: "Failed panel refreshes.",
		}, []string{"panel"}),
		ingestMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jigsaw_ingest_messages_total",
			Help: "Sample messages received by transport and outcome.",
		}, []string{"transport", "status"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total response cache hits observed.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total response cache misses observed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.dataPasses,
		m.samples,
		m.cells,
		m.regions,
		m.hoverLookups,
		m.refreshErrors,
		m.ingestMessages,
		m.cacheHits,
		m.cacheMisses,
	)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE handlers streaming through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// DataPass implements panel.Observer.
func (m *Metrics) DataPass(panelID string, s panel.Stats) {
	if m == nil {
		return
	}
	m.dataPasses.WithLabelValues(panelID).Inc()
	m.samples.WithLabelValues(panelID).Set(float64(s.Samples))
	m.cells.WithLabelValues(panelID).Set(float64(s.Cells))
	m.regions.WithLabelValues(panelID).Set(float64(s.Regions))
}

// HoverLookup implements panel.Observer.
func (m *Metrics) HoverLookup(panelID string, hit bool) {
	if m == nil {
		return
	}
	m.hoverLookups.WithLabelValues(panelID, strconv.FormatBool(hit)).Inc()
}

func (m *Metrics) RefreshError(panelID string) {
	if m == nil {
		return
	}
	m.refreshErrors.WithLabelValues(panelID).Inc()
}

// IngestMessage counts one transport message; status is "ok" or "error".
func (m *Metrics) IngestMessage(transport, status string) {
	if m == nil {
		return
	}
	m.ingestMessages.WithLabelValues(transport, status).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

var _ panel.Observer = (*Metrics)(nil)
