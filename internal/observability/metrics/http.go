package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	askTotal           *prometheus.CounterVec
	askDuration        *prometheus.HistogramVec
	fusedSources       *prometheus.HistogramVec
	retrievalDegraded  *prometheus.CounterVec
	expansionTotal     *prometheus.CounterVec
	classificationHits *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mgr",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mgr",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mgr",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	askTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mgr",
			Subsystem: "pipeline",
			Name:      "ask_total",
			Help:      "Total question requests by outcome.",
		},
		[]string{"service", "outcome"},
	)
	askDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mgr",
			Subsystem: "pipeline",
			Name:      "ask_duration_seconds",
			Help:      "End-to-end question pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	fusedSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mgr",
			Subsystem: "pipeline",
			Name:      "fused_sources",
			Help:      "Distribution of fused source chunks per answered question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	retrievalDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mgr",
			Subsystem: "pipeline",
			Name:      "retrieval_degraded_total",
			Help:      "Questions answered with one retrieval channel down.",
		},
		[]string{"service", "failed_source"},
	)
	expansionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mgr",
			Subsystem: "pipeline",
			Name:      "kg_expansion_total",
			Help:      "Knowledge-graph expansions by strategy and whether context was produced.",
		},
		[]string{"service", "strategy", "outcome"},
	)
	classificationHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mgr",
			Subsystem: "pipeline",
			Name:      "classification_total",
			Help:      "Query classifications by type and complexity.",
		},
		[]string{"service", "query_type", "complexity"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		askTotal,
		askDuration,
		fusedSources,
		retrievalDegraded,
		expansionTotal,
		classificationHits,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		askTotal:           askTotal,
		askDuration:        askDuration,
		fusedSources:       fusedSources,
		retrievalDegraded:  retrievalDegraded,
		expansionTotal:     expansionTotal,
		classificationHits: classificationHits,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordAsk(service, outcome string, sourceCount int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.askTotal.WithLabelValues(service, outcome).Inc()
	m.askDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.fusedSources.WithLabelValues(service).Observe(float64(sourceCount))
}

func (m *HTTPServerMetrics) RecordRetrievalDegraded(service, failedSource string) {
	if failedSource == "" {
		failedSource = "unknown"
	}
	m.retrievalDegraded.WithLabelValues(service, failedSource).Inc()
}

func (m *HTTPServerMetrics) RecordExpansion(service, strategy string, producedContext bool) {
	outcome := "empty"
	if producedContext {
		outcome = "context"
	}
	if strategy == "" {
		strategy = "unknown"
	}
	m.expansionTotal.WithLabelValues(service, strategy, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordClassification(service, queryType, complexity string) {
	if queryType == "" {
		queryType = "unknown"
	}
	if complexity == "" {
		complexity = "unknown"
	}
	m.classificationHits.WithLabelValues(service, queryType, complexity).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
