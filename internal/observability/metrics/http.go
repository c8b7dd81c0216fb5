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

	predictionsTotal *prometheus.CounterVec
	uploadsTotal     *prometheus.CounterVec
	uploadRows       *prometheus.HistogramVec
	exportsTotal     *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loansphere",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loansphere",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loansphere",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	predictionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loansphere",
			Subsystem: "model",
			Name:      "predictions_total",
			Help:      "Predicted applications by source and verdict.",
		},
		[]string{"service", "source", "verdict"},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loansphere",
			Subsystem: "bulk",
			Name:      "uploads_total",
			Help:      "Bulk uploads by detected format and outcome.",
		},
		[]string{"service", "format", "status"},
	)
	uploadRows := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loansphere",
			Subsystem: "bulk",
			Name:      "upload_rows",
			Help:      "Rows per accepted bulk upload.",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
		[]string{"service", "format"},
	)
	exportsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loansphere",
			Subsystem: "bulk",
			Name:      "exports_total",
			Help:      "Served downloads by kind (results, sample) and format.",
		},
		[]string{"service", "kind", "format"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loansphere",
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried outbound operations.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "loansphere",
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		predictionsTotal,
		uploadsTotal,
		uploadRows,
		exportsTotal,
		retriesTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		predictionsTotal: predictionsTotal,
		uploadsTotal:     uploadsTotal,
		uploadRows:       uploadRows,
		exportsTotal:     exportsTotal,
		retriesTotal:     retriesTotal,
		breakerState:     breakerState,
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

// normalizePath folds session ids so label cardinality stays bounded.
func normalizePath(path string) string {
	const uploads = "/v1/bulk/uploads/"
	if !strings.HasPrefix(path, uploads) || len(path) == len(uploads) {
		return path
	}
	rest := path[len(uploads):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return uploads + "{id}" + rest[i:]
	}
	return uploads + "{id}"
}

func (m *HTTPServerMetrics) RecordPredictions(service, source string, approved, rejected int) {
	if approved > 0 {
		m.predictionsTotal.WithLabelValues(service, source, "approved").Add(float64(approved))
	}
	if rejected > 0 {
		m.predictionsTotal.WithLabelValues(service, source, "rejected").Add(float64(rejected))
	}
}

func (m *HTTPServerMetrics) RecordUpload(service, format string, rows int, err error) {
	if format == "" {
		format = "unknown"
	}
	if err != nil {
		m.uploadsTotal.WithLabelValues(service, format, "error").Inc()
		return
	}
	m.uploadsTotal.WithLabelValues(service, format, "success").Inc()
	m.uploadRows.WithLabelValues(service, format).Observe(float64(rows))
}

func (m *HTTPServerMetrics) RecordExport(service, kind, format string) {
	m.exportsTotal.WithLabelValues(service, kind, format).Inc()
}

// Resilience returns an observer for resilience.Executor bound to service.
func (m *HTTPServerMetrics) Resilience(service string) *ResilienceObserver {
	return &ResilienceObserver{service: service, retries: m.retriesTotal, breaker: m.breakerState}
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
