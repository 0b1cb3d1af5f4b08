// Package metrics provides Prometheus metrics for the promptfunc server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfunc_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptfunc_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Blob read metrics
	blobReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfunc_blob_reads_total",
			Help: "Total blob reads by mode and result",
		},
		[]string{"mode", "result"},
	)

	blobBytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptfunc_blob_bytes_read_total",
			Help: "Total bytes buffered from blob stores",
		},
	)

	blobOversizeWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptfunc_blob_oversize_warnings_total",
			Help: "Blobs whose reported length exceeded the size ceiling before download",
		},
	)

	// Storage backend metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptfunc_storage_operation_duration_seconds",
			Help:    "Storage backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfunc_storage_operations_total",
			Help: "Total storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// Completion API metrics
	completionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptfunc_completion_duration_seconds",
			Help:    "Chat completion call duration in seconds",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)

	completionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfunc_completions_total",
			Help: "Total chat completion calls",
		},
		[]string{"provider", "status"},
	)

	// Queue metrics
	queuePublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptfunc_queue_publishes_total",
			Help: "Total messages published to the results queue",
		},
		[]string{"backend", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBlobRead records the outcome of a blob read. result is "ok" or an error kind.
func RecordBlobRead(mode, result string, bytes int64) {
	blobReadsTotal.WithLabelValues(mode, result).Inc()
	if bytes > 0 {
		blobBytesRead.Add(float64(bytes))
	}
}

// RecordOversizeWarning counts a reported length above the size ceiling.
func RecordOversizeWarning() {
	blobOversizeWarnings.Inc()
}

// RecordStorageOperation records a storage backend operation.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

// RecordCompletion records a chat completion call.
func RecordCompletion(provider string, duration time.Duration, success bool) {
	completionDuration.WithLabelValues(provider).Observe(duration.Seconds())
	completionsTotal.WithLabelValues(provider, statusLabel(success)).Inc()
}

// RecordQueuePublish records a publish to the results queue.
func RecordQueuePublish(backend string, success bool) {
	queuePublishesTotal.WithLabelValues(backend, statusLabel(success)).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
