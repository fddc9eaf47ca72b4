package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sample status label values.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

var (
	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgeo_samples_total",
			Help: "Total number of track samples by outcome.",
		},
		[]string{"status"},
	)

	lookupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgeo_lookup_failures_total",
			Help: "Earth-orientation, leap-second and element-set lookup failures.",
		},
		[]string{"table", "kind"},
	)

	sampleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "issgeo_sample_duration_seconds",
			Help:    "Time to resolve, propagate and convert one sample.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
	)

	tleDatasetAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "issgeo_tle_dataset_age_seconds",
			Help: "Age of the loaded element-set history in seconds.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgeo_stream_connections_total",
			Help: "Position stream connects and disconnects.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "issgeo_streams_active",
			Help: "Open position streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "issgeo_stream_messages_total",
			Help: "Data messages sent on position streams.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "issgeo_stream_bytes_total",
			Help: "Bytes written to position streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgeo_stream_errors_total",
			Help: "Position stream errors by reason.",
		},
		[]string{"reason"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgeo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "issgeo_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(samplesTotal)
	prometheus.MustRegister(lookupFailuresTotal)
	prometheus.MustRegister(sampleDurationSeconds)
	prometheus.MustRegister(tleDatasetAge)
	prometheus.MustRegister(streamConnectionsTotal)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamBytesTotal)
	prometheus.MustRegister(streamErrorsTotal)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSample counts one sample outcome and observes its duration.
func RecordSample(status string, d time.Duration) {
	samplesTotal.WithLabelValues(status).Inc()
	sampleDurationSeconds.Observe(d.Seconds())
}

// RecordLookupFailure counts a failed table lookup. table is "eop",
// "leap_seconds" or "tle"; kind is the error kind.
func RecordLookupFailure(table, kind string) {
	lookupFailuresTotal.WithLabelValues(table, kind).Inc()
}

// SetTLEDatasetAge sets the element-set history age gauge.
func SetTLEDatasetAge(seconds float64) {
	tleDatasetAge.Set(seconds)
}

// IncStreamConnections counts a stream event, "connect" or "disconnect".
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

func IncStreamsActive() { streamsActive.Inc() }

func DecStreamsActive() { streamsActive.Dec() }

func IncStreamMessages() { streamMessagesTotal.Inc() }

func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts a stream error. reason is one of "rate_limit",
// "send_error" or "sample_error".
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// knownRoutes are the exact paths served by the API.
var knownRoutes = map[string]bool{
	"/healthz":         true,
	"/readyz":          true,
	"/metrics":         true,
	"/api/v1/position": true,
	"/api/v1/track":    true,
	"/api/v1/tables":   true,
	"/api/v1/stream":   true,
}

// normalizeRoute maps a request path to a bounded label set.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/elements/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/elements/{norad_id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so streams work behind the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
