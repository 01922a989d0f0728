// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

var (
	recordsReceivedTotal   prometheus.Counter
	recordsDroppedTotal    prometheus.Counter
	recordsWrittenTotal    prometheus.Counter
	writeErrorsTotal       prometheus.Counter
	deletionNoticesTotal   prometheus.Counter
	limitNoticesTotal      prometheus.Counter
	stallWarningsTotal     prometheus.Counter
	filesRotatedTotal      prometheus.Counter
	mediaFetchTotal        *prometheus.CounterVec
	archiveUploadsTotal    *prometheus.CounterVec
	queueDepth             prometheus.Gauge
	reconnectsTotal        prometheus.Counter
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	mediaHostDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		recordsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tweetstream_records_received_total",
			Help: "Posts delivered by the source.",
		})
		recordsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tweetstream_records_dropped_total",
			Help: "Posts dropped because the bounded queue was full.",
		})
		recordsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tweetstream_records_written_total",
			Help: "Posts appended to an hourly output file.",
		})
		writeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tweetstream_write_errors_total",
			Help: "Failed output file writes.",
		})
		deletionNoticesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tweetstream_deletion_notices_total",
			Help: "Deletion and geo-scrub notices received.",
		})
		limitNoticesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tweetstream_limit_notices_total",
			Help: "Rate limitation notices received.",
		})
		stallWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tweetstream_stall_warnings_total",
			Help: "Stall warnings received from the source.",
		})
		filesRotatedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tweetstream_files_rotated_total",
			Help: "Hourly output files closed by rotation.",
		})
		mediaFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tweetstream_media_fetch_total",
			Help: "Media fetch attempts, labeled by result.",
		}, []string{"result"})
		archiveUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tweetstream_archive_uploads_total",
			Help: "Closed hourly files uploaded to the archive, labeled by result.",
		}, []string{"result"})
		queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tweetstream_queue_depth",
			Help: "Records waiting in the bounded queue.",
		})
		reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tweetstream_source_reconnects_total",
			Help: "Stream reconnect attempts.",
		})
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tweetstream_http_requests_total",
			Help: "Admin HTTP requests, labeled by method and code.",
		}, []string{"method", "code"})
		httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tweetstream_http_request_duration_seconds",
			Help:    "Admin HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"})
		mediaHostDelaysSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tweetstream_media_host_delay_seconds",
			Help:    "Time spent waiting on the per-host media rate limiter.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"host"})
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveReceived counts a post delivered by the source.
func ObserveReceived() {
	Init()
	recordsReceivedTotal.Inc()
}

// ObserveDropped counts a post lost to a full queue.
func ObserveDropped() {
	Init()
	recordsDroppedTotal.Inc()
}

// ObserveWritten counts a post persisted to disk.
func ObserveWritten() {
	Init()
	recordsWrittenTotal.Inc()
}

// ObserveWriteError counts a failed write.
func ObserveWriteError() {
	Init()
	writeErrorsTotal.Inc()
}

// ObserveDeletion counts a deletion or scrub notice.
func ObserveDeletion() {
	Init()
	deletionNoticesTotal.Inc()
}

// ObserveLimit counts a rate limitation notice.
func ObserveLimit() {
	Init()
	limitNoticesTotal.Inc()
}

// ObserveStall counts a stall warning.
func ObserveStall() {
	Init()
	stallWarningsTotal.Inc()
}

// ObserveRotation counts an hourly file closed on rotation.
func ObserveRotation() {
	Init()
	filesRotatedTotal.Inc()
}

// ObserveMediaFetch counts a media fetch outcome.
func ObserveMediaFetch(result string) {
	Init()
	mediaFetchTotal.WithLabelValues(result).Inc()
}

// ObserveArchiveUpload counts an archive upload outcome.
func ObserveArchiveUpload(result string) {
	Init()
	archiveUploadsTotal.WithLabelValues(result).Inc()
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) {
	Init()
	queueDepth.Set(float64(n))
}

// ObserveReconnect counts a stream reconnect attempt.
func ObserveReconnect() {
	Init()
	reconnectsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveMediaHostDelay records the duration of a per-host rate limit wait.
func ObserveMediaHostDelay(host string, d time.Duration) {
	Init()
	mediaHostDelaysSeconds.WithLabelValues(host).Observe(d.Seconds())
}
