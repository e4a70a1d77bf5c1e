package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the gateway's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "splito",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splito",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "splito",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	quotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splito",
			Subsystem: "pricing",
			Name:      "quotes_total",
			Help:      "Price quotes served, by source.",
		},
		[]string{"source"},
	)

	quoteCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splito",
			Subsystem: "pricing",
			Name:      "quote_cache_hits_total",
			Help:      "Quotes served from cache, by the source that produced them.",
		},
		[]string{"source"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splito",
			Subsystem: "settlement",
			Name:      "transitions_total",
			Help:      "Settlement status transitions.",
		},
		[]string{"kind", "status"},
	)

	signingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "splito",
			Subsystem: "wallet",
			Name:      "signing_duration_seconds",
			Help:      "Duration of transaction signing.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"chain", "outcome"},
	)

	confirmationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "splito",
			Subsystem: "settlement",
			Name:      "confirmation_seconds",
			Help:      "Time from submission to a terminal status.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		quotes,
		quoteCacheHits,
		settlements,
		signingDuration,
		confirmationDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Paths are labelled with the mux route template when one matched.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordQuote counts a served quote.
func RecordQuote(source string) {
	if source == "" {
		source = "unknown"
	}
	quotes.WithLabelValues(source).Inc()
}

// RecordQuoteCacheHit counts a quote served from cache.
func RecordQuoteCacheHit(source string) {
	if source == "" {
		source = "unknown"
	}
	quoteCacheHits.WithLabelValues(source).Inc()
}

// RecordSettlement counts a settlement reaching status.
func RecordSettlement(kind, status string) {
	settlements.WithLabelValues(kind, status).Inc()
}

// RecordSigning records a signing attempt.
func RecordSigning(chain string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Microsecond
	}
	outcome := "error"
	if success {
		outcome = "ok"
	}
	signingDuration.WithLabelValues(chain, outcome).Observe(duration.Seconds())
}

// RecordConfirmation records how long a settlement took to settle on chain.
func RecordConfirmation(duration time.Duration) {
	if duration < 0 {
		return
	}
	confirmationDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func canonicalPath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	raw := r.URL.Path
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "v1" || len(parts) == 1 {
		return "/" + parts[0]
	}
	return "/v1/" + parts[1]
}
