// Package metrics exposes Prometheus collectors for the storefront client.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the storefront collectors.
	Registry = prometheus.NewRegistry()

	remoteInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "remote",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight requests to the storefront API.",
		},
	)

	remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Total number of requests sent to the storefront API.",
		},
		[]string{"method", "path", "status"},
	)

	remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Duration of requests to the storefront API.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	cartSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "syncs_total",
			Help:      "Cart synchronizations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	cartStale = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "stale_snapshots_total",
			Help:      "Server cart snapshots discarded because newer state existed.",
		},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "catalog",
			Name:      "cache_lookups_total",
			Help:      "Catalog cache lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		remoteInFlight,
		remoteRequests,
		remoteDuration,
		cartSyncs,
		cartStale,
		cacheLookups,
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentTransport wraps next so every outgoing request is counted and timed.
func InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		remoteInFlight.Inc()
		defer remoteInFlight.Dec()

		resp, err := next.RoundTrip(req)

		status := "error"
		if err == nil {
			status = strconv.Itoa(resp.StatusCode)
		}
		method := strings.ToUpper(req.Method)
		path := CanonicalPath(req.URL.Path)
		remoteRequests.WithLabelValues(method, path, status).Inc()
		remoteDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		return resp, err
	})
}

// RecordCartSync records the outcome of a cart operation against the server.
func RecordCartSync(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cartSyncs.WithLabelValues(operation, outcome).Inc()
}

// RecordStaleSnapshot counts a discarded server snapshot.
func RecordStaleSnapshot() {
	cartStale.Inc()
}

// RecordCacheLookup counts a catalog cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// CanonicalPath collapses resource ids so label cardinality stays bounded:
// /product/42 becomes /product/:id.
func CanonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] == "product" && len(parts) > 1 {
		return "/product/:id"
	}
	return "/" + strings.Join(parts, "/")
}
