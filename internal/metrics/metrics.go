package metrics

import (
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cfpanel/internal/version"
)

var (
	// HTTP Metrics
	HTTPLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cfpanel",
		Subsystem: "http",
		Name:      "request_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "path", "status"})

	HTTPInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cfpanel",
		Subsystem: "http",
		Name:      "inflight",
		Help:      "In-flight HTTP requests.",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cfpanel",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})

	// Cloudflare upstream
	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cfpanel",
		Name:      "upstream_requests_total",
		Help:      "Requests sent to the Cloudflare API.",
	}, []string{"method", "resource", "status"})

	UpstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cfpanel",
		Name:      "upstream_request_seconds",
		Help:      "Cloudflare API latency.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "resource"})

	// DNS/tunnel consistency
	SyncOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cfpanel",
		Subsystem: "sync",
		Name:      "operations_total",
		Help:      "Consistency operations by kind and outcome.",
	}, []string{"operation", "outcome"})

	OrphanedRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cfpanel",
		Subsystem: "sync",
		Name:      "orphaned_dns_records",
		Help:      "Orphaned tunnel CNAME records found by the last scan.",
	})

	OrphanedHostnames = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cfpanel",
		Subsystem: "sync",
		Name:      "orphaned_ingress_hostnames",
		Help:      "Ingress hostnames without a DNS record found by the last scan.",
	})

	CleanedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cfpanel",
		Subsystem: "sync",
		Name:      "cleaned_dns_records_total",
		Help:      "Orphaned DNS records deleted.",
	})

	// System Metrics
	SystemInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cfpanel",
		Subsystem: "system",
		Name:      "info",
		Help:      "System information.",
	}, []string{"version", "commit", "build_date", "go_version"})

	SystemUptime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cfpanel",
		Subsystem: "system",
		Name:      "uptime_seconds",
		Help:      "System uptime in seconds.",
	})
)

var (
	registry  *prometheus.Registry
	regOnce   sync.Once
	startTime time.Time
)

// Init creates the private registry. Safe to call more than once.
func Init() {
	regOnce.Do(func() {
		startTime = time.Now()
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		registry.MustRegister(
			HTTPLatency, HTTPInFlight, HTTPRequests,
			UpstreamRequests, UpstreamLatency,
			SyncOperations, OrphanedRecords, OrphanedHostnames, CleanedRecords,
			SystemInfo, SystemUptime,
		)
		SystemInfo.WithLabelValues(version.Version, version.Commit, version.Date, runtime.Version()).Set(1)
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				SystemUptime.Set(time.Since(startTime).Seconds())
			}
		}()
	})
}

func Registry() *prometheus.Registry {
	Init()
	return registry
}

// RecordHTTPRequest records an HTTP request served by the panel.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	HTTPRequests.WithLabelValues(method, path, statusStr).Inc()
	HTTPLatency.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// RecordUpstream records one Cloudflare API call. status 0 means the request never got a response.
func RecordUpstream(method, resource string, status int, duration time.Duration) {
	UpstreamRequests.WithLabelValues(method, resource, strconv.Itoa(status)).Inc()
	UpstreamLatency.WithLabelValues(method, resource).Observe(duration.Seconds())
}

func RecordSync(operation, outcome string) {
	SyncOperations.WithLabelValues(operation, outcome).Inc()
}
