package cfapi

import (
	"net/http"
	"strings"
	"time"

	"cfpanel/internal/metrics"
	"cfpanel/internal/platform/logger"
)

// instrumented records metrics and a log line for every Cloudflare call,
// whichever client issued it.
type instrumented struct {
	base http.RoundTripper
}

func (t instrumented) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger.Slog().Debug("cloudflare request", "method", req.Method, "url", req.URL.Redacted())
	resp, err := t.base.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	metrics.RecordUpstream(req.Method, resourceOf(req.URL.Path), status, time.Since(start))
	if err != nil {
		logger.Slog().Warn("cloudflare request failed", "method", req.Method, "url", req.URL.Redacted(), "error", err)
	}
	return resp, err
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: instrumented{base: http.DefaultTransport},
	}
}

// resourceOf reduces an upstream path to a low-cardinality label.
func resourceOf(path string) string {
	switch {
	case strings.Contains(path, "/configurations"):
		return "tunnel_configurations"
	case strings.Contains(path, "/dns_records"):
		return "dns_records"
	case strings.Contains(path, "/cfd_tunnel"), strings.Contains(path, "/tunnels"):
		return "tunnels"
	}
	return "other"
}
