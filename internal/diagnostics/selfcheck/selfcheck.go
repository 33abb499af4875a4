package selfcheck

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cfpanel/internal/config"
)

// Dependencies surfaces optional clients required for checks.
type Dependencies struct {
	Vault interface{ HealthCheck(context.Context) error }
	// Dial overrides the TCP dialer used for the API reachability probe.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Result separates failures that must stop startup from advisory findings.
type Result struct {
	Warnings []string
}

// Run executes startup dependency validation. Vault and the audit directory are
// hard requirements when configured; an unreachable Cloudflare API only warns,
// since credentials and connectivity are per request.
func Run(ctx context.Context, cfg *config.Config, deps Dependencies) (Result, error) {
	var res Result
	if cfg == nil {
		return res, fmt.Errorf("nil config")
	}
	if cfg.Secrets.Vault.Enabled {
		if deps.Vault == nil {
			return res, fmt.Errorf("vault enabled but no client available for health check")
		}
		if err := deps.Vault.HealthCheck(ctx); err != nil {
			return res, fmt.Errorf("vault health check failed: %w", err)
		}
	}
	if cfg.Server.AuditFile != "" {
		if err := ensureWritableDir(filepath.Dir(cfg.Server.AuditFile)); err != nil {
			return res, err
		}
	}
	if err := checkAPIReachable(ctx, cfg.Cloudflare.APIURL, deps.Dial); err != nil {
		res.Warnings = append(res.Warnings, err.Error())
	}
	return res, nil
}

func checkAPIReachable(ctx context.Context, apiURL string, dial func(context.Context, string, string) (net.Conn, error)) error {
	u, err := url.Parse(strings.TrimSpace(apiURL))
	if err != nil || u.Host == "" {
		return fmt.Errorf("cloudflare api url %q is not valid", apiURL)
	}
	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	if dial == nil {
		d := net.Dialer{Timeout: 5 * time.Second}
		dial = d.DialContext
	}
	conn, err := dial(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("cloudflare api connectivity (%s) failed: %w", host, err)
	}
	_ = conn.Close()
	return nil
}

func ensureWritableDir(dir string) error {
	path := strings.TrimSpace(dir)
	if path == "" {
		path = "."
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create audit directory %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(path, ".probe-*")
	if err != nil {
		return fmt.Errorf("write probe file in %s: %w", path, err)
	}
	tmp.Close()
	os.Remove(tmp.Name())
	return nil
}
