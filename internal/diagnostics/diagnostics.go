package diagnostics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"cfpanel/internal/config"
	"cfpanel/internal/version"
)

// Report is printed by `cfpanel diagnostics` and attached to bug reports.
type Report struct {
	Version     version.Info    `json:"version"`
	Runtime     RuntimeInfo     `json:"runtime"`
	Environment EnvironmentInfo `json:"environment"`
	Config      ConfigSummary   `json:"config"`
	Timestamp   string          `json:"timestamp"`
}

type RuntimeInfo struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	AllocBytes   uint64 `json:"alloc_bytes"`
	SysBytes     uint64 `json:"sys_bytes"`
}

type EnvironmentInfo struct {
	Hostname string            `json:"hostname"`
	WorkDir  string            `json:"work_dir"`
	EnvVars  map[string]string `json:"env_vars,omitempty"`
}

// ConfigSummary reports which credentials are configured, never their values.
type ConfigSummary struct {
	Listen           string `json:"listen"`
	TLSEnabled       bool   `json:"tls_enabled"`
	Environment      string `json:"environment"`
	LogLevel         string `json:"log_level"`
	APIURL           string `json:"api_url"`
	DefaultAPIKey    bool   `json:"default_api_key"`
	DefaultEmail     bool   `json:"default_email"`
	DefaultZoneID    bool   `json:"default_zone_id"`
	DefaultAccountID bool   `json:"default_account_id"`
	VaultEnabled     bool   `json:"vault_enabled"`
	TracingEnabled   bool   `json:"tracing_enabled"`
	Resolver         string `json:"resolver"`
}

func Collect(cfg *config.Config, includeEnv bool) Report {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r := Report{
		Version: version.Get(),
		Runtime: RuntimeInfo{
			OS:           runtime.GOOS,
			Arch:         runtime.GOARCH,
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
			AllocBytes:   m.Alloc,
			SysBytes:     m.Sys,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	r.Environment.Hostname, _ = os.Hostname()
	r.Environment.WorkDir, _ = os.Getwd()
	if includeEnv {
		r.Environment.EnvVars = safeEnv()
	}
	if cfg != nil {
		r.Config = ConfigSummary{
			Listen:           cfg.HTTPAddr(),
			TLSEnabled:       cfg.TLSConfigured() || cfg.Server.TLS.SelfSigned,
			Environment:      cfg.Server.Environment,
			LogLevel:         cfg.Logging.Level,
			APIURL:           cfg.Cloudflare.APIURL,
			DefaultAPIKey:    cfg.Cloudflare.APIKey != "",
			DefaultEmail:     cfg.Cloudflare.Email != "",
			DefaultZoneID:    cfg.Cloudflare.ZoneID != "",
			DefaultAccountID: cfg.Cloudflare.AccountID != "",
			VaultEnabled:     cfg.Secrets.Vault.Enabled,
			TracingEnabled:   cfg.Telemetry.OTLP.Endpoint != "",
			Resolver:         cfg.Resolver.Address,
		}
	}
	return r
}

func safeEnv() map[string]string {
	out := make(map[string]string)
	for _, key := range []string{"HOSTNAME", "PATH", "USER", "LANG", "TZ", "GOMAXPROCS", "GOMEMLIMIT", "PORT", "HOST", "API_URL"} {
		if val := os.Getenv(key); val != "" {
			out[key] = val
		}
	}
	return out
}

// Print writes the report as json or text.
func Print(w io.Writer, r Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "text", "":
		fmt.Fprintf(w, "cfpanel diagnostics\n===================\n\n")
		fmt.Fprintf(w, "Version:     %s (commit %s, built %s, %s)\n", r.Version.Version, r.Version.Commit, r.Version.Date, r.Version.GoVersion)
		fmt.Fprintf(w, "Runtime:     %s/%s cpus=%d goroutines=%d alloc=%dMB\n", r.Runtime.OS, r.Runtime.Arch, r.Runtime.NumCPU, r.Runtime.NumGoroutine, r.Runtime.AllocBytes/1024/1024)
		fmt.Fprintf(w, "Host:        %s (%s)\n", r.Environment.Hostname, r.Environment.WorkDir)
		for k, v := range r.Environment.EnvVars {
			fmt.Fprintf(w, "  %s=%s\n", k, v)
		}
		c := r.Config
		fmt.Fprintf(w, "\nListen:      %s tls=%v env=%s log=%s\n", c.Listen, c.TLSEnabled, c.Environment, c.LogLevel)
		fmt.Fprintf(w, "Cloudflare:  %s\n", c.APIURL)
		fmt.Fprintf(w, "Defaults:    api_key=%v email=%v zone_id=%v account_id=%v\n", c.DefaultAPIKey, c.DefaultEmail, c.DefaultZoneID, c.DefaultAccountID)
		fmt.Fprintf(w, "Vault:       %v\nTracing:     %v\nResolver:    %s\n\n", c.VaultEnabled, c.TracingEnabled, c.Resolver)
		fmt.Fprintf(w, "Timestamp: %s\n", r.Timestamp)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'json' or 'text')", format)
	}
}
