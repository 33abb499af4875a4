package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type TLSConfig struct {
	CertFile   string
	KeyFile    string
	MinVersion string // e.g. "1.2", "1.3"
	SelfSigned bool   // generate a pair when CertFile/KeyFile are missing
}

// CloudflareConfig holds the upstream endpoint and optional server-side default
// credentials. Request headers always take precedence over these defaults.
type CloudflareConfig struct {
	APIURL    string
	Timeout   time.Duration
	APIKey    string
	Email     string
	AccountID string
	ZoneID    string
}

type TelemetryConfig struct {
	OTLP struct {
		Endpoint    string
		Insecure    bool
		Timeout     time.Duration
		Compression string
		Headers     map[string]string
		SampleRatio float64
	}
}

type VaultTLS struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

type VaultConfig struct {
	Enabled        bool
	Address        string
	Token          string
	TokenFile      string
	Namespace      string
	MountPath      string
	KVVersion      int
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	TLS            VaultTLS
	TLSSkipVerify  bool
}

type Config struct {
	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		TLS             TLSConfig
		MaxRequestBytes int
		Environment     string // development|production
		StaticDir       string // serve the UI from disk instead of the embedded copy
		AuditFile       string
		CORS            struct {
			AllowOrigins string
		}
	}
	Cloudflare CloudflareConfig
	Logging    struct {
		Level  string // debug|info|warn|error
		Format string // text|json
	}
	Telemetry TelemetryConfig
	Secrets   struct {
		Vault VaultConfig
	}
	Resolver struct {
		Address string
		Timeout time.Duration
	}
}

const DefaultAPIURL = "https://api.cloudflare.com/client/v4"

func Load() *Config {
	// .env mirrors the PORT/HOST/API_URL style deployment; missing file is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetConfigType("yaml")
	// Environment variable support. Example: CFPANEL_SERVER_PORT=3001
	v.SetEnvPrefix("CFPANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Bare PORT/HOST/API_URL are honoured for container platforms that inject them.
	_ = v.BindEnv("server.port", "CFPANEL_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.host", "CFPANEL_SERVER_HOST", "HOST")
	_ = v.BindEnv("cloudflare.api_url", "CFPANEL_CLOUDFLARE_API_URL", "API_URL")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.readtimeout", "15s")
	v.SetDefault("server.writetimeout", "30s")
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.min_version", "1.2")
	v.SetDefault("server.tls.self_signed", false)
	v.SetDefault("server.max_request_bytes", 1024*1024)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.audit_file", "audit.log")
	v.SetDefault("server.cors.allow_origins", "*")

	v.SetDefault("cloudflare.api_url", DefaultAPIURL)
	v.SetDefault("cloudflare.timeout", "30s")
	v.SetDefault("cloudflare.api_key", "")
	v.SetDefault("cloudflare.email", "")
	v.SetDefault("cloudflare.account_id", "")
	v.SetDefault("cloudflare.zone_id", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("telemetry.otlp.endpoint", "")
	v.SetDefault("telemetry.otlp.insecure", false)
	v.SetDefault("telemetry.otlp.timeout", "10s")
	v.SetDefault("telemetry.otlp.sample_ratio", 1.0)

	v.SetDefault("secrets.vault.enabled", false)
	v.SetDefault("secrets.vault.mount_path", "secret")
	v.SetDefault("secrets.vault.kv_version", 2)
	v.SetDefault("secrets.vault.cache_ttl", "5m")
	v.SetDefault("secrets.vault.request_timeout", "10s")

	v.SetDefault("resolver.address", "1.1.1.1:53")
	v.SetDefault("resolver.timeout", "3s")

	_ = v.ReadInConfig()

	cfg := &Config{}
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	if cfg.Server.Port == 0 { cfg.Server.Port = 3001 }
	cfg.Server.ReadTimeout = v.GetDuration("server.readtimeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.writetimeout")
	cfg.Server.TLS.CertFile = v.GetString("server.tls.cert_file")
	cfg.Server.TLS.KeyFile = v.GetString("server.tls.key_file")
	cfg.Server.TLS.MinVersion = v.GetString("server.tls.min_version")
	cfg.Server.TLS.SelfSigned = v.GetBool("server.tls.self_signed")
	cfg.Server.MaxRequestBytes = v.GetInt("server.max_request_bytes")
	cfg.Server.Environment = v.GetString("server.environment")
	cfg.Server.StaticDir = v.GetString("server.static_dir")
	cfg.Server.AuditFile = v.GetString("server.audit_file")
	cfg.Server.CORS.AllowOrigins = v.GetString("server.cors.allow_origins")

	cfg.Cloudflare.APIURL = strings.TrimSuffix(v.GetString("cloudflare.api_url"), "/")
	cfg.Cloudflare.Timeout = v.GetDuration("cloudflare.timeout")
	cfg.Cloudflare.APIKey = v.GetString("cloudflare.api_key")
	cfg.Cloudflare.Email = v.GetString("cloudflare.email")
	cfg.Cloudflare.AccountID = v.GetString("cloudflare.account_id")
	cfg.Cloudflare.ZoneID = v.GetString("cloudflare.zone_id")

	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")

	cfg.Telemetry.OTLP.Endpoint = v.GetString("telemetry.otlp.endpoint")
	cfg.Telemetry.OTLP.Insecure = v.GetBool("telemetry.otlp.insecure")
	cfg.Telemetry.OTLP.Timeout = v.GetDuration("telemetry.otlp.timeout")
	cfg.Telemetry.OTLP.Compression = v.GetString("telemetry.otlp.compression")
	cfg.Telemetry.OTLP.Headers = v.GetStringMapString("telemetry.otlp.headers")
	cfg.Telemetry.OTLP.SampleRatio = v.GetFloat64("telemetry.otlp.sample_ratio")

	vc := &cfg.Secrets.Vault
	vc.Enabled = v.GetBool("secrets.vault.enabled")
	vc.Address = v.GetString("secrets.vault.address")
	vc.Token = v.GetString("secrets.vault.token")
	vc.TokenFile = v.GetString("secrets.vault.token_file")
	vc.Namespace = v.GetString("secrets.vault.namespace")
	vc.MountPath = v.GetString("secrets.vault.mount_path")
	vc.KVVersion = v.GetInt("secrets.vault.kv_version")
	vc.CacheTTL = v.GetDuration("secrets.vault.cache_ttl")
	vc.RequestTimeout = v.GetDuration("secrets.vault.request_timeout")
	vc.TLS.CAFile = v.GetString("secrets.vault.tls.ca_file")
	vc.TLS.CertFile = v.GetString("secrets.vault.tls.cert_file")
	vc.TLS.KeyFile = v.GetString("secrets.vault.tls.key_file")
	vc.TLSSkipVerify = v.GetBool("secrets.vault.tls_skip_verify")

	cfg.Resolver.Address = v.GetString("resolver.address")
	cfg.Resolver.Timeout = v.GetDuration("resolver.timeout")
	return cfg
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) TLSConfigured() bool {
	return c.Server.TLS.CertFile != "" && c.Server.TLS.KeyFile != ""
}

// Production reports whether error details should be hidden from API callers.
func (c *Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Server.Environment), "production")
}

// Validate performs static validation and returns error and warning messages (empty if valid).
func (c *Config) Validate() (errors []string, warnings []string) {
	if c.Server.Port <= 0 || c.Server.Port > 65535 { errors = append(errors, "server.port must be 1-65535") }
	if c.Server.MaxRequestBytes <= 0 || c.Server.MaxRequestBytes > 100*1024*1024 { errors = append(errors, "server.max_request_bytes out of range (1 .. 104857600)") }
	switch c.Server.TLS.MinVersion {
	case "", "1.2", "1.3":
	default: errors = append(errors, "server.tls.min_version must be 1.2 or 1.3")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default: errors = append(errors, "logging.level must be debug|info|warn|error")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" { errors = append(errors, "logging.format must be text|json") }
	if u, err := url.Parse(c.Cloudflare.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, "cloudflare.api_url must be an absolute URL")
	}
	if c.Secrets.Vault.Enabled && c.Secrets.Vault.Token == "" && c.Secrets.Vault.TokenFile == "" {
		errors = append(errors, "secrets.vault.token or secrets.vault.token_file required when vault enabled")
	}
	if kv := c.Secrets.Vault.KVVersion; c.Secrets.Vault.Enabled && kv != 1 && kv != 2 {
		errors = append(errors, "secrets.vault.kv_version must be 1 or 2")
	}
	if c.Telemetry.OTLP.SampleRatio < 0 || c.Telemetry.OTLP.SampleRatio > 1 { errors = append(errors, "telemetry.otlp.sample_ratio must be within 0..1") }
	// warnings (do not block startup)
	if c.wildcardOrigins() {
		if c.Cloudflare.APIKey != "" {
			// requests without X-CF-API-KEY fall back to the server key
			errors = append(errors, "server.cors.allow_origins must list explicit origins when cloudflare.api_key is set")
		} else {
			warnings = append(warnings, "server.cors.allow_origins is * - any site may call the proxy with user credentials")
		}
	}
	if c.Cloudflare.APIKey != "" && c.Cloudflare.ZoneID == "" && c.Cloudflare.AccountID == "" {
		warnings = append(warnings, "cloudflare.api_key set without zone_id or account_id - defaults are incomplete")
	}
	if c.Cloudflare.Timeout <= 0 { warnings = append(warnings, "cloudflare.timeout not set - upstream calls only bounded by request context") }
	return
}

func (c *Config) wildcardOrigins() bool {
	for _, o := range strings.Split(c.Server.CORS.AllowOrigins, ",") {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
