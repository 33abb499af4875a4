package vault

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"cfpanel/internal/config"

	vaultapi "github.com/hashicorp/vault/api"
)

// Client reads KV secrets for vault:// references and caches whole secrets for CacheTTL.
type Client struct {
	cfg   config.VaultConfig
	api   *vaultapi.Client
	mu    sync.RWMutex
	cache map[string]entry
}

type entry struct {
	data    map[string]any
	expires time.Time
}

// Ref is a parsed vault://path#field reference. Field defaults to "value".
type Ref struct {
	Path  string
	Field string
}

// NewClient returns nil, nil when Vault is disabled.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	conf := vaultapi.DefaultConfig()
	if cfg.Address != "" {
		conf.Address = cfg.Address
	}
	if cfg.RequestTimeout > 0 {
		conf.Timeout = cfg.RequestTimeout
	}
	if err := conf.ConfigureTLS(&vaultapi.TLSConfig{
		CACert:     cfg.TLS.CAFile,
		ClientCert: cfg.TLS.CertFile,
		ClientKey:  cfg.TLS.KeyFile,
		Insecure:   cfg.TLSSkipVerify,
	}); err != nil {
		return nil, fmt.Errorf("configure vault tls: %w", err)
	}
	api, err := vaultapi.NewClient(conf)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}
	token, err := loadToken(cfg)
	if err != nil {
		return nil, err
	}
	api.SetToken(token)
	return &Client{cfg: cfg, api: api, cache: make(map[string]entry)}, nil
}

func loadToken(cfg config.VaultConfig) (string, error) {
	if t := strings.TrimSpace(cfg.Token); t != "" {
		return t, nil
	}
	if cfg.TokenFile == "" {
		return "", fmt.Errorf("vault token required when vault enabled")
	}
	data, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return "", fmt.Errorf("read vault token file: %w", err)
	}
	if t := strings.TrimSpace(string(data)); t != "" {
		return t, nil
	}
	return "", fmt.Errorf("vault token file %s is empty", cfg.TokenFile)
}

// Resolve implements secrets.Resolver. A nil client returns ref unchanged.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	if c == nil {
		return ref, nil
	}
	r, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	data, err := c.read(ctx, c.secretPath(r.Path))
	if err != nil {
		return "", err
	}
	v, ok := data[r.Field]
	if !ok {
		return "", fmt.Errorf("vault field %s missing at %s", r.Field, r.Path)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	if c == nil {
		return nil
	}
	_, err := c.api.Sys().HealthWithContext(ctx)
	return err
}

func (c *Client) read(ctx context.Context, full string) (map[string]any, error) {
	now := time.Now()
	c.mu.RLock()
	e, ok := c.cache[full]
	c.mu.RUnlock()
	if ok && now.Before(e.expires) {
		return maps.Clone(e.data), nil
	}

	secret, err := c.api.Logical().ReadWithContext(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", full, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("vault secret %s not found", full)
	}
	data := secret.Data
	if c.cfg.KVVersion == 2 {
		if nested, ok := data["data"].(map[string]any); ok {
			data = nested
		}
	}
	if c.cfg.CacheTTL > 0 {
		c.mu.Lock()
		c.cache[full] = entry{data: data, expires: now.Add(c.cfg.CacheTTL)}
		c.mu.Unlock()
	}
	return maps.Clone(data), nil
}

// secretPath prefixes the mount (and data/ for KV v2) unless p already carries it.
func (c *Client) secretPath(p string) string {
	return secretPath(strings.Trim(c.cfg.MountPath, "/"), c.cfg.KVVersion, p)
}

func secretPath(mount string, kv int, p string) string {
	p = strings.TrimLeft(p, "/")
	switch {
	case mount == "":
		return p
	case p == "":
		return mount
	case p == mount || strings.HasPrefix(p, mount+"/"):
		return p
	case kv == 2:
		return path.Join(mount, "data", p)
	default:
		return path.Join(mount, p)
	}
}

func ParseRef(ref string) (Ref, error) {
	raw := strings.TrimSpace(ref)
	if !strings.HasPrefix(raw, "vault://") {
		return Ref{}, fmt.Errorf("invalid vault reference %q", raw)
	}
	rest := strings.TrimPrefix(raw, "vault://")
	r := Ref{Path: rest, Field: "value"}
	if p, f, ok := strings.Cut(rest, "#"); ok {
		r.Path = p
		if f != "" {
			r.Field = f
		}
	}
	r.Path = strings.TrimLeft(r.Path, "/")
	if r.Path == "" {
		return Ref{}, fmt.Errorf("vault reference %q missing path", ref)
	}
	return r, nil
}
