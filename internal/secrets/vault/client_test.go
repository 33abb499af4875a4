package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cfpanel/internal/config"
)

func TestParseRef(t *testing.T) {
	r, err := ParseRef("vault://cloudflare/prod#api_key")
	if err != nil || r.Path != "cloudflare/prod" || r.Field != "api_key" {
		t.Fatalf("unexpected %+v %v", r, err)
	}
	r, err = ParseRef("vault:///cloudflare")
	if err != nil || r.Field != "value" || r.Path != "cloudflare" {
		t.Fatalf("default field: %+v %v", r, err)
	}
	if _, err := ParseRef("vault://#x"); err == nil {
		t.Fatalf("expected missing path error")
	}
	if _, err := ParseRef("plain"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestSecretPath(t *testing.T) {
	cases := []struct {
		mount string
		kv    int
		in    string
		want  string
	}{
		{"secret", 2, "cloudflare", "secret/data/cloudflare"},
		{"secret", 1, "cloudflare", "secret/cloudflare"},
		{"secret", 2, "secret/data/cloudflare", "secret/data/cloudflare"},
		{"", 2, "/kv/cf", "kv/cf"},
	}
	for _, c := range cases {
		if got := secretPath(c.mount, c.kv, c.in); got != c.want {
			t.Fatalf("secretPath(%q,%d,%q)=%q want %q", c.mount, c.kv, c.in, got, c.want)
		}
	}
}

func TestResolveCachesKV2(t *testing.T) {
	var reads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/cloudflare" {
			http.NotFound(w, r)
			return
		}
		reads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"data": map[string]any{"api_key": "k-123", "email": "ops@example.com"}},
		})
	}))
	defer srv.Close()

	c, err := NewClient(config.VaultConfig{Enabled: true, Address: srv.URL, Token: "t", MountPath: "secret", KVVersion: 2, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	got, err := c.Resolve(context.Background(), "vault://cloudflare#api_key")
	if err != nil || got != "k-123" {
		t.Fatalf("Resolve: %q %v", got, err)
	}
	got, err = c.Resolve(context.Background(), "vault://cloudflare#email")
	if err != nil || got != "ops@example.com" {
		t.Fatalf("Resolve email: %q %v", got, err)
	}
	if reads.Load() != 1 {
		t.Fatalf("expected cached second read, got %d reads", reads.Load())
	}
	if _, err := c.Resolve(context.Background(), "vault://cloudflare#missing"); err == nil {
		t.Fatalf("expected missing field error")
	}
}

func TestDisabledClient(t *testing.T) {
	c, err := NewClient(config.VaultConfig{})
	if err != nil || c != nil {
		t.Fatalf("expected nil client: %v", err)
	}
	if v, _ := c.Resolve(context.Background(), "vault://x"); v != "vault://x" {
		t.Fatalf("nil client should pass through")
	}
	if _, err := NewClient(config.VaultConfig{Enabled: true}); err == nil {
		t.Fatalf("expected token error")
	}
}
