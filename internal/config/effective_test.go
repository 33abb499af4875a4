package config

import (
	"strings"
	"testing"
)

func TestMarshalEffectiveRedactsSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Host = "localhost"
	cfg.Cloudflare.APIKey = "cf-global-key"
	cfg.Cloudflare.Email = "ops@example.com"
	cfg.Secrets.Vault.Token = "s.vaulttoken"
	cfg.Telemetry.OTLP.Headers = map[string]string{"x-api-key": "otlp-secret"}

	out, err := cfg.MarshalEffective("json")
	if err != nil {
		t.Fatalf("MarshalEffective json: %v", err)
	}
	payload := string(out)
	normalized := strings.NewReplacer("\\u003c", "<", "\\u003e", ">").Replace(payload)
	for _, leak := range []string{"cf-global-key", "s.vaulttoken", "otlp-secret", "x-api-key"} {
		if strings.Contains(normalized, leak) {
			t.Fatalf("expected %q to be redacted in %s", leak, payload)
		}
	}
	if !strings.Contains(normalized, redactedPlaceholder) {
		t.Fatalf("expected placeholder to appear: %s", payload)
	}
	if !strings.Contains(normalized, "ops@example.com") {
		t.Fatalf("email is not secret and should be kept: %s", payload)
	}
	if cfg.Cloudflare.APIKey != "cf-global-key" {
		t.Fatalf("redaction must not mutate the source config")
	}

	if _, err := cfg.MarshalEffective("yaml"); err != nil {
		t.Fatalf("MarshalEffective yaml: %v", err)
	}

	if _, err := cfg.MarshalEffective("invalid"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
