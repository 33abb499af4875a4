package diagnostics

import (
	"bytes"
	"strings"
	"testing"

	"cfpanel/internal/config"
)

func TestCollectNeverIncludesSecrets(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 3001
	cfg.Cloudflare.APIKey = "super-secret-key"
	cfg.Cloudflare.ZoneID = "zone"
	r := Collect(cfg, false)
	if !r.Config.DefaultAPIKey || !r.Config.DefaultZoneID || r.Config.DefaultAccountID {
		t.Fatalf("unexpected summary %+v", r.Config)
	}
	var buf bytes.Buffer
	if err := Print(&buf, r, "json"); err != nil {
		t.Fatalf("Print json: %v", err)
	}
	if strings.Contains(buf.String(), "super-secret-key") {
		t.Fatalf("secret leaked: %s", buf.String())
	}
	buf.Reset()
	if err := Print(&buf, r, "text"); err != nil || !strings.Contains(buf.String(), "127.0.0.1:3001") {
		t.Fatalf("Print text: %v %s", err, buf.String())
	}
	if err := Print(&buf, r, "xml"); err == nil {
		t.Fatalf("expected unsupported format")
	}
}
