package tunnelsync

import (
	"testing"

	"github.com/cloudflare/cloudflare-go"
)

func TestTunnelIDOf(t *testing.T) {
	if id, ok := TunnelIDOf("abc-123.cfargotunnel.com"); !ok || id != "abc-123" {
		t.Fatalf("got %q %v", id, ok)
	}
	if _, ok := TunnelIDOf("example.herokuapp.com"); ok {
		t.Fatalf("non-tunnel target matched")
	}
}

func TestIsTunnelRecord(t *testing.T) {
	if !IsTunnelRecord(cloudflare.DNSRecord{Type: "CNAME", Content: "x.cfargotunnel.com"}) {
		t.Fatalf("expected tunnel record")
	}
	if IsTunnelRecord(cloudflare.DNSRecord{Type: "TXT", Content: "x.cfargotunnel.com"}) {
		t.Fatalf("TXT must not count")
	}
}

func TestDependentRules(t *testing.T) {
	rules := []cloudflare.UnvalidatedIngressRule{
		{Hostname: "app.example.com"}, {Hostname: "app.example.org"}, {Hostname: "api.example.com"}, {Service: CatchAllService},
	}
	if n := dependentRules(rules, "app"); n != 2 {
		t.Fatalf("first label: %d", n)
	}
	if n := dependentRules(rules, "app.example.com"); n != 1 {
		t.Fatalf("full name: %d", n)
	}
}

func TestWithCatchAll(t *testing.T) {
	if got := withCatchAll(nil); len(got) != 1 || got[0].Service != CatchAllService {
		t.Fatalf("empty: %+v", got)
	}
	in := []cloudflare.UnvalidatedIngressRule{{Hostname: "a"}, {Service: "http_status:503"}}
	if got := withCatchAll(in); len(got) != 2 {
		t.Fatalf("existing catch-all must be kept: %+v", got)
	}
}

func TestHostnameRecord(t *testing.T) {
	recs := []cloudflare.DNSRecord{
		{ID: "a", Type: "CNAME", Name: "app.example.com", Content: "ghs.google.com"},
		{ID: "b", Type: "CNAME", Name: "app", Content: "t1.cfargotunnel.com"},
	}
	if rec, ok := HostnameRecord(recs, "app.example.com"); !ok || rec.ID != "b" {
		t.Fatalf("got %+v %v", rec, ok)
	}
	if _, ok := HostnameRecord(recs, "api.example.com"); ok {
		t.Fatalf("unexpected match")
	}
}
