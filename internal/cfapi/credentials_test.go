package cfapi

import (
	"errors"
	"net/http"
	"testing"
)

func TestFromHeadersAndDefaults(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderAPIKey, " user-token ")
	h.Set(HeaderZoneID, "zone-1")
	c := FromHeaders(h.Get).WithDefaults(Credentials{APIKey: "def-key", Email: "ops@example.com", AccountID: "acct-def", ZoneID: "zone-def"})
	if c.APIKey != "user-token" || c.Email != "" {
		t.Fatalf("user token must not pick up the default email: %+v", c)
	}
	if c.ZoneID != "zone-1" || c.AccountID != "acct-def" {
		t.Fatalf("unexpected ids %+v", c)
	}
	c = Credentials{}.WithDefaults(Credentials{APIKey: "def-key", Email: "ops@example.com"})
	if c.APIKey != "def-key" || c.Email != "ops@example.com" {
		t.Fatalf("defaults not applied: %+v", c)
	}
}

func TestRequire(t *testing.T) {
	err := Credentials{APIKey: "k"}.Require(ScopeZone)
	var mc *MissingCredentialsError
	if !errors.As(err, &mc) || mc.Detail() != "API key and Zone ID are required" {
		t.Fatalf("unexpected error %v", err)
	}
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected sentinel in chain")
	}
	if err := (Credentials{ZoneID: "z"}).Require(ScopeKey); err == nil || err.(*MissingCredentialsError).Detail() != "API key is required" {
		t.Fatalf("unexpected %v", err)
	}
	err = Credentials{APIKey: "k"}.Require(ScopeZoneAndAccount)
	if !errors.As(err, &mc) || mc.Detail() != "API key, Zone ID and Account ID are required" {
		t.Fatalf("unexpected %v", err)
	}
	if err := (Credentials{APIKey: "k", AccountID: "a"}).Require(ScopeAccount); err != nil {
		t.Fatalf("unexpected %v", err)
	}
}

func TestAuthHeader(t *testing.T) {
	h := Credentials{APIKey: "k", Email: "e@example.com"}.Header()
	if h.Get("X-Auth-Key") != "k" || h.Get("X-Auth-Email") != "e@example.com" || h.Get("Authorization") != "" {
		t.Fatalf("global key headers: %v", h)
	}
	h = Credentials{APIKey: "tok"}.Header()
	if h.Get("Authorization") != "Bearer tok" || h.Get("X-Auth-Key") != "" {
		t.Fatalf("token headers: %v", h)
	}
}
