package cfapi

import (
	"fmt"
	"net/http"
	"strings"
)

// Request headers carrying per-user Cloudflare credentials.
const (
	HeaderAPIKey    = "X-CF-API-KEY"
	HeaderEmail     = "X-CF-EMAIL"
	HeaderAccountID = "X-CF-ACCOUNT-ID"
	HeaderZoneID    = "X-CF-ZONE-ID"
)

// Scope names the identifiers a route needs besides the API key.
type Scope int

const (
	ScopeKey Scope = iota
	ScopeZone
	ScopeAccount
	ScopeZoneAndAccount
)

// Credentials identify the caller to Cloudflare. An empty Email means APIKey is an API token.
type Credentials struct {
	APIKey    string
	Email     string
	AccountID string
	ZoneID    string
}

// FromHeaders reads credentials with get (e.g. fiber's c.Get or http.Header.Get).
func FromHeaders(get func(string) string) Credentials {
	return Credentials{
		APIKey:    strings.TrimSpace(get(HeaderAPIKey)),
		Email:     strings.TrimSpace(get(HeaderEmail)),
		AccountID: strings.TrimSpace(get(HeaderAccountID)),
		ZoneID:    strings.TrimSpace(get(HeaderZoneID)),
	}
}

// WithDefaults fills empty fields from def. The email default only applies
// together with the default key, otherwise a user token would be sent as a global key.
func (c Credentials) WithDefaults(def Credentials) Credentials {
	if c.APIKey == "" {
		c.APIKey = def.APIKey
		if c.Email == "" {
			c.Email = def.Email
		}
	}
	if c.AccountID == "" {
		c.AccountID = def.AccountID
	}
	if c.ZoneID == "" {
		c.ZoneID = def.ZoneID
	}
	return c
}

// Require checks that the fields needed for scope are present.
func (c Credentials) Require(scope Scope) error {
	missing := c.APIKey == ""
	var need []string
	need = append(need, "API key")
	if scope == ScopeZone || scope == ScopeZoneAndAccount {
		need = append(need, "Zone ID")
		missing = missing || c.ZoneID == ""
	}
	if scope == ScopeAccount || scope == ScopeZoneAndAccount {
		need = append(need, "Account ID")
		missing = missing || c.AccountID == ""
	}
	if !missing {
		return nil
	}
	return &MissingCredentialsError{Required: need}
}

// Header returns the auth headers Cloudflare expects for these credentials.
func (c Credentials) Header() http.Header {
	h := http.Header{}
	if c.Email != "" {
		h.Set("X-Auth-Key", c.APIKey)
		h.Set("X-Auth-Email", c.Email)
	} else if c.APIKey != "" {
		h.Set("Authorization", "Bearer "+c.APIKey)
	}
	return h
}

// MissingCredentialsError lists the fields a route requires.
type MissingCredentialsError struct {
	Required []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingCredentials, e.Detail())
}

// Detail renders e.g. "API key and Zone ID are required".
func (e *MissingCredentialsError) Detail() string {
	switch n := len(e.Required); n {
	case 0:
		return "credentials are required"
	case 1:
		return e.Required[0] + " is required"
	default:
		return strings.Join(e.Required[:n-1], ", ") + " and " + e.Required[n-1] + " are required"
	}
}

func (e *MissingCredentialsError) Unwrap() error { return ErrMissingCredentials }
