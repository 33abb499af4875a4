package cfapi

import (
	"net/url"
	"strings"
)

// ScopeOf returns the credential scope an internal route needs.
func ScopeOf(route string) Scope {
	p, _, _ := strings.Cut(route, "?")
	switch {
	case hasRoot(p, "dns"):
		return ScopeZone
	case hasRoot(p, "tunnels"):
		return ScopeAccount
	}
	return ScopeKey
}

// Translate maps an internal route onto the Cloudflare API path:
//
//	/dns[/...]                         -> /zones/{zone}/dns_records[/...]
//	/tunnels/{id}/configurations       -> /accounts/{account}/cfd_tunnel/{id}/configurations
//	/tunnels/{id}/delete_config        -> /accounts/{account}/cfd_tunnel/{id}/configurations
//	/tunnels[/...]                     -> /accounts/{account}/tunnels[/...]
//
// Other routes pass through. A raw query string is kept.
func Translate(route string, creds Credentials) string {
	p, query, hasQuery := strings.Cut(route, "?")
	segs := split(p)
	var out string
	switch {
	case len(segs) > 0 && segs[0] == "dns":
		out = "/zones/" + url.PathEscape(creds.ZoneID) + "/dns_records" + join(segs[1:])
	case len(segs) == 3 && segs[0] == "tunnels" && (segs[2] == "configurations" || segs[2] == "delete_config"):
		out = "/accounts/" + url.PathEscape(creds.AccountID) + "/cfd_tunnel/" + url.PathEscape(segs[1]) + "/configurations"
	case len(segs) > 0 && segs[0] == "tunnels":
		out = "/accounts/" + url.PathEscape(creds.AccountID) + "/tunnels" + join(segs[1:])
	default:
		out = "/" + strings.TrimLeft(p, "/")
	}
	if hasQuery && query != "" {
		out += "?" + query
	}
	return out
}

func hasRoot(p, root string) bool {
	p = strings.TrimLeft(p, "/")
	return p == root || strings.HasPrefix(p, root+"/")
}

// split returns the unescaped, non-empty path segments of p.
func split(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s == "" {
			continue
		}
		if u, err := url.PathUnescape(s); err == nil {
			s = u
		}
		segs = append(segs, s)
	}
	return segs
}

func join(segs []string) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
