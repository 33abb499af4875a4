package tunnelsync

import (
	"slices"
	"strings"

	"github.com/cloudflare/cloudflare-go"
)

const (
	// TunnelSuffix is the CNAME target domain of every Cloudflare tunnel.
	TunnelSuffix = ".cfargotunnel.com"
	// CatchAllService answers requests no other rule matched.
	CatchAllService = "http_status:404"
	// autoTTL is Cloudflare's "automatic" TTL.
	autoTTL = 1
)

// TunnelTarget is the CNAME content that routes a hostname to tunnelID.
func TunnelTarget(tunnelID string) string { return tunnelID + TunnelSuffix }

// TunnelIDOf extracts the tunnel id from a tunnel CNAME target.
func TunnelIDOf(content string) (string, bool) {
	id, _, ok := strings.Cut(content, TunnelSuffix)
	return id, ok && id != ""
}

// IsTunnelRecord reports whether rec is a CNAME pointing at any tunnel.
func IsTunnelRecord(rec cloudflare.DNSRecord) bool {
	return strings.EqualFold(rec.Type, "CNAME") && strings.Contains(rec.Content, TunnelSuffix)
}

func firstLabel(hostname string) string {
	label, _, _ := strings.Cut(hostname, ".")
	return label
}

// nameMatches accepts a record named after the full hostname or its first label.
func nameMatches(recordName, hostname string) bool {
	return strings.EqualFold(recordName, hostname) || strings.EqualFold(recordName, firstLabel(hostname))
}

// routesHostname reports whether rec sends hostname to tunnelID.
func routesHostname(rec cloudflare.DNSRecord, hostname, tunnelID string) bool {
	return strings.EqualFold(rec.Type, "CNAME") && nameMatches(rec.Name, hostname) && strings.Contains(rec.Content, tunnelID)
}

// findTunnelRecord returns the first record that sends hostname to tunnelID.
func findTunnelRecord(records []cloudflare.DNSRecord, hostname, tunnelID string) (cloudflare.DNSRecord, bool) {
	for _, rec := range records {
		if routesHostname(rec, hostname, tunnelID) {
			return rec, true
		}
	}
	return cloudflare.DNSRecord{}, false
}

// dependentRules counts ingress rules served by a record named recordName.
func dependentRules(rules []cloudflare.UnvalidatedIngressRule, recordName string) int {
	n := 0
	for _, r := range rules {
		if r.Hostname != "" && nameMatches(recordName, r.Hostname) {
			n++
		}
	}
	return n
}

func isCatchAll(r cloudflare.UnvalidatedIngressRule) bool {
	return r.Hostname == "" && r.Path == ""
}

// withCatchAll guarantees the rule list ends with a catch-all.
func withCatchAll(rules []cloudflare.UnvalidatedIngressRule) []cloudflare.UnvalidatedIngressRule {
	if len(rules) > 0 && isCatchAll(rules[len(rules)-1]) {
		return rules
	}
	return append(rules, cloudflare.UnvalidatedIngressRule{Service: CatchAllService})
}

// routedBy reports whether any rule still serves hostname, for example another path.
func routedBy(rules []cloudflare.UnvalidatedIngressRule, hostname string) bool {
	return slices.ContainsFunc(rules, func(r cloudflare.UnvalidatedIngressRule) bool {
		return r.Hostname != "" && strings.EqualFold(r.Hostname, hostname)
	})
}

func sameRule(r cloudflare.UnvalidatedIngressRule, m Match) bool {
	return strings.EqualFold(r.Hostname, m.Hostname) && r.Service == m.Service
}

func activeTunnels(tunnels []cloudflare.Tunnel) map[string]cloudflare.Tunnel {
	out := make(map[string]cloudflare.Tunnel, len(tunnels))
	for _, t := range tunnels {
		if t.DeletedAt == nil {
			out[t.ID] = t
		}
	}
	return out
}

// HostnameRecord returns the tunnel CNAME serving hostname, whichever tunnel it points at.
func HostnameRecord(records []cloudflare.DNSRecord, hostname string) (cloudflare.DNSRecord, bool) {
	for _, rec := range records {
		if IsTunnelRecord(rec) && nameMatches(rec.Name, hostname) {
			return rec, true
		}
	}
	return cloudflare.DNSRecord{}, false
}
