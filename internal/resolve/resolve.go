// Package resolve checks how a hostname currently resolves on the public DNS.
package resolve

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

const tunnelSuffix = ".cfargotunnel.com"

// cloudflareRanges are the published Cloudflare edge ranges; proxied records resolve into them.
var cloudflareRanges = mustPrefixes(
	"173.245.48.0/20", "103.21.244.0/22", "103.22.200.0/22", "103.31.4.0/22",
	"141.101.64.0/18", "108.162.192.0/18", "190.93.240.0/20", "188.114.96.0/20",
	"197.234.240.0/22", "198.41.128.0/17", "162.158.0.0/15", "104.16.0.0/13",
	"104.24.0.0/14", "172.64.0.0/13", "131.0.72.0/22",
	"2400:cb00::/32", "2606:4700::/32", "2803:f800::/32", "2405:b500::/32",
	"2405:8100::/32", "2a06:98c0::/29", "2c0f:f248::/32",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

// Answer summarises the CNAME, A and AAAA lookups for Name.
type Answer struct {
	Name          string   `json:"name"`
	CNAMEs        []string `json:"cnames"`
	Addresses     []string `json:"addresses"`
	Rcode         string   `json:"rcode"`
	Proxied       bool     `json:"proxied"`
	ThroughTunnel bool     `json:"throughTunnel"`
}

type Resolver struct {
	addr   string
	client *dns.Client
}

// New returns a resolver querying addr (host:port; port 53 is assumed when missing).
func New(addr string, timeout time.Duration) *Resolver {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Resolver{addr: addr, client: &dns.Client{Timeout: timeout}}
}

// Lookup runs the three queries concurrently. A non-success rcode is reported
// in the answer, not as an error.
func (r *Resolver) Lookup(ctx context.Context, name string) (Answer, error) {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	if _, ok := dns.IsDomainName(name); !ok || name == "" {
		return Answer{}, fmt.Errorf("invalid domain name %q", name)
	}
	types := []uint16{dns.TypeCNAME, dns.TypeA, dns.TypeAAAA}
	replies := make([]*dns.Msg, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, qt := range types {
		g.Go(func() error {
			msg := new(dns.Msg)
			msg.SetQuestion(dns.Fqdn(name), qt)
			msg.RecursionDesired = true
			resp, _, err := r.client.ExchangeContext(gctx, msg, r.addr)
			if err != nil {
				return fmt.Errorf("%s %s: %w", dns.TypeToString[qt], name, err)
			}
			replies[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Answer{}, err
	}

	ans := Answer{Name: name, CNAMEs: []string{}, Addresses: []string{}, Rcode: dns.RcodeToString[replies[1].Rcode]}
	for _, resp := range replies {
		for _, rr := range resp.Answer {
			switch v := rr.(type) {
			case *dns.CNAME:
				ans.CNAMEs = appendUnique(ans.CNAMEs, strings.TrimSuffix(v.Target, "."))
			case *dns.A:
				ans.Addresses = appendUnique(ans.Addresses, v.A.String())
			case *dns.AAAA:
				ans.Addresses = appendUnique(ans.Addresses, v.AAAA.String())
			}
		}
	}
	for _, c := range ans.CNAMEs {
		if strings.HasSuffix(c, tunnelSuffix) {
			ans.ThroughTunnel = true
		}
	}
	for _, a := range ans.Addresses {
		if IsCloudflareAddress(a) {
			ans.Proxied = true
		}
	}
	return ans, nil
}

// IsCloudflareAddress reports whether ip belongs to the Cloudflare edge.
func IsCloudflareAddress(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return slices.ContainsFunc(cloudflareRanges, func(p netip.Prefix) bool { return p.Contains(addr) })
}

func appendUnique(s []string, v string) []string {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
