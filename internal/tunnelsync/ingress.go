package tunnelsync

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"cfpanel/internal/telemetry"

	"github.com/cloudflare/cloudflare-go"
	"go.opentelemetry.io/otel/attribute"
)

// DNSAction says what happened to the hostname's CNAME during an ingress change.
type DNSAction string

const (
	DNSCreated DNSAction = "created"
	DNSUpdated DNSAction = "updated"
	DNSDeleted DNSAction = "deleted"
	DNSNone    DNSAction = "none"
	DNSFailed  DNSAction = "failed"
)

// Match identifies an existing ingress rule.
type Match struct {
	Hostname string `json:"hostname"`
	Service  string `json:"service"`
}

type SyncResult struct {
	Tunnel   cloudflare.Tunnel              `json:"tunnel"`
	Config   cloudflare.TunnelConfiguration `json:"config"`
	Version  int                            `json:"version"`
	DNS      DNSAction                      `json:"dns"`
	Record   *cloudflare.DNSRecord          `json:"record,omitempty"`
	Warnings []string                       `json:"warnings"`
}

// ValidateRule checks the fields a public hostname rule needs.
func ValidateRule(r cloudflare.UnvalidatedIngressRule) error {
	host := strings.TrimSpace(r.Hostname)
	switch {
	case host == "":
		return fmt.Errorf("%w: hostname is required", ErrInvalidIngress)
	case strings.ContainsAny(host, " /:"):
		return fmt.Errorf("%w: hostname %q must be a bare domain name", ErrInvalidIngress, host)
	case strings.TrimSpace(r.Service) == "":
		return fmt.Errorf("%w: service is required", ErrInvalidIngress)
	}
	if strings.Contains(r.Service, "://") {
		if u, err := url.Parse(r.Service); err != nil || u.Host == "" {
			return fmt.Errorf("%w: service %q is not a valid origin url", ErrInvalidIngress, r.Service)
		}
	}
	return nil
}

func normalize(r cloudflare.UnvalidatedIngressRule) cloudflare.UnvalidatedIngressRule {
	r.Hostname = strings.ToLower(strings.TrimSpace(r.Hostname))
	r.Service = strings.TrimSpace(r.Service)
	return r
}

// AddIngress puts rule first in the tunnel configuration, keeps a trailing
// catch-all and creates the tunnel CNAME for its hostname unless one already
// routes it to this tunnel. A DNS failure is reported in the result, not as an error.
func (s *Service) AddIngress(ctx context.Context, tunnelID string, rule cloudflare.UnvalidatedIngressRule) (_ SyncResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tunnelsync.add_ingress", attribute.String("tunnel.id", tunnelID))
	defer func() { telemetry.EndSpan(span, err); observe("add_ingress", err) }()

	if err := ValidateRule(rule); err != nil {
		return SyncResult{}, err
	}
	rule = normalize(rule)
	t, cfg, err := s.load(ctx, tunnelID)
	if err != nil {
		return SyncResult{}, err
	}
	for _, r := range cfg.Ingress {
		if strings.EqualFold(r.Hostname, rule.Hostname) && r.Path == rule.Path {
			return SyncResult{}, fmt.Errorf("%s: %w", rule.Hostname, ErrDuplicateIngress)
		}
	}
	cfg.Ingress = append([]cloudflare.UnvalidatedIngressRule{rule}, cfg.Ingress...)
	res, err := s.save(ctx, t, cfg)
	if err != nil {
		return SyncResult{}, err
	}
	s.log.Info("ingress added", "tunnel", t.Name, "hostname", rule.Hostname, "service", rule.Service)

	if records, err := s.api.ListDNSRecords(ctx); err != nil {
		s.log.Warn("listing dns records before create failed", "hostname", rule.Hostname, "error", err)
	} else if existing, ok := findTunnelRecord(records, rule.Hostname, t.ID); ok {
		res.Record = &existing
		return res, nil
	}
	rec, err := s.api.CreateDNSRecord(ctx, managedRecord(rule.Hostname, t.ID))
	if err != nil {
		s.log.Warn("create tunnel cname failed", "hostname", rule.Hostname, "error", err)
		res.DNS = DNSFailed
		res.Warnings = append(res.Warnings, fmt.Sprintf("Ingress rule added, but the DNS record for %s could not be created: %v", rule.Hostname, err))
		return res, nil
	}
	res.DNS, res.Record = DNSCreated, &rec
	return res, nil
}

// EditIngress replaces the rule matching m. When the hostname changes the CNAME
// of the old hostname is moved to the new one, or created when there was none.
func (s *Service) EditIngress(ctx context.Context, tunnelID string, m Match, rule cloudflare.UnvalidatedIngressRule) (_ SyncResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tunnelsync.edit_ingress", attribute.String("tunnel.id", tunnelID))
	defer func() { telemetry.EndSpan(span, err); observe("edit_ingress", err) }()

	if err := ValidateRule(rule); err != nil {
		return SyncResult{}, err
	}
	rule = normalize(rule)
	if m.Hostname == "" {
		return SyncResult{}, fmt.Errorf("%w: hostname of the rule to edit is required", ErrInvalidIngress)
	}
	t, cfg, err := s.load(ctx, tunnelID)
	if err != nil {
		return SyncResult{}, err
	}
	idx := slices.IndexFunc(cfg.Ingress, func(r cloudflare.UnvalidatedIngressRule) bool { return sameRule(r, m) })
	if idx < 0 {
		return SyncResult{}, fmt.Errorf("%s -> %s: %w", m.Hostname, m.Service, ErrIngressNotFound)
	}
	cfg.Ingress[idx] = rule
	res, err := s.save(ctx, t, cfg)
	if err != nil {
		return SyncResult{}, err
	}
	s.log.Info("ingress updated", "tunnel", t.Name, "from", m.Hostname, "to", rule.Hostname, "service", rule.Service)

	if strings.EqualFold(m.Hostname, rule.Hostname) {
		return res, nil
	}
	s.moveRecord(ctx, &res, t, m.Hostname, rule.Hostname, routedBy(cfg.Ingress, m.Hostname))
	return res, nil
}

// moveRecord points the CNAME of from at to. When from is still served by other
// rules its record is left alone and to gets its own.
func (s *Service) moveRecord(ctx context.Context, res *SyncResult, t cloudflare.Tunnel, from, to string, keepOld bool) {
	fail := func(err error) {
		s.log.Warn("tunnel cname update failed", "from", from, "to", to, "error", err)
		res.DNS = DNSFailed
		res.Warnings = append(res.Warnings, fmt.Sprintf("Ingress rule updated, but the DNS record for %s could not be updated: %v", to, err))
	}
	records, err := s.api.ListDNSRecords(ctx)
	if err != nil {
		fail(err)
		return
	}
	if existing, ok := findTunnelRecord(records, to, t.ID); ok {
		res.Record = &existing
		return
	}
	if old, ok := findTunnelRecord(records, from, t.ID); ok && !keepOld {
		p := managedRecord(to, t.ID)
		rec, err := s.api.UpdateDNSRecord(ctx, cloudflare.UpdateDNSRecordParams{
			ID: old.ID, Type: p.Type, Name: p.Name, Content: p.Content, TTL: p.TTL, Proxied: p.Proxied,
		})
		if err != nil {
			fail(err)
			return
		}
		res.DNS, res.Record = DNSUpdated, &rec
		return
	}
	rec, err := s.api.CreateDNSRecord(ctx, managedRecord(to, t.ID))
	if err != nil {
		fail(err)
		return
	}
	res.DNS, res.Record = DNSCreated, &rec
}

// DeleteIngress removes every rule matching m, then the hostname's tunnel CNAME
// if present and no remaining rule serves the hostname.
func (s *Service) DeleteIngress(ctx context.Context, tunnelID string, m Match) (_ SyncResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tunnelsync.delete_ingress", attribute.String("tunnel.id", tunnelID))
	defer func() { telemetry.EndSpan(span, err); observe("delete_ingress", err) }()

	if m.Hostname == "" {
		return SyncResult{}, fmt.Errorf("%w: hostname of the rule to delete is required", ErrInvalidIngress)
	}
	t, cfg, err := s.load(ctx, tunnelID)
	if err != nil {
		return SyncResult{}, err
	}
	kept := slices.DeleteFunc(slices.Clone(cfg.Ingress), func(r cloudflare.UnvalidatedIngressRule) bool { return sameRule(r, m) })
	if len(kept) == len(cfg.Ingress) {
		return SyncResult{}, fmt.Errorf("%s -> %s: %w", m.Hostname, m.Service, ErrIngressNotFound)
	}
	cfg.Ingress = kept
	res, err := s.save(ctx, t, cfg)
	if err != nil {
		return SyncResult{}, err
	}
	s.log.Info("ingress deleted", "tunnel", t.Name, "hostname", m.Hostname, "service", m.Service)
	if routedBy(kept, m.Hostname) {
		return res, nil
	}

	records, err := s.api.ListDNSRecords(ctx)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Ingress rule deleted, but the DNS record for %s could not be checked: %v", m.Hostname, err))
		return res, nil
	}
	rec, ok := findTunnelRecord(records, m.Hostname, t.ID)
	if !ok {
		return res, nil
	}
	if err := s.api.DeleteDNSRecord(ctx, rec.ID); err != nil {
		s.log.Warn("delete tunnel cname failed", "hostname", m.Hostname, "error", err)
		res.DNS = DNSFailed
		res.Warnings = append(res.Warnings, fmt.Sprintf("Ingress rule deleted, but the DNS record for %s could not be deleted: %v", m.Hostname, err))
		return res, nil
	}
	res.DNS, res.Record = DNSDeleted, &rec
	return res, nil
}

func (s *Service) load(ctx context.Context, tunnelID string) (cloudflare.Tunnel, cloudflare.TunnelConfiguration, error) {
	t, err := s.tunnel(ctx, tunnelID)
	if err != nil {
		return cloudflare.Tunnel{}, cloudflare.TunnelConfiguration{}, err
	}
	cfg, err := s.api.GetTunnelConfiguration(ctx, t.ID)
	if err != nil {
		return cloudflare.Tunnel{}, cloudflare.TunnelConfiguration{}, err
	}
	return t, cfg.Config, nil
}

func (s *Service) save(ctx context.Context, t cloudflare.Tunnel, cfg cloudflare.TunnelConfiguration) (SyncResult, error) {
	cfg.Ingress = withCatchAll(cfg.Ingress)
	saved, err := s.api.UpdateTunnelConfiguration(ctx, t.ID, cfg)
	if err != nil {
		return SyncResult{}, err
	}
	if saved.Config.Ingress == nil {
		saved.Config = cfg
	}
	return SyncResult{Tunnel: t, Config: saved.Config, Version: saved.Version, DNS: DNSNone, Warnings: []string{}}, nil
}

// managedRecord is the proxied CNAME that routes hostname through tunnelID.
func managedRecord(hostname, tunnelID string) cloudflare.CreateDNSRecordParams {
	proxied := true
	return cloudflare.CreateDNSRecordParams{
		Type:    "CNAME",
		Name:    hostname,
		Content: TunnelTarget(tunnelID),
		TTL:     autoTTL,
		Proxied: &proxied,
	}
}
