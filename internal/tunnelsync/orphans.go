package tunnelsync

import (
	"context"
	"fmt"
	"slices"

	"cfpanel/internal/metrics"
	"cfpanel/internal/telemetry"

	"github.com/cloudflare/cloudflare-go"
	"golang.org/x/sync/errgroup"
)

type FailedDelete struct {
	Record cloudflare.DNSRecord `json:"record"`
	Error  string               `json:"error"`
}

type CleanupResult struct {
	Cleaned int            `json:"cleaned"`
	Errors  int            `json:"errors"`
	Failed  []FailedDelete `json:"failed"`
}

// IngressOrphans lists the hostnames of one tunnel that no DNS record routes to it.
type IngressOrphans struct {
	Tunnel            cloudflare.Tunnel `json:"tunnel"`
	OrphanedHostnames []string          `json:"orphanedHostnames"`
}

type DeleteResult struct {
	Success  bool     `json:"success"`
	Warnings []string `json:"warnings"`
}

type FullCleanupReport struct {
	CleanupResult
	OrphanedIngress   []IngressOrphans `json:"orphanedIngress"`
	OrphanedHostnames int              `json:"orphanedHostnames"`
	TotalIssues       int              `json:"totalIssues"`
	InSync            bool             `json:"inSync"`
	Messages          []string         `json:"messages"`
	IngressScanError  string           `json:"ingressScanError,omitempty"`
}

const inSyncMessage = "Your DNS records and tunnel configurations are in sync."

// FindOrphanedDNSRecords returns tunnel CNAMEs whose tunnel is not active.
func (s *Service) FindOrphanedDNSRecords(ctx context.Context) (_ []cloudflare.DNSRecord, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tunnelsync.find_orphaned_dns")
	defer func() { telemetry.EndSpan(span, err) }()

	records, tunnels, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("find orphaned dns records: %w", err)
	}
	return orphanedRecords(records, tunnels), nil
}

func orphanedRecords(records []cloudflare.DNSRecord, tunnels []cloudflare.Tunnel) []cloudflare.DNSRecord {
	active := activeTunnels(tunnels)
	orphans := []cloudflare.DNSRecord{}
	for _, rec := range records {
		if !IsTunnelRecord(rec) {
			continue
		}
		if id, _ := TunnelIDOf(rec.Content); !hasKey(active, id) {
			orphans = append(orphans, rec)
		}
	}
	metrics.OrphanedRecords.Set(float64(len(orphans)))
	return orphans
}

func hasKey(m map[string]cloudflare.Tunnel, k string) bool {
	_, ok := m[k]
	return ok
}

// CleanupOrphanedDNSRecords deletes every orphaned record. Failed deletes are
// counted and do not stop the loop.
func (s *Service) CleanupOrphanedDNSRecords(ctx context.Context) (CleanupResult, error) {
	orphans, err := s.FindOrphanedDNSRecords(ctx)
	if err != nil {
		observe("cleanup_dns", err)
		return CleanupResult{Failed: []FailedDelete{}}, err
	}
	res := s.deleteRecords(ctx, orphans)
	observe("cleanup_dns", nil)
	return res, nil
}

func (s *Service) deleteRecords(ctx context.Context, orphans []cloudflare.DNSRecord) CleanupResult {
	res := CleanupResult{Failed: []FailedDelete{}}
	for _, rec := range orphans {
		if err := s.api.DeleteDNSRecord(ctx, rec.ID); err != nil {
			s.log.Error("delete orphaned dns record failed", "name", rec.Name, "id", rec.ID, "error", err)
			res.Errors++
			res.Failed = append(res.Failed, FailedDelete{Record: rec, Error: err.Error()})
			continue
		}
		s.log.Info("deleted orphaned dns record", "name", rec.Name, "id", rec.ID, "content", rec.Content)
		res.Cleaned++
	}
	metrics.CleanedRecords.Add(float64(res.Cleaned))
	return res
}

// FindOrphanedIngressRules reports, per tunnel, hostnames without a CNAME routing
// them to that tunnel. A tunnel whose configuration cannot be read is skipped.
func (s *Service) FindOrphanedIngressRules(ctx context.Context) (_ []IngressOrphans, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tunnelsync.find_orphaned_ingress")
	defer func() { telemetry.EndSpan(span, err) }()

	records, tunnels, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("find orphaned ingress rules: %w", err)
	}
	return s.scanIngress(ctx, records, tunnels)
}

func (s *Service) scanIngress(ctx context.Context, records []cloudflare.DNSRecord, tunnels []cloudflare.Tunnel) ([]IngressOrphans, error) {
	perTunnel := make([][]string, len(tunnels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(configReadLimit)
	for i, t := range tunnels {
		if t.DeletedAt != nil {
			continue
		}
		g.Go(func() error {
			cfg, err := s.api.GetTunnelConfiguration(gctx, t.ID)
			if err != nil {
				s.log.Warn("skipping tunnel, configuration unavailable", "tunnel", t.Name, "id", t.ID, "error", err)
				return nil
			}
			for _, rule := range cfg.Config.Ingress {
				if rule.Hostname == "" {
					continue
				}
				if _, ok := findTunnelRecord(records, rule.Hostname, t.ID); !ok {
					perTunnel[i] = append(perTunnel[i], rule.Hostname)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []IngressOrphans{}
	total := 0
	for i, hosts := range perTunnel {
		if len(hosts) == 0 {
			continue
		}
		out = append(out, IngressOrphans{Tunnel: tunnels[i], OrphanedHostnames: hosts})
		total += len(hosts)
	}
	metrics.OrphanedHostnames.Set(float64(total))
	return out, nil
}

// SafeDeleteDNSRecord deletes a record and warns when tunnel ingress rules still
// depend on it. Dependency lookup failures are logged only.
func (s *Service) SafeDeleteDNSRecord(ctx context.Context, id string) DeleteResult {
	res := DeleteResult{Warnings: []string{}}
	rec, err := s.api.GetDNSRecord(ctx, id)
	if err != nil {
		observe("safe_delete", err)
		return DeleteResult{Warnings: []string{fmt.Sprintf("Failed to delete DNS record: %v", err)}}
	}
	if IsTunnelRecord(rec) {
		if w, err := s.dependencyWarning(ctx, rec); err != nil {
			s.log.Warn("tunnel dependency check failed", "record", rec.Name, "error", err)
		} else if w != "" {
			res.Warnings = append(res.Warnings, w)
		}
	}
	if err := s.api.DeleteDNSRecord(ctx, id); err != nil {
		observe("safe_delete", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("Failed to delete DNS record: %v", err))
		return res
	}
	s.log.Info("deleted dns record", "name", rec.Name, "id", id)
	observe("safe_delete", nil)
	res.Success = true
	return res
}

func (s *Service) dependencyWarning(ctx context.Context, rec cloudflare.DNSRecord) (string, error) {
	tunnelID, _ := TunnelIDOf(rec.Content)
	tunnels, err := s.api.ListTunnels(ctx)
	if err != nil {
		return "", err
	}
	t, ok := activeTunnels(tunnels)[tunnelID]
	if !ok {
		return "", nil
	}
	cfg, err := s.api.GetTunnelConfiguration(ctx, t.ID)
	if err != nil {
		return "", err
	}
	n := dependentRules(cfg.Config.Ingress, rec.Name)
	if n == 0 {
		return "", nil
	}
	return fmt.Sprintf("This DNS record is used by %d tunnel ingress rule(s) in tunnel %q. You may need to update the tunnel configuration.", n, t.Name), nil
}

// PerformFullCleanup deletes orphaned DNS records and scans for orphaned ingress
// hostnames concurrently, both from one listing of records and tunnels. When the
// listing fails nothing is deleted. A failed ingress scan never hides the
// deletions already made: it is reported in IngressScanError.
func (s *Service) PerformFullCleanup(ctx context.Context) (_ FullCleanupReport, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tunnelsync.full_cleanup")
	defer func() { telemetry.EndSpan(span, err); observe("full_cleanup", err) }()

	records, tunnels, err := s.snapshot(ctx)
	if err != nil {
		return Summarize(CleanupResult{}, nil), fmt.Errorf("full cleanup: %w", err)
	}
	var (
		cleanup CleanupResult
		ingress []IngressOrphans
		scanErr error
		g       errgroup.Group
	)
	g.Go(func() error {
		cleanup = s.deleteRecords(ctx, orphanedRecords(records, tunnels))
		return nil
	})
	g.Go(func() error {
		ingress, scanErr = s.scanIngress(ctx, records, tunnels)
		return nil
	})
	_ = g.Wait()

	report := Summarize(cleanup, ingress)
	if scanErr != nil {
		s.log.Warn("ingress scan failed during cleanup", "cleaned", cleanup.Cleaned, "error", scanErr)
		report.IngressScanError = scanErr.Error()
		report.InSync = false
		report.Messages = slices.DeleteFunc(report.Messages, func(m string) bool { return m == inSyncMessage })
		report.Messages = append(report.Messages, fmt.Sprintf("Tunnel configurations could not be checked: %v", scanErr))
	}
	return report, nil
}

// Summarize builds the report shown after a full cleanup. It is shared with the dry run.
func Summarize(cleanup CleanupResult, ingress []IngressOrphans) FullCleanupReport {
	r := FullCleanupReport{CleanupResult: cleanup, OrphanedIngress: ingress, Messages: []string{}}
	if r.Failed == nil {
		r.Failed = []FailedDelete{}
	}
	if r.OrphanedIngress == nil {
		r.OrphanedIngress = []IngressOrphans{}
	}
	for _, o := range ingress {
		r.OrphanedHostnames += len(o.OrphanedHostnames)
	}
	r.TotalIssues = cleanup.Cleaned + len(ingress)
	r.InSync = r.TotalIssues == 0 && cleanup.Errors == 0
	if cleanup.Cleaned > 0 {
		r.Messages = append(r.Messages, fmt.Sprintf("Cleaned up %d orphaned DNS records.", cleanup.Cleaned))
	}
	if cleanup.Errors > 0 {
		r.Messages = append(r.Messages, fmt.Sprintf("%d orphaned records could not be deleted.", cleanup.Errors))
	}
	if len(ingress) > 0 {
		r.Messages = append(r.Messages, fmt.Sprintf("Found %d tunnel hostnames without corresponding DNS records across %d tunnels.", r.OrphanedHostnames, len(ingress)))
	}
	if r.InSync {
		r.Messages = append(r.Messages, inSyncMessage)
	}
	return r
}
