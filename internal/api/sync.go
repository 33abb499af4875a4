package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloudflare/cloudflare-go"
	"github.com/gorilla/mux"

	"cfpanel/internal/cfapi"
	"cfpanel/internal/resolve"
	"cfpanel/internal/tunnelsync"
)

// syncService builds a reconciliation service for the caller's credentials.
func (s *Server) syncService(r *http.Request, scope cfapi.Scope) (*tunnelsync.Service, cfapi.Credentials, error) {
	creds := s.credentials(r)
	if err := creds.Require(scope); err != nil {
		return nil, creds, err
	}
	client, err := cfapi.NewClient(creds, cfapi.Options{BaseURL: s.cfg.Cloudflare.APIURL, Timeout: s.cfg.Cloudflare.Timeout})
	if err != nil {
		return nil, creds, err
	}
	return tunnelsync.New(client, s.log), creds, nil
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	svc, _, err := s.syncService(r, cfapi.ScopeZoneAndAccount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := svc.FindOrphanedDNSRecords(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ingress, err := svc.FindOrphanedIngressRules(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []cloudflare.DNSRecord{}
	}
	if ingress == nil {
		ingress = []tunnelsync.IngressOrphans{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dnsRecords": records, "ingress": ingress})
}

func (s *Server) handleCleanupDNS(w http.ResponseWriter, r *http.Request) {
	svc, creds, err := s.syncService(r, cfapi.ScopeZoneAndAccount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := svc.CleanupOrphanedDNSRecords(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.Failed == nil {
		res.Failed = []tunnelsync.FailedDelete{}
	}
	s.audit("orphan_dns_cleanup", map[string]any{"cleaned": res.Cleaned, "errors": res.Errors, "zoneId": creds.ZoneID, "requestId": r.Header.Get("X-Request-Id")})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFullCleanup(w http.ResponseWriter, r *http.Request) {
	svc, creds, err := s.syncService(r, cfapi.ScopeZoneAndAccount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := svc.PerformFullCleanup(r.Context())
	if err == nil || report.Cleaned > 0 {
		meta := map[string]any{
			"cleaned":           report.Cleaned,
			"errors":            report.Errors,
			"orphanedHostnames": report.OrphanedHostnames,
			"zoneId":            creds.ZoneID,
			"accountId":         creds.AccountID,
			"requestId":         r.Header.Get("X-Request-Id"),
		}
		if report.IngressScanError != "" {
			meta["ingressScanError"] = report.IngressScanError
		}
		s.audit("full_cleanup", meta)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleSafeDelete deletes a DNS record, warning about tunnel rules that still use it.
func (s *Server) handleSafeDelete(w http.ResponseWriter, r *http.Request) {
	svc, creds, err := s.syncService(r, cfapi.ScopeZoneAndAccount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	res := svc.SafeDeleteDNSRecord(r.Context(), id)
	s.audit("dns_safe_delete", map[string]any{"recordId": id, "success": res.Success, "zoneId": creds.ZoneID, "requestId": r.Header.Get("X-Request-Id")})
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleIngressAdd(w http.ResponseWriter, r *http.Request) {
	var rule cloudflare.UnvalidatedIngressRule
	if err := decodeBody(r, &rule); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope("Invalid ingress rule", err.Error()))
		return
	}
	svc, creds, err := s.syncService(r, cfapi.ScopeZoneAndAccount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	res, err := svc.AddIngress(r.Context(), id, rule)
	s.auditIngress(r, "ingress_add", id, rule.Hostname, creds, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleIngressEdit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Match   tunnelsync.Match                  `json:"match"`
		Ingress cloudflare.UnvalidatedIngressRule `json:"ingress"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope("Invalid ingress update", err.Error()))
		return
	}
	svc, creds, err := s.syncService(r, cfapi.ScopeZoneAndAccount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	res, err := svc.EditIngress(r.Context(), id, body.Match, body.Ingress)
	s.auditIngress(r, "ingress_edit", id, body.Match.Hostname, creds, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIngressDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	m := tunnelsync.Match{Hostname: strings.TrimSpace(q.Get("hostname")), Service: strings.TrimSpace(q.Get("service"))}
	svc, creds, err := s.syncService(r, cfapi.ScopeZoneAndAccount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	res, err := svc.DeleteIngress(r.Context(), id, m)
	s.auditIngress(r, "ingress_delete", id, m.Hostname, creds, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) auditIngress(r *http.Request, event, tunnelID, hostname string, creds cfapi.Credentials, err error) {
	s.audit(event, map[string]any{
		"tunnelId":  tunnelID,
		"hostname":  hostname,
		"status":    cfapi.StatusOf(err),
		"accountId": creds.AccountID,
		"zoneId":    creds.ZoneID,
		"requestId": r.Header.Get("X-Request-Id"),
	})
}

// handleVerify reports whether hostname resolves through a tunnel: its CNAME in
// the zone, the tunnel it points at and what public DNS currently answers.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	hostname := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("hostname")))
	if hostname == "" {
		writeJSON(w, http.StatusBadRequest, envelope("hostname is required", nil))
		return
	}
	creds := s.credentials(r)
	if err := creds.Require(cfapi.ScopeZone); err != nil {
		s.writeError(w, r, err)
		return
	}
	client, err := cfapi.NewClient(creds, cfapi.Options{BaseURL: s.cfg.Cloudflare.APIURL, Timeout: s.cfg.Cloudflare.Timeout})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := client.ListDNSRecords(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := map[string]any{"hostname": hostname, "routed": false}
	rec, found := tunnelsync.HostnameRecord(records, hostname)
	if found {
		tunnelID, _ := tunnelsync.TunnelIDOf(rec.Content)
		out["record"] = rec
		out["tunnelId"] = tunnelID
	}
	var ans resolve.Answer
	if ans, err = s.resolver.Lookup(r.Context(), hostname); err != nil {
		s.log.Warn("verify lookup failed", "hostname", hostname, "error", err)
		out["resolveError"] = err.Error()
	} else {
		out["dns"] = ans
	}
	out["routed"] = found && (ans.ThroughTunnel || ans.Proxied)
	writeJSON(w, http.StatusOK, out)
}
