package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"cfpanel/internal/cfapi"
)

const cloudflarePrefix = "/api/cloudflare"

// credentials returns the caller's Cloudflare credentials, completed from the server defaults.
func (s *Server) credentials(r *http.Request) cfapi.Credentials {
	return cfapi.FromHeaders(r.Header.Get).WithDefaults(s.defaults)
}

// writeError maps err onto the error envelope and its HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *cfapi.MissingCredentialsError
	if errors.As(err, &missing) {
		writeJSON(w, http.StatusBadRequest, envelope("Missing required credentials", map[string]any{
			"errors": []map[string]string{{"message": missing.Detail()}},
		}))
		return
	}
	status := cfapi.StatusOf(err)
	var api *cfapi.APIError
	if errors.As(err, &api) {
		writeJSON(w, status, envelope(api.Message, api.Details))
		return
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err, "requestId", r.Header.Get("X-Request-Id"))
	}
	var details any
	if status < http.StatusInternalServerError || !s.cfg.Production() {
		details = map[string]any{"errors": []map[string]string{{"message": err.Error()}}}
	}
	writeJSON(w, status, envelope(cfapi.MessageOf(err), details))
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Connection successful",
		"serverInfo": s.serverInfo(),
	})
}

// handleProxy relays the request to the Cloudflare route it names and returns
// the upstream body unchanged.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	route := strings.TrimPrefix(r.URL.EscapedPath(), cloudflarePrefix)
	var body []byte
	if r.Method != http.MethodGet && r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, envelope("Unable to read request body", err.Error()))
			return
		}
		body = b
	}
	creds := s.credentials(r)
	resp, err := s.forwarder.Do(r.Context(), r.Method, route, creds, body, r.URL.RawQuery)
	if r.Method != http.MethodGet {
		s.audit("cloudflare_"+strings.ToLower(r.Method), map[string]any{
			"route":     route,
			"status":    cfapi.StatusOf(err),
			"zoneId":    creds.ZoneID,
			"accountId": creds.AccountID,
			"requestId": r.Header.Get("X-Request-Id"),
		})
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}
