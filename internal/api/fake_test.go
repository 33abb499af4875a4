package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cfpanel/internal/config"
)

// fakeCloudflare serves zone1 and acct1 from memory: tunnel t1 routes
// app.example.com (DNS r1) and stale.example.com (no DNS); r2 points at a
// tunnel that no longer exists.
type fakeCloudflare struct {
	mu      sync.Mutex
	records map[string]map[string]any
	config  map[string]any
	headers http.Header
	paths   []string
}

func newFakeCloudflare(t *testing.T) (*fakeCloudflare, string) {
	t.Helper()
	f := &fakeCloudflare{
		records: map[string]map[string]any{
			"r1": {"id": "r1", "type": "CNAME", "name": "app.example.com", "content": "t1.cfargotunnel.com", "proxied": true, "ttl": 1},
			"r2": {"id": "r2", "type": "CNAME", "name": "orphan.example.com", "content": "t9.cfargotunnel.com", "proxied": true, "ttl": 1},
			"r3": {"id": "r3", "type": "A", "name": "www.example.com", "content": "192.0.2.10", "ttl": 300},
		},
		config: map[string]any{"ingress": []any{
			map[string]any{"hostname": "app.example.com", "service": "http://localhost:8080"},
			map[string]any{"hostname": "stale.example.com", "service": "http://localhost:8081"},
			map[string]any{"service": "http_status:404"},
		}},
	}
	tunnel := map[string]any{"id": "t1", "name": "prod", "status": "healthy", "created_at": "2024-01-01T00:00:00Z"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /client/v4/zones/zone1/dns_records", func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		list := make([]map[string]any, 0, len(f.records))
		for _, id := range []string{"r1", "r2", "r3", "r-new"} {
			if rec, ok := f.records[id]; ok {
				list = append(list, rec)
			}
		}
		writeResult(w, list, pageInfo(len(list)))
	})
	mux.HandleFunc("POST /client/v4/zones/zone1/dns_records", func(w http.ResponseWriter, r *http.Request) {
		body := f.capture(r)
		var rec map[string]any
		if err := json.Unmarshal(body, &rec); err != nil {
			writeError(w, http.StatusBadRequest, 1004, "DNS Validation Error")
			return
		}
		rec["id"] = "r-new"
		f.mu.Lock()
		f.records["r-new"] = rec
		f.mu.Unlock()
		writeResult(w, rec, nil)
	})
	mux.HandleFunc("/client/v4/zones/zone1/dns_records/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		rec, ok := f.records[id]
		if !ok {
			writeError(w, http.StatusNotFound, 81044, "Record does not exist.")
			return
		}
		if r.Method == http.MethodDelete {
			delete(f.records, id)
			writeResult(w, map[string]any{"id": id}, nil)
			return
		}
		writeResult(w, rec, nil)
	})
	listTunnels := func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		writeResult(w, []any{tunnel}, pageInfo(1))
	}
	mux.HandleFunc("GET /client/v4/accounts/acct1/cfd_tunnel", listTunnels)
	mux.HandleFunc("GET /client/v4/accounts/acct1/tunnels", listTunnels)
	mux.HandleFunc("GET /client/v4/accounts/acct1/cfd_tunnel/t1", func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		writeResult(w, tunnel, nil)
	})
	mux.HandleFunc("/client/v4/accounts/acct1/cfd_tunnel/t1/configurations", func(w http.ResponseWriter, r *http.Request) {
		body := f.capture(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodPut {
			var in struct {
				Config map[string]any `json:"config"`
			}
			_ = json.Unmarshal(body, &in)
			f.config = in.Config
		}
		writeResult(w, map[string]any{"tunnel_id": "t1", "version": 4, "config": f.config}, nil)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		writeError(w, http.StatusNotFound, 7003, "Could not route to "+r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv.URL + "/client/v4"
}

func (f *fakeCloudflare) capture(r *http.Request) []byte {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.headers = r.Header.Clone()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)
	f.mu.Unlock()
	return body
}

func (f *fakeCloudflare) sawPath(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, seen := range f.paths {
		if seen == p {
			return true
		}
	}
	return false
}

func pageInfo(n int) map[string]any {
	return map[string]any{"page": 1, "per_page": 100, "count": n, "total_count": n, "total_pages": 1}
}

func writeResult(w http.ResponseWriter, result any, info map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{"success": true, "errors": []any{}, "messages": []any{}, "result": result}
	if info != nil {
		body["result_info"] = info
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false, "messages": []any{}, "result": nil,
		"errors": []map[string]any{{"code": code, "message": msg}},
	})
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 3001
	cfg.Server.MaxRequestBytes = 1 << 20
	cfg.Server.Environment = "development"
	cfg.Server.AuditFile = filepath.Join(t.TempDir(), "audit.log")
	cfg.Server.CORS.AllowOrigins = "*"
	cfg.Cloudflare.APIURL = apiURL
	cfg.Cloudflare.Timeout = 5 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Resolver.Address = "127.0.0.1:1"
	cfg.Resolver.Timeout = time.Second
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv := NewServer(cfg)
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv
}

// do runs req through the fiber app without a time limit.
func do(t *testing.T, srv *Server, method, target, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, data
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return m
}

func readAudit(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := os.ReadFile(cfg.Server.AuditFile)
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	return string(data)
}

var fullCreds = map[string]string{
	"X-CF-API-KEY":    "key123",
	"X-CF-EMAIL":      "ops@example.com",
	"X-CF-ZONE-ID":    "zone1",
	"X-CF-ACCOUNT-ID": "acct1",
}
