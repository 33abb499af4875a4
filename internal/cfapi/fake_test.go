package cfapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeCloudflare serves a small subset of the v4 API from memory.
type fakeCloudflare struct {
	mu       sync.Mutex
	records  []map[string]any
	tunnels  []map[string]any
	config   map[string]any
	lastReq  *http.Request
	lastBody []byte
}

func newFakeCloudflare(t *testing.T) (*fakeCloudflare, *httptest.Server) {
	t.Helper()
	f := &fakeCloudflare{
		records: []map[string]any{
			{"id": "r1", "type": "CNAME", "name": "app.example.com", "content": "t1.cfargotunnel.com", "proxied": true, "ttl": 1},
			{"id": "r2", "type": "A", "name": "www.example.com", "content": "192.0.2.10", "ttl": 300},
		},
		tunnels: []map[string]any{{"id": "t1", "name": "prod", "status": "healthy"}},
		config: map[string]any{"ingress": []map[string]any{
			{"hostname": "app.example.com", "service": "http://localhost:8080"},
			{"service": "http_status:404"},
		}},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/client/v4/zones/zone1/dns_records", func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		if r.Method == http.MethodPost {
			var rec map[string]any
			_ = json.Unmarshal(f.lastBody, &rec)
			rec["id"] = "r-new"
			f.mu.Lock()
			f.records = append(f.records, rec)
			f.mu.Unlock()
			writeResult(w, rec, nil)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		writeResult(w, f.records, pageInfo(len(f.records)))
	})
	mux.HandleFunc("/client/v4/zones/zone1/dns_records/", func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		id := r.URL.Path[len("/client/v4/zones/zone1/dns_records/"):]
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, rec := range f.records {
			if rec["id"] != id {
				continue
			}
			switch r.Method {
			case http.MethodDelete:
				f.records = append(f.records[:i], f.records[i+1:]...)
				writeResult(w, map[string]any{"id": id}, nil)
			case http.MethodPut, http.MethodPatch:
				var upd map[string]any
				_ = json.Unmarshal(f.lastBody, &upd)
				for k, v := range upd {
					rec[k] = v
				}
				writeResult(w, rec, nil)
			default:
				writeResult(w, rec, nil)
			}
			return
		}
		writeError(w, http.StatusNotFound, 81044, "Record does not exist.")
	})
	mux.HandleFunc("/client/v4/accounts/acct1/cfd_tunnel", func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		writeResult(w, f.tunnels, pageInfo(len(f.tunnels)))
	})
	mux.HandleFunc("/client/v4/accounts/acct1/tunnels", func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		writeResult(w, f.tunnels, pageInfo(len(f.tunnels)))
	})
	mux.HandleFunc("/client/v4/accounts/acct1/cfd_tunnel/t1", func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		writeResult(w, f.tunnels[0], nil)
	})
	mux.HandleFunc("/client/v4/accounts/acct1/cfd_tunnel/t1/configurations", func(w http.ResponseWriter, r *http.Request) {
		f.capture(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodPut {
			var body struct {
				Config map[string]any `json:"config"`
			}
			_ = json.Unmarshal(f.lastBody, &body)
			f.config = body.Config
		}
		writeResult(w, map[string]any{"tunnel_id": "t1", "version": 3, "config": f.config}, nil)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeCloudflare) capture(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.lastReq = r
	f.lastBody = body
	f.mu.Unlock()
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
