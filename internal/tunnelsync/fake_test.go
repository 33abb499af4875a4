package tunnelsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cloudflare/cloudflare-go"
)

var errInjected = errors.New("injected failure")

// fakeAPI is an in-memory Cloudflare account with one zone.
type fakeAPI struct {
	mu      sync.Mutex
	records []cloudflare.DNSRecord
	tunnels []cloudflare.Tunnel
	configs map[string]cloudflare.TunnelConfiguration
	nextID  int
	// fail makes the named method return errInjected (for ids in failIDs when set).
	fail    map[string]bool
	failIDs map[string]bool
	// failN makes the next n calls of the named method fail.
	failN map[string]int
	// onConfigRead runs on every GetTunnelConfiguration call.
	onConfigRead func()
	calls        []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{configs: map[string]cloudflare.TunnelConfiguration{}, fail: map[string]bool{}, failIDs: map[string]bool{}, failN: map[string]int{}}
}

func (f *fakeAPI) addTunnel(id, name string, rules ...cloudflare.UnvalidatedIngressRule) {
	f.tunnels = append(f.tunnels, cloudflare.Tunnel{ID: id, Name: name, Status: "healthy"})
	f.configs[id] = cloudflare.TunnelConfiguration{Ingress: rules}
}

func (f *fakeAPI) addDeletedTunnel(id, name string) {
	now := time.Now()
	f.tunnels = append(f.tunnels, cloudflare.Tunnel{ID: id, Name: name, DeletedAt: &now})
}

func (f *fakeAPI) addRecord(id, typ, name, content string) {
	f.records = append(f.records, cloudflare.DNSRecord{ID: id, Type: typ, Name: name, Content: content})
}

func (f *fakeAPI) hasRecord(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.ContainsFunc(f.records, func(r cloudflare.DNSRecord) bool { return r.ID == id })
}

func (f *fakeAPI) failing(method, id string) bool {
	f.calls = append(f.calls, method)
	if f.failN[method] > 0 {
		f.failN[method]--
		return true
	}
	if !f.fail[method] {
		return false
	}
	return len(f.failIDs) == 0 || f.failIDs[id]
}

func (f *fakeAPI) ListDNSRecords(context.Context) ([]cloudflare.DNSRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing("ListDNSRecords", "") {
		return nil, errInjected
	}
	return slices.Clone(f.records), nil
}

func (f *fakeAPI) GetDNSRecord(_ context.Context, id string) (cloudflare.DNSRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing("GetDNSRecord", id) {
		return cloudflare.DNSRecord{}, errInjected
	}
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return cloudflare.DNSRecord{}, fmt.Errorf("record %s: not found", id)
}

func (f *fakeAPI) CreateDNSRecord(_ context.Context, p cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing("CreateDNSRecord", p.Name) {
		return cloudflare.DNSRecord{}, errInjected
	}
	f.nextID++
	rec := cloudflare.DNSRecord{ID: fmt.Sprintf("new-%d", f.nextID), Type: p.Type, Name: p.Name, Content: p.Content, TTL: p.TTL, Proxied: p.Proxied}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeAPI) UpdateDNSRecord(_ context.Context, p cloudflare.UpdateDNSRecordParams) (cloudflare.DNSRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing("UpdateDNSRecord", p.ID) {
		return cloudflare.DNSRecord{}, errInjected
	}
	for i, r := range f.records {
		if r.ID == p.ID {
			r.Type, r.Name, r.Content, r.TTL, r.Proxied = p.Type, p.Name, p.Content, p.TTL, p.Proxied
			f.records[i] = r
			return r, nil
		}
	}
	return cloudflare.DNSRecord{}, fmt.Errorf("record %s: not found", p.ID)
}

func (f *fakeAPI) DeleteDNSRecord(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing("DeleteDNSRecord", id) {
		return errInjected
	}
	for i, r := range f.records {
		if r.ID == id {
			f.records = slices.Delete(f.records, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("record %s: not found", id)
}

func (f *fakeAPI) ListTunnels(context.Context) ([]cloudflare.Tunnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing("ListTunnels", "") {
		return nil, errInjected
	}
	var out []cloudflare.Tunnel
	for _, t := range f.tunnels {
		if t.DeletedAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetTunnel(_ context.Context, id string) (cloudflare.Tunnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing("GetTunnel", id) {
		return cloudflare.Tunnel{}, errInjected
	}
	for _, t := range f.tunnels {
		if t.ID == id {
			return t, nil
		}
	}
	return cloudflare.Tunnel{}, ErrTunnelNotFound
}

func (f *fakeAPI) GetTunnelConfiguration(_ context.Context, id string) (cloudflare.TunnelConfigurationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onConfigRead != nil {
		f.onConfigRead()
	}
	if f.failing("GetTunnelConfiguration", id) {
		return cloudflare.TunnelConfigurationResult{}, errInjected
	}
	cfg := f.configs[id]
	cfg.Ingress = slices.Clone(cfg.Ingress)
	return cloudflare.TunnelConfigurationResult{TunnelID: id, Config: cfg, Version: 1}, nil
}

func (f *fakeAPI) UpdateTunnelConfiguration(_ context.Context, id string, cfg cloudflare.TunnelConfiguration) (cloudflare.TunnelConfigurationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing("UpdateTunnelConfiguration", id) {
		return cloudflare.TunnelConfigurationResult{}, errInjected
	}
	f.configs[id] = cfg
	return cloudflare.TunnelConfigurationResult{TunnelID: id, Config: cfg, Version: 2}, nil
}
