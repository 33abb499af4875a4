// Package tunnelsync keeps Cloudflare DNS records and tunnel ingress rules consistent.
package tunnelsync

import (
	"context"
	"net/http"

	"github.com/cloudflare/cloudflare-go"
)

// API is the Cloudflare surface the consistency logic needs. cfapi.Client implements it.
type API interface {
	ListDNSRecords(ctx context.Context) ([]cloudflare.DNSRecord, error)
	GetDNSRecord(ctx context.Context, id string) (cloudflare.DNSRecord, error)
	CreateDNSRecord(ctx context.Context, p cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error)
	UpdateDNSRecord(ctx context.Context, p cloudflare.UpdateDNSRecordParams) (cloudflare.DNSRecord, error)
	DeleteDNSRecord(ctx context.Context, id string) error
	ListTunnels(ctx context.Context) ([]cloudflare.Tunnel, error)
	GetTunnel(ctx context.Context, id string) (cloudflare.Tunnel, error)
	GetTunnelConfiguration(ctx context.Context, id string) (cloudflare.TunnelConfigurationResult, error)
	UpdateTunnelConfiguration(ctx context.Context, id string, cfg cloudflare.TunnelConfiguration) (cloudflare.TunnelConfigurationResult, error)
}

// Error is a domain failure that carries the HTTP status it maps to.
type Error struct {
	msg    string
	status int
}

func (e *Error) Error() string   { return e.msg }
func (e *Error) HTTPStatus() int { return e.status }

var (
	ErrTunnelNotFound   = &Error{"tunnel not found", http.StatusNotFound}
	ErrTunnelDeleted    = &Error{"tunnel has been deleted", http.StatusGone}
	ErrIngressNotFound  = &Error{"ingress rule not found", http.StatusNotFound}
	ErrInvalidIngress   = &Error{"invalid ingress rule", http.StatusBadRequest}
	ErrDuplicateIngress = &Error{"ingress rule for hostname already exists", http.StatusConflict}
)
