package cfapi

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cloudflare/cloudflare-go"
)

// Options configure the typed client.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// Client is a cloudflare-go API bound to one zone and one account.
type Client struct {
	api     *cloudflare.API
	zone    *cloudflare.ResourceContainer
	account *cloudflare.ResourceContainer
}

// NewClient authenticates with key+email when an email is present, with an API token otherwise.
func NewClient(creds Credentials, opts Options) (*Client, error) {
	if creds.APIKey == "" {
		return nil, &MissingCredentialsError{Required: []string{"API key"}}
	}
	copts := []cloudflare.Option{
		cloudflare.HTTPClient(newHTTPClient(opts.Timeout)),
		cloudflare.UsingRetryPolicy(0, 0, 0),
		cloudflare.UsingRateLimit(math.MaxFloat64),
	}
	if opts.BaseURL != "" {
		copts = append(copts, cloudflare.BaseURL(opts.BaseURL))
	}
	var (
		api *cloudflare.API
		err error
	)
	if creds.Email != "" {
		api, err = cloudflare.New(creds.APIKey, creds.Email, copts...)
	} else {
		api, err = cloudflare.NewWithAPIToken(creds.APIKey, copts...)
	}
	if err != nil {
		return nil, fmt.Errorf("cloudflare client: %w", err)
	}
	return &Client{
		api:     api,
		zone:    cloudflare.ZoneIdentifier(creds.ZoneID),
		account: cloudflare.AccountIdentifier(creds.AccountID),
	}, nil
}

func (c *Client) ListDNSRecords(ctx context.Context) ([]cloudflare.DNSRecord, error) {
	recs, _, err := c.api.ListDNSRecords(ctx, c.zone, cloudflare.ListDNSRecordsParams{})
	if err != nil {
		return nil, fmt.Errorf("list dns records: %w", err)
	}
	return recs, nil
}

func (c *Client) GetDNSRecord(ctx context.Context, id string) (cloudflare.DNSRecord, error) {
	rec, err := c.api.GetDNSRecord(ctx, c.zone, id)
	if err != nil {
		return cloudflare.DNSRecord{}, fmt.Errorf("get dns record %s: %w", id, err)
	}
	return rec, nil
}

func (c *Client) CreateDNSRecord(ctx context.Context, p cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error) {
	rec, err := c.api.CreateDNSRecord(ctx, c.zone, p)
	if err != nil {
		return cloudflare.DNSRecord{}, fmt.Errorf("create dns record %s: %w", p.Name, err)
	}
	return rec, nil
}

func (c *Client) UpdateDNSRecord(ctx context.Context, p cloudflare.UpdateDNSRecordParams) (cloudflare.DNSRecord, error) {
	rec, err := c.api.UpdateDNSRecord(ctx, c.zone, p)
	if err != nil {
		return cloudflare.DNSRecord{}, fmt.Errorf("update dns record %s: %w", p.ID, err)
	}
	return rec, nil
}

func (c *Client) DeleteDNSRecord(ctx context.Context, id string) error {
	if err := c.api.DeleteDNSRecord(ctx, c.zone, id); err != nil {
		return fmt.Errorf("delete dns record %s: %w", id, err)
	}
	return nil
}

// ListTunnels returns tunnels that have not been deleted.
func (c *Client) ListTunnels(ctx context.Context) ([]cloudflare.Tunnel, error) {
	deleted := false
	tunnels, _, err := c.api.ListTunnels(ctx, c.account, cloudflare.TunnelListParams{IsDeleted: &deleted})
	if err != nil {
		return nil, fmt.Errorf("list tunnels: %w", err)
	}
	return tunnels, nil
}

func (c *Client) GetTunnel(ctx context.Context, id string) (cloudflare.Tunnel, error) {
	t, err := c.api.GetTunnel(ctx, c.account, id)
	if err != nil {
		return cloudflare.Tunnel{}, fmt.Errorf("get tunnel %s: %w", id, err)
	}
	return t, nil
}

func (c *Client) GetTunnelConfiguration(ctx context.Context, id string) (cloudflare.TunnelConfigurationResult, error) {
	res, err := c.api.GetTunnelConfiguration(ctx, c.account, id)
	if err != nil {
		return cloudflare.TunnelConfigurationResult{}, fmt.Errorf("get tunnel %s configuration: %w", id, err)
	}
	return res, nil
}

func (c *Client) UpdateTunnelConfiguration(ctx context.Context, id string, cfg cloudflare.TunnelConfiguration) (cloudflare.TunnelConfigurationResult, error) {
	res, err := c.api.UpdateTunnelConfiguration(ctx, c.account, cloudflare.TunnelConfigurationParams{TunnelID: id, Config: cfg})
	if err != nil {
		return cloudflare.TunnelConfigurationResult{}, fmt.Errorf("update tunnel %s configuration: %w", id, err)
	}
	return res, nil
}
