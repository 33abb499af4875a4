package tunnelsync

import (
	"context"
	"fmt"
	"log/slog"

	"cfpanel/internal/metrics"
	"cfpanel/internal/platform/logger"

	"github.com/cloudflare/cloudflare-go"
	"golang.org/x/sync/errgroup"
)

// configReadLimit bounds concurrent tunnel configuration reads during scans.
const configReadLimit = 4

type Service struct {
	api API
	log *slog.Logger
}

// New returns a Service. A nil log uses the process logger.
func New(api API, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Slog()
	}
	return &Service{api: api, log: log.With("component", "tunnelsync")}
}

// snapshot lists DNS records and tunnels concurrently.
func (s *Service) snapshot(ctx context.Context) ([]cloudflare.DNSRecord, []cloudflare.Tunnel, error) {
	var (
		records []cloudflare.DNSRecord
		tunnels []cloudflare.Tunnel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.api.ListDNSRecords(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		tunnels, err = s.api.ListTunnels(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return records, tunnels, nil
}

// tunnel fetches id and rejects deleted tunnels.
func (s *Service) tunnel(ctx context.Context, id string) (cloudflare.Tunnel, error) {
	if id == "" {
		return cloudflare.Tunnel{}, ErrTunnelNotFound
	}
	t, err := s.api.GetTunnel(ctx, id)
	if err != nil {
		return cloudflare.Tunnel{}, err
	}
	if t.DeletedAt != nil {
		return cloudflare.Tunnel{}, fmt.Errorf("%s: %w", id, ErrTunnelDeleted)
	}
	return t, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func observe(op string, err error) {
	metrics.RecordSync(op, outcome(err))
}
