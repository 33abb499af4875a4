package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/spf13/cobra"

	"cfpanel/internal/cfapi"
	"cfpanel/internal/config"
	"cfpanel/internal/diagnostics"
	"cfpanel/internal/diagnostics/selfcheck"
	"cfpanel/internal/platform/logger"
	"cfpanel/internal/tunnelsync"
	"cfpanel/internal/version"
)

// defaultService builds a reconciliation service from the configured default credentials.
func defaultService(cfg *config.Config) (*tunnelsync.Service, error) {
	creds := cfapi.Credentials{
		APIKey:    cfg.Cloudflare.APIKey,
		Email:     cfg.Cloudflare.Email,
		AccountID: cfg.Cloudflare.AccountID,
		ZoneID:    cfg.Cloudflare.ZoneID,
	}
	if err := creds.Require(cfapi.ScopeZoneAndAccount); err != nil {
		return nil, fmt.Errorf("%w (set cloudflare.api_key, cloudflare.zone_id and cloudflare.account_id)", err)
	}
	client, err := cfapi.NewClient(creds, cfapi.Options{BaseURL: cfg.Cloudflare.APIURL, Timeout: cfg.Cloudflare.Timeout})
	if err != nil {
		return nil, err
	}
	return tunnelsync.New(client, logger.Slog()), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func withTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}

type orphanReport struct {
	DNSRecords  []cloudflare.DNSRecord      `json:"dnsRecords"`
	Ingress     []tunnelsync.IngressOrphans `json:"ingress"`
	TotalIssues int                         `json:"totalIssues"`
	DryRun      bool                        `json:"dryRun,omitempty"`
}

func findOrphans(ctx context.Context, svc *tunnelsync.Service) (orphanReport, error) {
	records, err := svc.FindOrphanedDNSRecords(ctx)
	if err != nil {
		return orphanReport{}, err
	}
	ingress, err := svc.FindOrphanedIngressRules(ctx)
	if err != nil {
		return orphanReport{}, err
	}
	return orphanReport{DNSRecords: records, Ingress: ingress, TotalIssues: len(records) + len(ingress)}, nil
}

func newOrphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List DNS records and ingress hostnames that are out of sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout(cmd, 2*time.Minute)
			defer cancel()
			cfg, _, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			svc, err := defaultService(cfg)
			if err != nil {
				return err
			}
			report, err := findOrphans(ctx, svc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete orphaned tunnel DNS records and report orphaned ingress hostnames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout(cmd, 5*time.Minute)
			defer cancel()
			cfg, _, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			svc, err := defaultService(cfg)
			if err != nil {
				return err
			}
			if dryRun {
				report, err := findOrphans(ctx, svc)
				if err != nil {
					return err
				}
				report.DryRun = true
				return printJSON(cmd.OutOrStdout(), report)
			}
			report, err := svc.PerformFullCleanup(ctx)
			if err != nil {
				return err
			}
			for _, m := range report.Messages {
				fmt.Fprintln(cmd.ErrOrStderr(), m)
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Errors > 0 {
				return &exitError{code: 3, err: fmt.Errorf("%d records could not be deleted", report.Errors)}
			}
			if report.IngressScanError != "" {
				return &exitError{code: 3, err: fmt.Errorf("ingress scan: %s", report.IngressScanError)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list what would be cleaned up")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Load().MarshalEffective(format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cfpanel %s\n", version.Full())
		},
	}
}

func newDiagnosticsCmd() *cobra.Command {
	var (
		format     string
		includeEnv bool
	)
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Print build, runtime and configuration details for bug reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if err := diagnostics.Print(cmd.OutOrStdout(), diagnostics.Collect(cfg, includeEnv), format); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, 10*time.Second)
			defer cancel()
			// vault health is only checked by serve, where the client exists
			cfg.Secrets.Vault.Enabled = false
			res, err := selfcheck.Run(ctx, cfg, selfcheck.Dependencies{})
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "self-check failed: %v\n", err)
				return nil
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "self-check warning: %s\n", w)
			}
			if len(res.Warnings) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "self-check: ok")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&includeEnv, "env", false, "Include selected environment variables")
	return cmd
}
