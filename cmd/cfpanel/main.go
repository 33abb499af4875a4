package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cfpanel/internal/api"
	"cfpanel/internal/config"
	"cfpanel/internal/diagnostics/selfcheck"
	"cfpanel/internal/platform/logger"
	"cfpanel/internal/secrets"
	"cfpanel/internal/secrets/vault"
	"cfpanel/internal/telemetry"
	"cfpanel/internal/version"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		code := 1
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(code)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:           "cfpanel",
		Short:         "Cloudflare DNS and tunnel admin panel",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	// serve is the default command
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, newOrphansCmd(), newCleanupCmd(), newConfigCmd(), newVersionCmd(), newDiagnosticsCmd())
	return root
}

// bootstrap loads and validates configuration, initialises logging and resolves
// vault:// references in the default credentials.
func bootstrap(ctx context.Context) (*config.Config, *vault.Client, error) {
	cfg := config.Load()
	errs, warns := cfg.Validate()
	for _, w := range warns {
		fmt.Fprintf(os.Stderr, "config warning: %s\n", w)
	}
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config error: %s\n", e)
		}
		return nil, nil, &exitError{code: 2, err: fmt.Errorf("invalid configuration (%d errors)", len(errs))}
	}
	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	vc, err := vault.NewClient(cfg.Secrets.Vault)
	if err != nil {
		return nil, nil, err
	}
	if vc != nil {
		if err := secrets.ReplacePlaceholders(ctx, &cfg.Cloudflare, vc); err != nil {
			return nil, nil, fmt.Errorf("resolve secrets: %w", err)
		}
	} else if err := unresolvedReferences(cfg.Cloudflare); err != nil {
		return nil, nil, err
	}
	return cfg, vc, nil
}

// unresolvedReferences rejects vault:// credentials when there is no vault to resolve them.
func unresolvedReferences(cf config.CloudflareConfig) error {
	fields := []struct{ key, value string }{
		{"cloudflare.api_key", cf.APIKey},
		{"cloudflare.email", cf.Email},
		{"cloudflare.account_id", cf.AccountID},
		{"cloudflare.zone_id", cf.ZoneID},
	}
	for _, f := range fields {
		if secrets.IsReference(f.value) {
			return fmt.Errorf("%s is a vault reference but secrets.vault is disabled", f.key)
		}
	}
	return nil
}

func newServeCmd() *cobra.Command {
	var (
		host    string
		port    int
		tlsCert string
		tlsKey  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and admin UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, vc, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if tlsCert != "" {
				cfg.Server.TLS.CertFile = tlsCert
			}
			if tlsKey != "" {
				cfg.Server.TLS.KeyFile = tlsKey
			}
			log := logger.Slog()
			log.Info("starting cfpanel", "version", version.Version, "commit", version.Commit, "date", version.Date)

			deps := selfcheck.Dependencies{}
			if vc != nil {
				deps.Vault = vc
			}
			checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			res, err := selfcheck.Run(checkCtx, cfg, deps)
			cancel()
			if err != nil {
				return fmt.Errorf("startup self-check: %w", err)
			}
			for _, w := range res.Warnings {
				log.Warn("self-check", "warning", w)
			}

			shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
			if err != nil {
				log.Warn("tracing disabled", "error", err)
				shutdownTracing = func(context.Context) error { return nil }
			}

			srv := api.NewServer(cfg)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				_ = shutdownTracing(context.Background())
				return fmt.Errorf("server: %w", err)
			case <-ctx.Done():
			}
			log.Info("shutdown signal received")
			sdCtx, cancelSd := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelSd()
			if err := srv.ShutdownWithContext(sdCtx); err != nil {
				log.Error("graceful shutdown failed", "err", err)
			}
			if err := shutdownTracing(sdCtx); err != nil {
				log.Warn("tracing shutdown", "err", err)
			}
			log.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to bind (overrides config, default 3001)")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate (PEM)")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS private key (PEM)")
	return cmd
}
