package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cfpanel/internal/cfapi"
	"cfpanel/internal/config"
	"cfpanel/internal/metrics"
	"cfpanel/internal/platform/logger"
	"cfpanel/internal/resolve"
	"cfpanel/internal/version"
	"cfpanel/internal/web"
	tlsutil "cfpanel/pkg/tls"
)

// allowedHeaders are the request headers browsers may send cross-origin.
var allowedHeaders = strings.Join([]string{
	"Origin", "Accept", "Content-Type", "Authorization", "X-Request-Id",
	cfapi.HeaderAPIKey, cfapi.HeaderEmail, cfapi.HeaderAccountID, cfapi.HeaderZoneID,
}, ", ")

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	log       *slog.Logger
	forwarder *cfapi.Forwarder
	resolver  *resolve.Resolver
	defaults  cfapi.Credentials
	started   time.Time

	auditMu   sync.Mutex
	auditFile *os.File
}

func NewServer(cfg *config.Config) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		BodyLimit:             cfg.Server.MaxRequestBytes,
		DisableStartupMessage: true,
	})

	log := logger.Slog()
	metrics.Init()

	srv := &Server{
		app:       app,
		cfg:       cfg,
		log:       log,
		forwarder: cfapi.NewForwarder(cfg.Cloudflare.APIURL, cfg.Cloudflare.Timeout),
		resolver:  resolve.New(cfg.Resolver.Address, cfg.Resolver.Timeout),
		defaults: cfapi.Credentials{
			APIKey:    cfg.Cloudflare.APIKey,
			Email:     cfg.Cloudflare.Email,
			AccountID: cfg.Cloudflare.AccountID,
			ZoneID:    cfg.Cloudflare.ZoneID,
		},
		started: time.Now(),
	}

	// Panic recovery, request id, metrics & logging
	app.Use(func(c *fiber.Ctx) (err error) {
		start := time.Now()
		metrics.HTTPInFlight.Inc()
		defer metrics.HTTPInFlight.Dec()
		rid := c.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
			c.Request().Header.Set("X-Request-Id", rid)
		}
		c.Set("X-Request-Id", rid)
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic", "err", rec, "requestId", rid, "path", c.Path())
				body := fiber.Map{
					"success":    false,
					"message":    "Internal server error",
					"serverInfo": srv.serverInfo(),
				}
				if !cfg.Production() {
					body["details"] = fmt.Sprint(rec)
				}
				err = c.Status(http.StatusInternalServerError).JSON(body)
			}
			lat := time.Since(start)
			status := c.Response().StatusCode()
			metrics.RecordHTTPRequest(c.Method(), c.Route().Path, status, lat)
			log.Debug("req", "method", c.Method(), "path", c.Path(), "status", status, "latency_ms", lat.Milliseconds(), "requestId", rid)
		}()
		return c.Next()
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.CORS.AllowOrigins,
		AllowMethods:  "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:  allowedHeaders,
		ExposeHeaders: "X-Request-Id",
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "0")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		if cfg.TLSConfigured() {
			c.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		return c.Next()
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
		Registry:      metrics.Registry(),
	})))
	app.Get("/api/v1/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "uptime": time.Since(srv.started).Round(time.Second).String()})
	})
	app.Get("/api/v1/version", func(c *fiber.Ctx) error { return c.JSON(version.Get()) })
	app.Get("/ready", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	app.Get("/live", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	app.Get("/api/v1/info", func(c *fiber.Ctx) error {
		info := srv.serverInfo()
		info["tls"] = cfg.TLSConfigured()
		info["defaults"] = fiber.Map{
			"apiKey":    srv.defaults.APIKey != "",
			"accountId": srv.defaults.AccountID != "",
			"zoneId":    srv.defaults.ZoneID != "",
		}
		return c.JSON(info)
	})

	// Gorilla Mux serves everything under /api; registered before the UI so APIs always match first.
	muxRouter := mux.NewRouter()
	muxRouter.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope("Route not found", nil))
	})
	muxRouter.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope("Method not allowed", nil))
	})
	srv.RegisterRoutes(muxRouter)
	app.Use("/api", adaptor.HTTPHandler(muxRouter))

	srv.mountUI()

	if cfg.Server.AuditFile != "" {
		if f, err := os.OpenFile(cfg.Server.AuditFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			srv.auditFile = f
		} else {
			log.Warn("audit log disabled", "path", cfg.Server.AuditFile, "error", err)
		}
	}
	return srv
}

// mountUI serves the single page UI from static_dir when set, else from the embedded copy.
func (s *Server) mountUI() {
	root := web.Static()
	readIndex := web.ReadIndex
	if dir := s.cfg.Server.StaticDir; dir != "" {
		root = http.Dir(dir)
		readIndex = func() ([]byte, error) { return os.ReadFile(filepath.Join(dir, "index.html")) }
	}
	serveIndex := func(c *fiber.Ctx) error {
		data, err := readIndex()
		if err != nil {
			return fiber.ErrNotFound
		}
		c.Type("html")
		c.Set("Cache-Control", "no-store")
		// filesystem leaves a 404 behind when it falls through
		return c.Status(http.StatusOK).Send(data)
	}
	s.app.Get("/", serveIndex)
	s.app.Get("/index.html", serveIndex)
	s.app.Use("/", filesystem.New(filesystem.Config{Root: root, Browse: false}))

	// SPA fallback to index.html
	s.app.Use(func(c *fiber.Ctx) error {
		p := c.Path()
		if c.Method() == http.MethodGet && !strings.HasPrefix(p, "/api") && !strings.HasPrefix(p, "/metrics") {
			return serveIndex(c)
		}
		return c.Status(http.StatusNotFound).JSON(envelope("Route not found", nil))
	})
}

func (s *Server) serverInfo() fiber.Map {
	return fiber.Map{"apiUrl": s.cfg.Cloudflare.APIURL, "port": s.cfg.Server.Port}
}

func (s *Server) Start() error {
	addr := s.cfg.HTTPAddr()
	if s.cfg.Server.TLS.SelfSigned && !s.cfg.TLSConfigured() {
		certPath, keyPath, err := tlsutil.EnsurePairExists(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile, []string{"localhost", "127.0.0.1", s.cfg.Server.Host}, 0)
		if err != nil {
			return fmt.Errorf("self-signed certificate: %w", err)
		}
		s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile = certPath, keyPath
		s.log.Warn("using self-signed certificate", "cert", certPath)
	}
	if s.cfg.TLSConfigured() {
		var min uint16 = tls.VersionTLS12
		if s.cfg.Server.TLS.MinVersion == "1.3" {
			min = tls.VersionTLS13
		}
		cert, err := tls.LoadX509KeyPair(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		if err != nil {
			return err
		}
		tlsCfg := &tls.Config{MinVersion: min, Certificates: []tls.Certificate{cert}}
		s.log.Info("starting HTTPS server", "addr", addr, "min_tls", s.cfg.Server.TLS.MinVersion, "api_url", s.cfg.Cloudflare.APIURL)
		ln, err := tls.Listen("tcp", addr, tlsCfg)
		if err != nil {
			return err
		}
		return s.app.Listener(ln)
	}
	s.log.Info("starting HTTP server", "addr", addr, "api_url", s.cfg.Cloudflare.APIURL)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error { return s.ShutdownWithContext(context.Background()) }

func (s *Server) ShutdownWithContext(ctx context.Context) error {
	c, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := s.app.ShutdownWithContext(c)
	s.auditMu.Lock()
	if s.auditFile != nil {
		_ = s.auditFile.Close()
		s.auditFile = nil
	}
	s.auditMu.Unlock()
	return err
}

// audit logs a JSON line (best-effort; swallow errors). Credentials never go in meta.
func (s *Server) audit(event string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["event"] = event
	meta["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	data, _ := json.Marshal(meta)
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	if s.auditFile != nil {
		_, _ = s.auditFile.Write(append(data, '\n'))
	}
}

func (s *Server) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/admin/loglevel", s.handleLogLevel).Methods("PATCH")
	v1.HandleFunc("/config", s.handleConfig).Methods("GET")
	v1.HandleFunc("/resolve", s.handleResolve).Methods("GET")

	cf := router.PathPrefix("/api/cloudflare").Subrouter()
	cf.HandleFunc("/test-connection", s.handleTestConnection).Methods("GET")

	// Reconciliation and ingress editing; registered before the pass-through routes.
	cf.HandleFunc("/sync/orphans", s.handleOrphans).Methods("GET")
	cf.HandleFunc("/sync/orphans/dns/cleanup", s.handleCleanupDNS).Methods("POST")
	cf.HandleFunc("/sync/cleanup", s.handleFullCleanup).Methods("POST")
	cf.HandleFunc("/sync/dns/{id}", s.handleSafeDelete).Methods("DELETE")
	cf.HandleFunc("/sync/verify", s.handleVerify).Methods("GET")
	cf.HandleFunc("/tunnels/{id}/ingress", s.handleIngressAdd).Methods("POST")
	cf.HandleFunc("/tunnels/{id}/ingress", s.handleIngressEdit).Methods("PUT")
	cf.HandleFunc("/tunnels/{id}/ingress", s.handleIngressDelete).Methods("DELETE")

	// Pass-through proxy
	cf.HandleFunc("/dns", s.handleProxy).Methods("GET", "POST")
	cf.HandleFunc("/dns/{id}", s.handleProxy).Methods("GET", "PUT", "PATCH", "DELETE")
	cf.HandleFunc("/tunnels", s.handleProxy).Methods("GET", "POST")
	cf.HandleFunc("/tunnels/{id}", s.handleProxy).Methods("GET", "DELETE")
	cf.HandleFunc("/tunnels/{id}/configurations", s.handleProxy).Methods("GET", "PUT", "PATCH", "DELETE")
	cf.HandleFunc("/tunnels/{id}/delete_config", s.handleProxy).Methods("PUT", "DELETE")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// envelope is the error body every /api failure uses.
func envelope(message string, details any) map[string]any {
	body := map[string]any{"success": false, "message": message}
	if details != nil {
		body["details"] = details
	}
	return body
}

// handleLogLevel adjusts the global log level.
func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Level string `json:"level"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := logger.SetLevel(body.Level); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope("level must be debug|info|warn|error", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"level": logger.Level()})
	s.audit("loglevel_change", map[string]any{"level": body.Level, "requestId": r.Header.Get("X-Request-Id")})
}

// handleConfig returns the effective configuration with secrets redacted.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	data, err := s.cfg.MarshalEffective(format)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope(err.Error(), nil))
		return
	}
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/yaml")
	}
	_, _ = w.Write(data)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, envelope("name is required", nil))
		return
	}
	ans, err := s.resolver.Lookup(r.Context(), name)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, envelope("DNS lookup failed", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ans)
}
