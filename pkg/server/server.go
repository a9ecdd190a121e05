// Package server runs the gateway's HTTP and HTTPS listeners.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"mercator-hq/gatehouse/pkg/admin"
	"mercator-hq/gatehouse/pkg/config"
	"mercator-hq/gatehouse/pkg/limits/admission"
	"mercator-hq/gatehouse/pkg/limits/storage"
	"mercator-hq/gatehouse/pkg/proxy"
	"mercator-hq/gatehouse/pkg/proxy/middleware"
	"mercator-hq/gatehouse/pkg/routes"
	"mercator-hq/gatehouse/pkg/routing"
	"mercator-hq/gatehouse/pkg/security/auth"
	"mercator-hq/gatehouse/pkg/security/secrets"
	gwtls "mercator-hq/gatehouse/pkg/security/tls"
	"mercator-hq/gatehouse/pkg/telemetry/health"
	"mercator-hq/gatehouse/pkg/telemetry/metrics"
	"mercator-hq/gatehouse/pkg/telemetry/tracing"
)

// healthCheckTimeout bounds each readiness check.
const healthCheckTimeout = 2 * time.Second

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Server owns every gateway component and the listeners in front of them.
type Server struct {
	config *config.Config
	info   BuildInfo
	logger *slog.Logger

	routes    *routing.Table
	certs     *gwtls.Store
	resolver  *gwtls.SNIResolver
	manager   *routes.Manager
	secrets   *secrets.Resolver
	guard     *admission.Guard
	blocks    storage.Backend
	collector *metrics.Collector
	tracer    *tracing.Tracer
	health    *health.Checker
	handler   http.Handler

	mu           sync.RWMutex
	started      bool
	isRunning    bool
	servers      []*http.Server
	addrs        map[string]net.Addr
	ready        chan struct{}
	shutdownOnce sync.Once
}

// New builds the gateway from cfg. Nothing listens or watches until Start.
func New(cfg *config.Config, info BuildInfo, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		info:   info,
		logger: logger.With("component", "server"),
		routes: routing.NewTable(),
		certs:  gwtls.NewStore(),
		health: health.New(healthCheckTimeout),
		addrs:  make(map[string]net.Addr),
		ready:  make(chan struct{}),
	}
	s.resolver = gwtls.NewSNIResolver(s.certs, logger)
	s.collector = metrics.NewCollector(cfg.Telemetry.Metrics, nil)

	tracer, err := tracing.New(tracing.Config{
		Enabled:        cfg.Telemetry.Tracing.Enabled,
		ServiceName:    cfg.Telemetry.Tracing.ServiceName,
		ServiceVersion: info.Version,
		Endpoint:       cfg.Telemetry.Tracing.Endpoint,
		Insecure:       cfg.Telemetry.Tracing.Insecure,
		Timeout:        cfg.Telemetry.Tracing.Timeout,
		Sampler:        cfg.Telemetry.Tracing.Sampler,
		SampleRatio:    cfg.Telemetry.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	s.tracer = tracer

	if err := s.setupSecrets(logger); err != nil {
		return nil, multierr.Append(err, s.closeComponents(context.Background()))
	}

	s.manager, err = routes.NewManager(routes.Options{
		Dir:                    cfg.Routes.ConfigPath,
		ConfigSettleDelay:      cfg.Routes.ConfigSettleDelay,
		CertificateSettleDelay: cfg.Routes.CertificateSettleDelay,
		Routes:                 s.routes,
		Certificates:           s.certs,
		Loader:                 gwtls.NewLoader(logger),
		Secrets:                s.secrets,
		Logger:                 logger.With("component", "routes"),
		Recorder:               s.collector,
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create route manager: %w", err), s.closeComponents(context.Background()))
	}

	if cfg.Admission.Enabled {
		if err := s.setupAdmission(logger); err != nil {
			return nil, multierr.Append(err, s.closeComponents(context.Background()))
		}
	}

	s.health.RegisterCheck("routes_dir", health.DirectoryCheck(s.manager.Dir()))
	if s.blocks != nil {
		s.health.RegisterCheck("admission_store", health.PingCheck(s.blocks))
	}

	s.handler, err = s.buildHandler(logger)
	if err != nil {
		return nil, multierr.Append(err, s.closeComponents(context.Background()))
	}

	return s, nil
}

// setupSecrets builds the resolver for "${secret:name}" references. The
// environment is consulted before the secrets directory.
func (s *Server) setupSecrets(logger *slog.Logger) error {
	cfg := s.config.Secrets
	secretsLogger := logger.With("component", "secrets")

	providers := []secrets.Provider{secrets.NewEnvProvider(cfg.EnvPrefix)}
	if cfg.Directory != "" {
		files, err := secrets.NewFileProvider(cfg.Directory, cfg.Watch, secretsLogger)
		if err != nil {
			return fmt.Errorf("failed to open secrets directory: %w", err)
		}
		providers = append(providers, files)
	}

	s.secrets = secrets.NewResolver(providers, cfg.CacheTTL, secretsLogger)
	return nil
}

// adminKeys resolves the configured admin API keys. It returns nil when
// none are configured.
func (s *Server) adminKeys() (*auth.Validator, error) {
	configured := s.config.Admin.APIKeys
	if len(configured) == 0 {
		return nil, nil
	}

	resolved := make([]auth.APIKey, 0, len(configured))
	for i, k := range configured {
		key, err := s.secrets.Resolve(context.Background(), k.Key)
		if err != nil {
			return nil, fmt.Errorf("admin.api_keys[%d]: %w", i, err)
		}
		resolved = append(resolved, auth.APIKey{Name: k.Name, Key: key})
	}
	return auth.NewValidator(resolved)
}

func (s *Server) setupAdmission(logger *slog.Logger) error {
	cfg := s.config.Admission

	if cfg.PersistPath != "" {
		backend, err := storage.NewSQLiteBackend(cfg.PersistPath)
		if err != nil {
			return fmt.Errorf("failed to open block store: %w", err)
		}
		s.blocks = backend
	} else {
		s.blocks = storage.NewMemoryBackend()
	}

	s.guard = admission.NewGuard(admission.Config{
		MaxRequestsPerSecond: cfg.MaxRequestsPerSecond,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		TimeWindow:           cfg.TimeWindow(),
		BlockDuration:        cfg.BlockDuration(),
		SweepSchedule:        cfg.SweepSchedule,
	},
		admission.WithLogger(logger.With("component", "admission")),
		admission.WithBackend(s.blocks),
		admission.WithRecorder(s.collector),
	)
	return nil
}

// buildHandler assembles the chain shared by both listeners:
// Recovery -> RequestID -> Logging -> Admission -> Gateway.
func (s *Server) buildHandler(logger *slog.Logger) (http.Handler, error) {
	var local http.Handler
	if s.config.Admin.Enabled {
		keys, err := s.adminKeys()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve admin API keys: %w", err)
		}
		opts := admin.Options{
			Routes:       s.manager,
			Certificates: s.certs,
			Health:       s.health,
			APIKeys:      keys,
			Version:      s.info.Version,
			Commit:       s.info.Commit,
			BuildTime:    s.info.BuildTime,
			Logger:       logger.With("component", "admin"),
		}
		if s.guard != nil {
			opts.Blocks = s.guard
		}
		if s.config.Telemetry.Metrics.Enabled {
			opts.Metrics = s.collector.Handler()
			opts.MetricsPath = s.config.Telemetry.Metrics.Path
		}
		local = admin.New(opts)
	}

	gateway, err := proxy.NewGateway(proxy.Options{
		Routes: s.routes,
		Local:  local,
		Transport: proxy.NewTransport(proxy.TransportConfig{
			DialTimeout:         s.config.Upstream.DialTimeout,
			InsecureSkipVerify:  s.config.Upstream.InsecureSkipVerify,
			MaxIdleConnsPerHost: s.config.Upstream.MaxIdleConnsPerHost,
		}),
		Tracer:   s.tracer,
		Logger:   logger,
		Recorder: s.collector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	var handler http.Handler = gateway

	if s.guard != nil {
		handler = middleware.AdmissionMiddleware(s.guard)(handler)
	}
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)

	return handler, nil
}

// Handler returns the request chain served by both listeners.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Routes returns the live route table.
func (s *Server) Routes() *routing.Table {
	return s.routes
}

// Certificates returns the live certificate store.
func (s *Server) Certificates() *gwtls.Store {
	return s.certs
}

// TLSConfig returns the listener TLS configuration. Certificates are chosen
// per handshake from the server name.
func (s *Server) TLSConfig() (*tls.Config, error) {
	return s.config.Gateway.TLS.ToTLSConfig(s.resolver)
}

// Start loads routes, opens the configured listeners and blocks until ctx
// is cancelled, SIGINT/SIGTERM arrives or a listener fails. It then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server has already been started")
	}
	s.started = true
	s.isRunning = true
	s.mu.Unlock()

	if err := s.manager.Start(ctx); err != nil {
		return multierr.Append(fmt.Errorf("failed to load routes: %w", err), s.Shutdown(context.Background()))
	}
	if s.guard != nil {
		if err := s.guard.Start(ctx); err != nil {
			return multierr.Append(fmt.Errorf("failed to start admission control: %w", err), s.Shutdown(context.Background()))
		}
	}

	errChan := make(chan error, 2)
	if err := s.listen(errChan); err != nil {
		return multierr.Append(err, s.Shutdown(context.Background()))
	}

	s.health.MarkReady()
	close(s.ready)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("Received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return multierr.Append(err, s.Shutdown(context.Background()))
	}
}

// listen binds every configured address and serves it in the background.
func (s *Server) listen(errChan chan<- error) error {
	gw := s.config.Gateway
	if gw.HTTPAddress == "" && gw.HTTPSAddress == "" {
		return fmt.Errorf("no listener configured")
	}

	var tlsConfig *tls.Config
	if gw.HTTPSAddress != "" {
		var err error
		if tlsConfig, err = s.TLSConfig(); err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	type listener struct {
		name string
		addr string
		tls  *tls.Config
	}
	var pending []listener
	if gw.HTTPAddress != "" {
		pending = append(pending, listener{name: "http", addr: gw.HTTPAddress})
	}
	if gw.HTTPSAddress != "" {
		pending = append(pending, listener{name: "https", addr: gw.HTTPSAddress, tls: tlsConfig})
	}

	for _, l := range pending {
		ln, err := net.Listen("tcp", l.addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s (%s): %w", l.addr, l.name, err)
		}

		srv := s.newHTTPServer(l.tls)
		s.mu.Lock()
		s.servers = append(s.servers, srv)
		s.addrs[l.name] = ln.Addr()
		s.mu.Unlock()

		s.logger.Info("Starting listener",
			"listener", l.name,
			"address", ln.Addr().String(),
			"tls_enabled", l.tls != nil,
		)

		go func(name string, ln net.Listener, tlsEnabled bool) {
			var err error
			if tlsEnabled {
				err = srv.ServeTLS(ln, "", "")
			} else {
				err = srv.Serve(ln)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("%s listener error: %w", name, err)
			}
		}(l.name, ln, l.tls != nil)
	}

	return nil
}

// newHTTPServer leaves read and write timeouts unset so streamed bodies and
// event streams are never cut off.
func (s *Server) newHTTPServer(tlsConfig *tls.Config) *http.Server {
	gw := s.config.Gateway
	return &http.Server{
		Handler:           s.handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: gw.ReadHeaderTimeout,
		IdleTimeout:       gw.IdleTimeout,
		MaxHeaderBytes:    gw.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}
}

// Ready is closed once every listener is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address of the "http" or "https" listener.
func (s *Server) Addr(name string) net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addrs[name]
}

// Shutdown drains the listeners and releases every component. It is safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.health.MarkDraining()

		s.logger.Info("Initiating graceful shutdown", "timeout", s.config.Gateway.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Gateway.ShutdownTimeout)
		defer cancel()

		s.mu.RLock()
		servers := append([]*http.Server(nil), s.servers...)
		s.mu.RUnlock()

		var wg sync.WaitGroup
		errs := make([]error, len(servers))
		for i, srv := range servers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					errs[i] = fmt.Errorf("listener shutdown: %w", err)
				}
			}()
		}
		wg.Wait()
		shutdownErr = multierr.Combine(errs...)

		shutdownErr = multierr.Append(shutdownErr, s.closeComponents(shutdownCtx))
		if shutdownErr != nil {
			s.logger.Error("Error during shutdown", "error", shutdownErr)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("Gateway stopped")
	})

	return shutdownErr
}

func (s *Server) closeComponents(ctx context.Context) error {
	var err error
	if s.guard != nil {
		s.guard.Stop()
	}
	if s.manager != nil {
		err = multierr.Append(err, s.manager.Close())
	}
	if s.blocks != nil {
		err = multierr.Append(err, s.blocks.Close())
	}
	if s.secrets != nil {
		err = multierr.Append(err, s.secrets.Close())
	}
	err = multierr.Append(err, s.tracer.Shutdown(ctx))
	return err
}

// IsRunning reports whether Start is in progress.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
