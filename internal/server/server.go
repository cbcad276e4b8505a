// Package server assembles the inspector's HTTP front-end: the inspector
// API routes, health and metrics endpoints, the API security pipeline,
// and config hot reload.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hybroai/a2a-agent-inspector/internal/agentcard"
	"github.com/hybroai/a2a-agent-inspector/internal/audit"
	"github.com/hybroai/a2a-agent-inspector/internal/backend"
	"github.com/hybroai/a2a-agent-inspector/internal/config"
	"github.com/hybroai/a2a-agent-inspector/internal/health"
	"github.com/hybroai/a2a-agent-inspector/internal/inspector"
	"github.com/hybroai/a2a-agent-inspector/internal/security"
)

// Server is the inspector HTTP server assembling all components.
type Server struct {
	cfg        *config.Config
	configPath string
	version    string

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener // if non-nil, Start uses this instead of creating one

	service       *inspector.Service
	verifier      *agentcard.JWSVerifier
	pipeline      *security.Pipeline
	cors          *corsPolicy
	healthHandler *health.Handler
	reloader      *config.Reloader
	auditLogger   *audit.Logger
	metrics       *audit.Metrics
	logger        *slog.Logger
	level         *slog.LevelVar
}

// Option customizes a Server.
type Option func(*buildOptions)

type buildOptions struct {
	configPath string
	listener   net.Listener
	backend    backend.Backend
	resolver   security.Resolver
	logOutput  io.Writer
}

// WithConfigPath enables hot reload of the file at path.
func WithConfigPath(path string) Option {
	return func(o *buildOptions) { o.configPath = path }
}

// WithListener makes Start serve on ln.
func WithListener(ln net.Listener) Option {
	return func(o *buildOptions) { o.listener = ln }
}

// WithBackend bypasses client generation selection.
func WithBackend(b backend.Backend) Option {
	return func(o *buildOptions) { o.backend = b }
}

// WithResolver sets the DNS resolver used by the admission guard.
func WithResolver(r security.Resolver) Option {
	return func(o *buildOptions) { o.resolver = r }
}

// WithLogOutput redirects the logger, which otherwise follows logging.output.
func WithLogOutput(w io.Writer) Option {
	return func(o *buildOptions) { o.logOutput = w }
}

// New creates a Server from configuration. It selects the client
// generation, so it may take a few seconds with client "auto".
func New(ctx context.Context, cfg *config.Config, version string, opts ...Option) (*Server, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	// 1. Logger with a reloadable level
	out := o.logOutput
	if out == nil {
		out = logOutput(cfg.Logging.Output)
	}
	logger, level := BuildLogger(cfg.Logging, out)

	// 2. Metrics and audit logging
	metrics := audit.NewMetrics()
	auditLogger := audit.NewLogger(logger, audit.SamplingFromConfig(cfg.Logging.Audit))

	// 3. Inspector service
	built, err := BuildInspector(ctx, cfg, Dependencies{
		Logger:   logger,
		Metrics:  metrics,
		Backend:  o.backend,
		Resolver: o.resolver,
	})
	if err != nil {
		return nil, err
	}
	metrics.SetBuildInfo(version, runtime.Version(), built.Service.Generation())

	// 4. API security pipeline
	pipeline := security.BuildPipeline(security.PipelineConfig{
		RateLimit:       cfg.Security.RateLimit,
		TrustedProxies:  cfg.Listen.TrustedProxies,
		MaxBodySize:     int64(cfg.Inspector.MaxMessageSize) + 4096,
		GlobalRateLimit: cfg.Listen.GlobalRateLimit,
		OnRateLimited: func(ip string) {
			metrics.RecordRateLimitHit()
			logger.Warn("rate limit exceeded", "client_ip", ip)
		},
	})

	s := &Server{
		cfg:           cfg,
		configPath:    o.configPath,
		version:       version,
		listener:      o.listener,
		service:       built.Service,
		verifier:      built.Verifier,
		pipeline:      pipeline,
		cors:          newCORSPolicy(cfg.CORS),
		healthHandler: health.NewHandler(built.Service, version, cfg.Health.LivenessPath, cfg.Health.ReadinessPath),
		auditLogger:   auditLogger,
		metrics:       metrics,
		logger:        logger,
		level:         level,
	}

	// 5. Hot reload
	if cfg.Reload.Enabled && o.configPath != "" {
		s.reloader = config.NewReloader(o.configPath, cfg, logger)
		s.reloader.Register(pipeline.RateLimiter)
		s.reloader.Register(auditLogger)
		s.reloader.Register(s.cors)
		s.reloader.Register(config.ReloadFunc(func(newCfg *config.Config) error {
			level.Set(ParseLevel(newCfg.Logging.Level))
			return nil
		}))
		s.reloader.Observe(func(success bool) {
			metrics.RecordConfigReload(success)
			if success {
				metrics.SetConfigReloadTime(time.Now())
			}
		})
	}

	return s, nil
}

// Service returns the inspector service behind the HTTP API.
func (s *Server) Service() *inspector.Service { return s.service }

// Start begins listening and serving. It blocks until the context is
// canceled or an unrecoverable error occurs, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.verifier.Start(ctx); err != nil {
		return fmt.Errorf("starting card signature verifier: %w", err)
	}

	listenAddr := fmt.Sprintf("%s:%d", s.cfg.Listen.Host, s.cfg.Listen.Port)

	// Use injected listener or create one
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", listenAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", listenAddr, err)
		}
		if s.cfg.Listen.MaxConnections > 0 {
			ln = newLimitedListener(ln, s.cfg.Listen.MaxConnections)
		}
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String(), "client_generation", s.service.Generation())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if s.reloader != nil {
		g.Go(func() error {
			return s.reloader.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Shutdown.Timeout.Duration)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

// Shutdown performs graceful shutdown. In-flight inspector calls are
// allowed to finish until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	// 1. Fail readiness so load balancers stop routing here
	s.healthHandler.SetDraining()

	// 2. Shutdown HTTP server
	s.mu.Lock()
	hs := s.httpServer
	s.mu.Unlock()

	if hs != nil {
		if err := hs.Shutdown(ctx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	// 3. Stop background workers
	s.pipeline.Stop()
	return nil
}

// ── Wiring shared with the one-shot CLI commands ──

// Dependencies are the collaborators BuildInspector uses. Zero values
// select production defaults.
type Dependencies struct {
	Logger   *slog.Logger
	Metrics  *audit.Metrics
	Backend  backend.Backend
	Resolver security.Resolver
}

// Inspector is a wired inspector service with its card verifier.
type Inspector struct {
	Service  *inspector.Service
	Verifier *agentcard.JWSVerifier
	Guard    *security.Guard
}

// BuildInspector wires the admission guard, card verifier, client
// generation and inspector service from cfg. The verifier must be
// started before signed cards can be checked.
func BuildInspector(ctx context.Context, cfg *config.Config, deps Dependencies) (*Inspector, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	extra, err := security.ParseBlockedRanges(cfg.Security.BlockedRanges)
	if err != nil {
		return nil, fmt.Errorf("security.blocked_ranges: %w", err)
	}
	guardOpts := []security.GuardOption{
		security.WithExtraBlockedRanges(extra...),
		security.WithLogger(logger),
	}
	if deps.Resolver != nil {
		guardOpts = append(guardOpts, security.WithResolver(deps.Resolver))
	}
	guard := security.NewGuard(cfg.Inspector.DNSTimeout.Duration, guardOpts...)

	verifier := agentcard.NewJWSVerifier(cfg.Security.CardSignature)

	b := deps.Backend
	if b == nil {
		opts := backend.OptionsFromConfig(cfg.Inspector)
		opts.Verifier = verifier
		opts.Admitter = guard
		opts.Logger = logger
		b, err = backend.Select(ctx, cfg.Inspector.Client, opts)
		if err != nil {
			return nil, err
		}
	}
	logger.Info("client generation selected", "requested", cfg.Inspector.Client, "selected", b.Name())

	svcOpts := []inspector.Option{
		inspector.WithTimeout(cfg.Inspector.Timeout.Duration),
		inspector.WithLogger(logger),
	}
	if deps.Metrics != nil {
		svcOpts = append(svcOpts, inspector.WithMetrics(deps.Metrics))
	}

	return &Inspector{
		Service:  inspector.NewService(guard, b, svcOpts...),
		Verifier: verifier,
		Guard:    guard,
	}, nil
}

// ── Logging ──

// BuildLogger creates an slog.Logger from the logging section. The level
// is held in the returned LevelVar so reloads can change it.
func BuildLogger(cfg config.LoggingConfig, out io.Writer) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	level.Set(ParseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler), level
}

// ParseLevel maps a config level name to a slog.Level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logOutput(name string) io.Writer {
	if name == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// ── LimitedListener ──

// limitedListener wraps a net.Listener to limit maximum concurrent connections.
type limitedListener struct {
	net.Listener
	sem chan struct{}
}

// newLimitedListener creates a listener that limits concurrent connections.
func newLimitedListener(l net.Listener, maxConns int) net.Listener {
	return &limitedListener{
		Listener: l,
		sem:      make(chan struct{}, maxConns),
	}
}

// Accept waits for and returns the next connection, blocking if at limit.
func (l *limitedListener) Accept() (net.Conn, error) {
	l.sem <- struct{}{}
	c, err := l.Listener.Accept()
	if err != nil {
		<-l.sem
		return nil, err
	}
	return &limitedConn{Conn: c, sem: l.sem}, nil
}

// limitedConn wraps a net.Conn to release the semaphore slot on close.
type limitedConn struct {
	net.Conn
	sem    chan struct{}
	closed sync.Once
}

// Close releases the connection and frees the semaphore slot.
func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.closed.Do(func() { <-c.sem })
	return err
}
