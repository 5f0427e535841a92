package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudcompchem/cloudcompchem/pkg/auth"
	"github.com/cloudcompchem/cloudcompchem/pkg/jobs"
	"github.com/cloudcompchem/cloudcompchem/pkg/observability"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

// Server wraps an http.Server with the transport adapter and manages
// the full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr              string
	MaxBodySize       int64
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            *slog.Logger

	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string

	// Auth is applied to every route except BypassEndpoints. Nil disables
	// authentication.
	Auth            *auth.AuthChain
	RateLimiter     auth.RateLimiter
	BypassEndpoints []string

	ReadyCheck func(ctx context.Context) error

	// Routes are extra handlers mounted next to the API, keyed by pattern.
	Routes map[string]http.Handler
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:              ":8080",
		MaxBodySize:       1 << 20, // 1 MB
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		Logger:            slog.Default(),
		MetricsPath:       "/metrics",
		BypassEndpoints:   auth.DefaultBypassEndpoints,
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithReadHeaderTimeout bounds how long a client may take to send headers.
func WithReadHeaderTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ReadHeaderTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithMetricsPath sets where Prometheus metrics are served. An empty path
// disables the endpoint.
func WithMetricsPath(path string) ServerOption {
	return func(s *Server) { s.config.MetricsPath = path }
}

// WithAuth enables authentication with an optional rate limiter. Requests
// to bypass skip both; nil bypass keeps the defaults.
func WithAuth(chain *auth.AuthChain, limiter auth.RateLimiter, bypass []string) ServerOption {
	return func(s *Server) {
		s.config.Auth = chain
		s.config.RateLimiter = limiter
		if bypass != nil {
			s.config.BypassEndpoints = bypass
		}
	}
}

// WithReadyCheck sets the readiness probe used by /readyz.
func WithReadyCheck(check func(ctx context.Context) error) ServerOption {
	return func(s *Server) { s.config.ReadyCheck = check }
}

// WithRoute mounts an extra handler, e.g. the MCP endpoint.
func WithRoute(pattern string, h http.Handler) ServerOption {
	return func(s *Server) {
		if s.config.Routes == nil {
			s.config.Routes = map[string]http.Handler{}
		}
		s.config.Routes[pattern] = h
	}
}

// NewServer creates a new transport server with the given Calculator and
// options. The job queue is optional (pass nil to disable /v1/jobs).
// Default middleware (recovery, request ID, logging) is applied automatically.
func NewServer(calc transport.Calculator, queue jobs.Queue, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	adapterCfg := Config{
		MaxBodySize: s.config.MaxBodySize,
		ReadyCheck:  s.config.ReadyCheck,
	}

	s.adapter = NewAdapter(calc, queue, adapterCfg, transport.DefaultMiddleware(s.logger)...)
	if s.config.MetricsPath != "" {
		s.adapter.Handle("GET "+s.config.MetricsPath, promhttp.Handler())
	}
	for pattern, h := range s.config.Routes {
		s.adapter.Handle(pattern, h)
	}

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	return s
}

// Handler returns the complete handler stack: request ID, authentication
// and rate limiting, metrics, then the routes.
func (s *Server) Handler() http.Handler {
	// Metrics sit inside auth so the matched route pattern is visible.
	var h http.Handler = observability.MetricsMiddleware(s.adapter.mux)
	if s.config.Auth != nil {
		h = auth.Middleware(s.config.Auth, s.config.RateLimiter, s.config.BypassEndpoints)(h)
	}
	return httpRequestIDMiddleware(h)
}

// ListenAndServe starts the server and blocks until ctx is cancelled (for
// example by signal.NotifyContext). It then gracefully shuts down, waiting
// for in-flight requests to complete within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
