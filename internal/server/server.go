// Package server exposes the engine, the audit ledger and the metrics
// collector over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/aille/internal/alert"
	"github.com/ppiankov/aille/internal/audit"
	"github.com/ppiankov/aille/internal/fusion"
	"github.com/ppiankov/aille/internal/metrics"
	"github.com/ppiankov/aille/internal/ratelimit"
)

const (
	// MetricsNamespace prefixes every exported metric.
	MetricsNamespace = "aille"
	// maxBodyBytes bounds a decision request body.
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Server wires one engine, ledger and collector to an Echo instance.
type Server struct {
	echo            *echo.Echo
	engine          *fusion.Engine
	ledger          *audit.Ledger
	collector       *metrics.Collector
	registry        *prometheus.Registry
	log             zerolog.Logger
	maxFallbackRate float64
	alerts          *alert.Dispatcher
	limiter         *ratelimit.Limiter
	degraded        atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log.With().Str("component", "server").Logger() }
}

// WithMaxFallbackRate sets the /healthz fallback threshold.
func WithMaxFallbackRate(rate float64) Option {
	return func(s *Server) { s.maxFallbackRate = rate }
}

// WithAlerts sends decision and health events to d.
func WithAlerts(d *alert.Dispatcher) Option {
	return func(s *Server) { s.alerts = d }
}

// WithRateLimiter caps decisions per caller on POST /v1/decisions.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// New builds the HTTP API. Metrics are registered on a private registry so
// several servers can coexist in one process.
func New(engine *fusion.Engine, ledger *audit.Ledger, collector *metrics.Collector, opts ...Option) *Server {
	s := &Server{
		engine:          engine,
		ledger:          ledger,
		collector:       collector,
		registry:        prometheus.NewRegistry(),
		log:             zerolog.Nop(),
		maxFallbackRate: metrics.DefaultMaxFallbackRate,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(
		metrics.NewExporter(collector, MetricsNamespace),
		collectors.NewGoCollector(),
	)
	httpm := newHTTPMetrics(MetricsNamespace, s.registry)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(httpm.middleware())
	e.Use(requestLogging(s.log))
	e.Use(recoverMiddleware(s.log))

	s.echo = e
	s.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	return s
}

// RegisterRoutes mounts the API handlers on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/v1")
	g.POST("/decisions", s.Decide)
	g.POST("/decisions/fallback", s.ForceFallback)
	g.GET("/audit/verify", s.Verify)
	g.GET("/audit/report", s.Report)
	g.GET("/metrics/snapshot", s.Snapshot)
	g.GET("/engine/config", s.EngineConfig)
	g.POST("/engine/reset", s.Reset)
	e.GET("/healthz", s.Health)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Registry returns the Prometheus registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.echo.Listener = lis
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", lis.Addr().String()).Msg("http server listening")
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}
