// Package server exposes extraction over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"nerapi/internal/audit"
	"nerapi/internal/extract"
	"nerapi/internal/logger"
	"nerapi/internal/metrics"
)

type Config struct {
	Host string
	Port int
	// Model is the configured model name reported to callers.
	Model           string
	ShutdownTimeout time.Duration
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Extractor is the part of extract.Service the handlers need.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) ([]extract.Entity, error)
}

type Server struct {
	cfg       Config
	extractor Extractor
	audit     audit.Logger
	auditPath string
	gatherer  prometheus.Gatherer
	state     func() string
	log       logger.Logger
	startedAt time.Time
	router    *gin.Engine
}

type Option func(*Server)

// WithAudit records each extraction. path, when set, is read back for
// /api/stats.
func WithAudit(l audit.Logger, path string) Option {
	return func(s *Server) {
		s.audit = l
		s.auditPath = path
	}
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithModelState reports the engine state on /health.
func WithModelState(state func() string) Option {
	return func(s *Server) { s.state = state }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

func New(cfg Config, extractor Extractor, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		cfg:       cfg,
		extractor: extractor,
		audit:     audit.Nop(),
		log:       logger.GetDefault(),
		startedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware(s.log))
	router.Use(LoggerMiddleware())

	router.GET("/health", s.health)
	router.POST("/extract", s.extract)
	router.GET("/api/stats", s.stats)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(s.gatherer)))
	}
	router.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, ErrNotFoundCode, "route not found")
	})
	return router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "address", "http://"+srv.Addr, "model", s.cfg.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Debug("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("Server shutdown completed")
	return nil
}
