// Package api exposes the experiment engine over HTTP with gin.
package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"geolift/app"
	"geolift/internal/batch"
	"geolift/internal/config"
	"geolift/internal/metrics"
)

// Deps are the collaborators the HTTP layer delegates to. Runner, Metrics
// and Templates are optional.
type Deps struct {
	Service   *app.ExperimentService
	Runner    *batch.Runner
	Templates *config.Templates
	Metrics   *metrics.Registry
	Logger    zerolog.Logger
	Alpha     float64
	Power     float64
	// MaxBatchRuns caps the number of runs a single batch request may expand to.
	MaxBatchRuns int
}

// Server represents the HTTP API server
type Server struct {
	router *gin.Engine
	deps   Deps
}

const (
	defaultMaxBatchRuns = 500
	shutdownGrace       = 15 * time.Second
)

// NewServer builds the router and registers every route.
func NewServer(deps Deps) *Server {
	if deps.MaxBatchRuns <= 0 {
		deps.MaxBatchRuns = defaultMaxBatchRuns
	}
	if deps.Runner == nil && deps.Service != nil {
		deps.Runner = batch.NewRunner(deps.Service,
			batch.WithStore(deps.Service.Store()),
			batch.WithLogger(deps.Logger),
			batch.WithMetrics(deps.Metrics),
		)
	}
	s := &Server{router: gin.New(), deps: deps}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the router for use with http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.router }

// setupMiddleware configures gin middleware
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.deps.Logger))
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	v1.GET("/markets", s.handleMarkets)
	v1.GET("/templates", s.handleTemplates)
	v1.POST("/design", s.handleDesign)
	v1.POST("/power", s.handlePower)

	v1.POST("/experiments", s.handleCreateExperiment)
	v1.GET("/experiments", s.handleListExperiments)
	v1.GET("/experiments/:id", s.handleGetExperiment)

	v1.POST("/batches", s.handleCreateBatch)
	v1.GET("/batches/:id", s.handleGetBatch)
}

// Start serves on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownGrace.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info().Str("addr", addr).Msg("starting geolift API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.deps.Logger.Info().Msg("shutting down geolift API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger logs one line per request.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
