// Package server exposes the curation pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FranksOps/curator/internal/config"
	"github.com/FranksOps/curator/internal/metrics"
	"github.com/FranksOps/curator/internal/pipeline"
	"github.com/FranksOps/curator/internal/video"
)

// Runner executes one lookup.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Outcome
}

// VideosResponse is the body of GET /api/v1/videos.
type VideosResponse struct {
	Query    string         `json:"query"`
	RunID    string         `json:"run_id"`
	Fallback bool           `json:"fallback"`
	Videos   []video.Result `json:"videos"`
}

// Server serves the lookup API, health probes and metrics.
type Server struct {
	runner Runner
	cfg    config.ServerConfig
	logger *zap.Logger
	engine *gin.Engine
}

// New builds the router.
func New(runner Runner, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{
		runner: runner,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "server")),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/health/live", s.Liveness)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/videos", s.Videos)

	s.engine = r
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Liveness reports that the process is up.
func (s *Server) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"time":   time.Now(),
	})
}

// Videos runs the pipeline for ?q= and optional repeated ?scope= values.
func (s *Server) Videos(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	out := s.runner.Run(c.Request.Context(), pipeline.Request{
		Query: q,
		Scope: c.QueryArray("scope"),
	})

	c.JSON(http.StatusOK, VideosResponse{
		Query:    q,
		RunID:    out.Trace.RunID,
		Fallback: out.Fallback(),
		Videos:   out.Results,
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()

		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// ListenAndServe serves on the configured port until ctx is cancelled, then
// shuts down gracefully within ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down server", zap.Duration("timeout", timeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
