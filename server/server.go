package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xhad/glov/internal/logger"
	"github.com/xhad/glov/pkg/pipeline"
)

// Runner executes one ingest-and-query run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

type Config struct {
	Host            string
	Port            int
	RateLimit       float64 // requests per second, 0 disables
	Burst           int
	ShutdownTimeout time.Duration
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

type Server struct {
	config   Config
	runner   Runner
	gatherer prometheus.Gatherer
	router   *gin.Engine
}

// NewServer builds the router. gatherer may be nil, in which case /metrics
// is not registered.
func NewServer(config Config, runner Runner, gatherer prometheus.Gatherer) *Server {
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 8000
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{config: config, runner: runner, gatherer: gatherer}
	s.buildRouter()
	return s
}

func (s *Server) buildRouter() {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	embed := router.Group("/embed")
	if s.config.RateLimit > 0 {
		embed.Use(RateLimitMiddleware(s.config.RateLimit, s.config.Burst))
	}
	embed.POST("/", s.handleEmbed)

	s.router = router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	srv := &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("http://%s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Debug("Received shutdown signal, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server shutdown completed")
	return nil
}
