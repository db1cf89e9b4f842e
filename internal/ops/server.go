// Package ops serves the worker's operational endpoints: liveness and
// Prometheus metrics. It exposes no data or mutation routes.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HealthFunc reports whether dependencies are reachable.
type HealthFunc func(ctx context.Context) error

type Server struct {
	echo   *echo.Echo
	addr   string
	health HealthFunc
}

// NewServer builds the listener. A nil health check always reports ok.
func NewServer(addr string, gatherer prometheus.Gatherer, health HealthFunc) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, addr: addr, health: health}
	s.setupRoutes(gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/healthz", s.healthz)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func (s *Server) healthz(c echo.Context) error {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("ops listener started")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
