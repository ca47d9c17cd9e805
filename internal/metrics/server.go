// server.go - HTTP server exposing /metrics
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/id-pointer/id-pointer-pool-go/internal/config"
)

// Server serves the Prometheus exposition format over HTTP.
type Server struct {
	cfg        config.MetricsConfig
	logger     *zap.SugaredLogger
	httpServer *http.Server
}

// NewServer builds a metrics Server. It does not start listening until
// Start is called.
func NewServer(cfg config.MetricsConfig, logger *zap.SugaredLogger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start blocks serving /metrics until the server is stopped or fails.
// A disabled server returns immediately with a nil error.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("metrics server disabled")
		return nil
	}

	path := s.cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Infow("starting metrics server", "address", s.cfg.Listen, "path", path)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the metrics server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("stopping metrics server")
	return s.httpServer.Shutdown(ctx)
}
