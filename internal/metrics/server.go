package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server is the HTTP server exposing the Prometheus exposition endpoint.
type Server struct {
	addr string
	path string
	log  *logrus.Entry

	server *http.Server
}

// NewServer creates a metrics server listening on addr, serving the
// Prometheus exposition format at path (default "/metrics").
func NewServer(addr, path string, log *logrus.Entry) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{addr: addr, path: path, log: log}
}

// Start begins serving in the background. It returns once the listener is
// bound; ListenAndServe errors after that point are logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.WithField("addr", s.addr).Info("starting metrics server")

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server listen %s: %w", s.addr, err)
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}
