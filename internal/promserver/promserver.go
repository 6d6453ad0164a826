// Package promserver implements a standalone HTTP listener serving
// Prometheus metrics, mirroring the way the teacher's server/prometheus
// package dedicates its own listener separate from the front-facing
// server.
package promserver

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dig-network/digproxy/internal/log"
)

// Server serves /metrics on its own address.
type Server struct {
	httpServer *http.Server
}

// New builds a Server listening on addr.
func New(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Start runs the metrics listener in the background. It logs and returns
// on listener failure; it does not block the caller.
func (s *Server) Start() {
	go func() {
		log.Info("promserver: serving metrics", log.Fields{"addr": s.httpServer.Addr})
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("promserver: listener failed", log.Fields{"error": err.Error()})
		}
	}()
}

// Stop gracefully shuts the metrics listener down, matching the Stop()
// pattern used by the front-facing server.
func (s *Server) Stop() <-chan error {
	out := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		out <- s.httpServer.Shutdown(ctx)
		close(out)
	}()
	return out
}
