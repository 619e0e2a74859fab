// Package health provides a simple HTTP health check endpoint.
//
// Docker and Kubernetes use these endpoints to monitor the assistant.
// /healthz reports liveness once startup finished; /readyz additionally
// runs the readiness probe, which fails after the assistant loop stopped.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Probe reports whether the service can take traffic.
type Probe func() error

// Server is a lightweight HTTP server that exposes /healthz and /readyz.
type Server struct {
	port   int
	probe  Probe
	ready  atomic.Bool
	server *http.Server
}

// New creates a new health check server. probe may be nil.
func New(port int, probe Probe) *Server {
	return &Server{port: port, probe: probe}
}

// SetReady marks the service as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func reply(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Handler returns the health routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			reply(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
			return
		}
		reply(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			reply(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
			return
		}
		if s.probe != nil {
			if err := s.probe(); err != nil {
				reply(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
				return
			}
		}
		reply(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
