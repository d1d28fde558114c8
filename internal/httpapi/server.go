// Package httpapi exposes a read-only status/health surface over the
// check engine, grounded on the s3-clone exercise's gorilla/mux API server
// (internal/api/server.go): a mux.Router wrapped in a net/http.Server with
// the same listen/shutdown lifecycle.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/kumarlokesh/halfcheck/internal/checkengine"
)

// Server is a read-only HTTP surface over a CheckEngine: liveness,
// per-queue offset status, and Prometheus scraping — nothing that mutates
// engine state.
type Server struct {
	engine *checkengine.CheckEngine
	server *http.Server
}

// NewServer builds a Server listening on addr once Start is called. reg may
// be nil to omit the /metrics route.
func NewServer(addr string, engine *checkengine.CheckEngine, reg *prometheus.Registry) *Server {
	s := &Server{engine: engine}

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("httpapi request")
			next.ServeHTTP(w, req)
		})
	})

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.server = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start listens and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Status(r.Context())
	if err != nil {
		s.respond(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.respond(w, http.StatusOK, report)
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("httpapi: failed to encode response")
	}
}
