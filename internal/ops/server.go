// Package ops serves the operational HTTP surface: /healthz with
// per-component status and /metrics in Prometheus exposition format.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HealthFunc samples component health; true means healthy.
type HealthFunc func(ctx context.Context) map[string]bool

type Server struct {
	srv     *http.Server
	health  HealthFunc
	version string
}

func NewServer(port int, version string, health HealthFunc, gatherer prometheus.Gatherer) *Server {
	s := &Server{health: health, version: version}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains with a short grace
// period. A listener failure is returned; a clean shutdown is not.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("ops server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops server shutdown: %w", err)
		}
		return nil
	}
}

type healthResponse struct {
	Status     string          `json:"status"`
	Version    string          `json:"version"`
	Components map[string]bool `json:"components"`
	Timestamp  string          `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]bool{}
	if s.health != nil {
		components = s.health(r.Context())
	}

	resp := healthResponse{
		Status:     "ok",
		Version:    s.version,
		Components: components,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	for _, healthy := range components {
		if !healthy {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debug().Err(err).Msg("health response write failed")
	}
}
