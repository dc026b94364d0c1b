package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/fleetdrain/pkg/log"
	"github.com/cuemby/fleetdrain/pkg/metrics"
)

// HealthServer provides the HTTP health and metrics endpoints
type HealthServer struct {
	mux *http.ServeMux

	mu     sync.Mutex
	server *http.Server
}

// NewHealthServer creates a new health check HTTP server
func NewHealthServer() *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{mux: mux}

	// Register endpoints
	mux.Handle("/health", getOnly(metrics.HealthHandler()))
	mux.Handle("/ready", getOnly(metrics.ReadyHandler()))
	mux.Handle("/live", getOnly(metrics.LivenessHandler()))
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start serves the endpoints on addr until Shutdown is called
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hs.mu.Lock()
	hs.server = server
	hs.mu.Unlock()

	log.Logger.Info().Str("addr", addr).Msg("Health server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	hs.mu.Lock()
	server := hs.server
	hs.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

func getOnly(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}
