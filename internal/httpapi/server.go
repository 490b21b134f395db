package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NewHealthServer builds the :health-port listener exposing
// /health, /health/details, /health/livez, /health/readyz, /health/reload.
func NewHealthServer(port int, h *Handlers) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.ServeHealth)
	mux.HandleFunc("/health/details", h.ServeHealthDetails)
	mux.HandleFunc("/health/livez", h.ServeLivez)
	mux.HandleFunc("/health/readyz", h.ServeReadyz)
	mux.HandleFunc("/health/reload", h.ServeReload)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewMetricsServer builds the :metrics-port listener exposing /metrics.
func NewMetricsServer(port int, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", ServeMetrics(gatherer))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Shutdown gracefully stops srv, bounded by ctx.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
