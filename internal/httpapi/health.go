// Package httpapi implements the exporter's two HTTP surfaces: the health
// listener (/health, /health/details, /health/livez, /health/readyz,
// /health/reload) and the metrics listener (/metrics). Handler
// construction follows the teacher's handlers.go/health_endpoint.go
// idiom; response semantics follow original_source's health.py exactly.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chalabi2/blockchain-exporter/internal/metrics"
	"github.com/chalabi2/blockchain-exporter/internal/reload"
)

// ChainDetail is one chain's entry in the /health and /health/details bodies.
type ChainDetail struct {
	Blockchain           string  `json:"blockchain"`
	ChainID              string  `json:"chain_id"`
	Status               string  `json:"status"`
	LastSuccessTimestamp *string `json:"last_success_timestamp,omitempty"`
}

// HealthResponse is the body of GET /health and /health/details.
type HealthResponse struct {
	Status string        `json:"status"`
	Chains []ChainDetail `json:"chains"`
}

// ReadinessEntry is one chain's entry in the /health/readyz body.
type ReadinessEntry struct {
	Blockchain           string  `json:"blockchain"`
	ChainID              string  `json:"chain_id"`
	Status               string  `json:"status"`
	LastSuccessTimestamp *string `json:"last_success_timestamp,omitempty"`
}

// ReadinessResponse is the body of GET /health/readyz.
type ReadinessResponse struct {
	Status string           `json:"status"`
	Chains []ReadinessEntry `json:"chains"`
}

// Handlers bundles the dependencies every handler needs.
type Handlers struct {
	State                          *metrics.State
	Reloader                       *reload.Controller
	Logger                         *zap.Logger
	ReadinessStaleThresholdSeconds int
}

func rfc3339(seconds float64) string {
	return time.Unix(int64(seconds), 0).UTC().Format(time.RFC3339)
}

// buildHealthReport mirrors generate_health_report: no configured chains
// means trivially ok; no health entries yet means the process hasn't
// completed a first poll cycle, which is reported as initializing (503);
// otherwise ok/degraded/unhealthy based on how many chains are healthy.
func (h *Handlers) buildHealthReport(includeDetails bool) (string, int, []ChainDetail) {
	configured, statuses := h.State.Snapshot()

	if configured == 0 {
		return "ok", http.StatusOK, []ChainDetail{}
	}
	if len(statuses) == 0 {
		return "initializing", http.StatusServiceUnavailable, []ChainDetail{}
	}

	anySuccess, allSuccess := false, true
	for _, s := range statuses {
		if s.Healthy {
			anySuccess = true
		} else {
			allSuccess = false
		}
	}

	status := "unhealthy"
	code := http.StatusServiceUnavailable
	switch {
	case allSuccess:
		status, code = "ok", http.StatusOK
	case anySuccess:
		status, code = "degraded", http.StatusOK
	}

	details := make([]ChainDetail, 0, len(statuses))
	for _, s := range statuses {
		chainStatus := "unhealthy"
		if s.Healthy {
			chainStatus = "ok"
		}
		d := ChainDetail{Blockchain: s.Blockchain, ChainID: s.ChainIDLabel, Status: chainStatus}
		if includeDetails && s.HasLastSuccess {
			ts := rfc3339(s.LastSuccessSeconds)
			d.LastSuccessTimestamp = &ts
		}
		details = append(details, d)
	}
	sort.Slice(details, func(i, j int) bool {
		if details[i].Blockchain != details[j].Blockchain {
			return details[i].Blockchain < details[j].Blockchain
		}
		return details[i].ChainID < details[j].ChainID
	})

	return status, code, details
}

// ServeHealth handles GET /health.
func (h *Handlers) ServeHealth(w http.ResponseWriter, r *http.Request) {
	status, code, chains := h.buildHealthReport(false)
	h.writeJSON(w, code, HealthResponse{Status: status, Chains: chains})
}

// ServeHealthDetails handles GET /health/details.
func (h *Handlers) ServeHealthDetails(w http.ResponseWriter, r *http.Request) {
	status, code, chains := h.buildHealthReport(true)
	h.writeJSON(w, code, HealthResponse{Status: status, Chains: chains})
}

// ServeLivez handles GET /health/livez: the process is alive as long as
// it can answer HTTP requests at all, independent of chain health.
func (h *Handlers) ServeLivez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ServeReadyz handles GET /health/readyz, mirroring generate_readiness_report:
// ready with no entries when no chains are configured, not-ready before the
// first success is recorded, and per-chain readiness gated on both health
// and last-success recency.
func (h *Handlers) ServeReadyz(w http.ResponseWriter, r *http.Request) {
	configured, statuses := h.State.Snapshot()

	if configured == 0 {
		h.writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready", Chains: []ReadinessEntry{}})
		return
	}
	if len(statuses) == 0 {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{Status: "not_ready", Chains: []ReadinessEntry{}})
		return
	}

	now := float64(time.Now().Unix())
	staleThreshold := float64(h.ReadinessStaleThresholdSeconds)

	anyReady := false
	entries := make([]ReadinessEntry, 0, len(statuses))
	for _, s := range statuses {
		isRecent := s.HasLastSuccess && s.LastSuccessSeconds >= now-staleThreshold
		ready := s.Healthy && isRecent
		if ready {
			anyReady = true
		}

		entry := ReadinessEntry{Blockchain: s.Blockchain, ChainID: s.ChainIDLabel}
		if ready {
			entry.Status = "ready"
		} else {
			entry.Status = "not_ready"
		}
		if s.HasLastSuccess {
			ts := rfc3339(s.LastSuccessSeconds)
			entry.LastSuccessTimestamp = &ts
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Blockchain != entries[j].Blockchain {
			return entries[i].Blockchain < entries[j].Blockchain
		}
		return entries[i].ChainID < entries[j].ChainID
	})

	status := "not_ready"
	code := http.StatusServiceUnavailable
	if anyReady {
		status, code = "ready", http.StatusOK
	}
	h.writeJSON(w, code, ReadinessResponse{Status: status, Chains: entries})
}

// ServeReload handles POST /health/reload.
func (h *Handlers) ServeReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ok, message := h.Reloader.Reload()
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
		h.Logger.Error("configuration reload failed", zap.String("message", message))
	} else {
		h.Logger.Info("configuration reloaded", zap.String("message", message))
	}

	h.writeJSON(w, status, map[string]any{"success": ok, "message": message})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("failed to encode response", zap.Error(err))
	}
}
