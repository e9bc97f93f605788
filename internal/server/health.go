package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cros-updates/cros-updates/internal/poller"
)

const (
	StatusHealthy  = "healthy"
	StatusStarting = "starting"
	StatusDegraded = "degraded"
)

// RunReporter exposes the result of the latest poll run.
type RunReporter interface {
	LastResult() (poller.RunResult, bool)
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string         `json:"status"`
	LastRunID string         `json:"last_run_id,omitempty"`
	LastRunAt *time.Time     `json:"last_run_at,omitempty"`
	Counts    *poller.Counts `json:"counts,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// HealthRegistrar handles health check endpoints
type HealthRegistrar struct {
	runs       RunReporter
	staleAfter func() time.Duration
	now        func() time.Time
}

// NewHealthRegistrar reports degraded when the last run failed for every
// device or is older than staleAfter. staleAfter is read on every request so
// it follows interval changes; nil or a zero result disables the age check.
func NewHealthRegistrar(runs RunReporter, staleAfter func() time.Duration) *HealthRegistrar {
	return &HealthRegistrar{runs: runs, staleAfter: staleAfter, now: time.Now}
}

// RegisterRoutes registers the health check endpoint
func (h *HealthRegistrar) RegisterRoutes(router Router) {
	router.HandleFunc("GET /health", h.healthHandler)
}

func (h *HealthRegistrar) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checkHealth()

	// Encode to buffer first to catch any encoding errors before writing headers
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status == StatusDegraded {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_, _ = w.Write(buf.Bytes())
}

func (h *HealthRegistrar) checkHealth() HealthResponse {
	now := h.now()
	response := HealthResponse{Timestamp: now}

	result, ok := h.runs.LastResult()
	if !ok {
		response.Status = StatusStarting
		return response
	}

	counts := result.Counts()
	finished := result.Started.Add(result.Duration)
	response.LastRunID = result.RunID
	response.LastRunAt = &finished
	response.Counts = &counts

	var staleAfter time.Duration
	if h.staleAfter != nil {
		staleAfter = h.staleAfter()
	}

	switch {
	case len(result.Outcomes) > 0 && counts.Failed == len(result.Outcomes):
		response.Status = StatusDegraded
	case staleAfter > 0 && now.Sub(finished) > staleAfter:
		response.Status = StatusDegraded
	default:
		response.Status = StatusHealthy
	}
	return response
}
