package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// GenerationReporter is what the health handler needs from the inspector.
// This avoids a direct dependency on internal/inspector.
type GenerationReporter interface {
	Generation() string
}

// Handler provides HTTP health check endpoints.
type Handler struct {
	reporter      GenerationReporter
	version       string
	livenessPath  string
	readinessPath string
	draining      atomic.Bool
}

// NewHandler creates a health check handler serving the given paths.
func NewHandler(reporter GenerationReporter, version, livenessPath, readinessPath string) *Handler {
	return &Handler{
		reporter:      reporter,
		version:       version,
		livenessPath:  livenessPath,
		readinessPath: readinessPath,
	}
}

// SetDraining marks the service as shutting down. Readiness fails from then on.
func (h *Handler) SetDraining() { h.draining.Store(true) }

// ServeHTTP routes to the appropriate health endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case h.livenessPath:
		h.handleLiveness(w, r)
	case h.readinessPath:
		h.handleReadiness(w, r)
	default:
		http.NotFound(w, r)
	}
}

// LivenessResponse is the JSON response for the liveness endpoint.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadinessResponse is the JSON response for the readiness endpoint.
type ReadinessResponse struct {
	Status           string `json:"status"`
	ClientGeneration string `json:"client_generation"`
}

func (h *Handler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LivenessResponse{
		Status:  "ok",
		Version: h.version,
	})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	generation := ""
	if h.reporter != nil {
		generation = h.reporter.Generation()
	}

	w.Header().Set("Content-Type", "application/json")

	resp := ReadinessResponse{ClientGeneration: generation}
	if generation != "" && !h.draining.Load() {
		resp.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		resp.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(resp)
}
