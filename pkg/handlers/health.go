package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/config"
	"github.com/harvestproof/harvestproof-engine/pkg/services"
)

// PingResponse contains service status, version and runtime wiring
// information.
type PingResponse struct {
	Status          string   `json:"status"`
	Version         string   `json:"version"`
	Service         string   `json:"service"`
	GoVersion       string   `json:"go_version"`
	Hostname        string   `json:"hostname"`
	Environment     string   `json:"environment"`
	CalibratedCrops []string `json:"calibrated_crops"`
	QuotaBackend    string   `json:"quota_backend"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg          *config.Config
	calibration  *services.Calibration
	quotaBackend string
	logger       *zap.Logger
}

// NewHealthHandler creates a HealthHandler. quotaBackend names the store
// tracking the satellite imagery budget ("redis" or "memory").
func NewHealthHandler(cfg *config.Config, calibration *services.Calibration, quotaBackend string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, calibration: calibration, quotaBackend: quotaBackend, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
}

// Health handles GET /health requests.
// Returns a simple "ok" status for load balancer health checks.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns service information including version, environment, the crops the
// satellite analyzer is tuned for and where the imagery quota is tracked.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:          "ok",
		Version:         h.cfg.Version,
		Service:         "harvestproof-engine",
		GoVersion:       runtime.Version(),
		Hostname:        hostname,
		Environment:     h.cfg.Env,
		CalibratedCrops: h.calibration.CalibratedCrops(),
		QuotaBackend:    h.quotaBackend,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write ping response", zap.Error(err))
	}
}
