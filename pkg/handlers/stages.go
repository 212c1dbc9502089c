package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/models"
	"github.com/harvestproof/harvestproof-engine/pkg/services"
)

// StageHandler handles verification-stage requests for the chain of custody.
type StageHandler struct {
	ledger services.StageLedgerService
	logger *zap.Logger
}

// NewStageHandler creates a new StageHandler.
func NewStageHandler(ledger services.StageLedgerService, logger *zap.Logger) *StageHandler {
	return &StageHandler{ledger: ledger, logger: logger}
}

// RegisterRoutes registers the stage handler's routes on the given mux.
func (h *StageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/batches/{bid}/stages", h.CreateStage)
	mux.HandleFunc("GET /api/v1/batches/{bid}/stages", h.GetStageHistory)
	mux.HandleFunc("PATCH /api/v1/batches/{bid}/stages/{sid}", h.UpdateStageStatus)
}

type createStageRequest struct {
	// StageType is optional; when omitted the next type in chain order is
	// recorded.
	StageType *models.StageType `json:"stage_type,omitempty"`
	ActorID   string            `json:"actor_id"`
	Geo       *models.GeoPoint  `json:"geo,omitempty"`
}

// CreateStage handles POST /api/v1/batches/{bid}/stages
func (h *StageHandler) CreateStage(w http.ResponseWriter, r *http.Request) {
	batchID, ok := ParseBatchID(w, r, h.logger)
	if !ok {
		return
	}

	var req createStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	stage, err := h.ledger.CreateStage(r.Context(), batchID, req.StageType, req.ActorID, req.Geo)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, stage); err != nil {
		h.logger.Error("Failed to write stage response", zap.Error(err))
	}
}

// GetStageHistory handles GET /api/v1/batches/{bid}/stages
func (h *StageHandler) GetStageHistory(w http.ResponseWriter, r *http.Request) {
	batchID, ok := ParseBatchID(w, r, h.logger)
	if !ok {
		return
	}

	stages, err := h.ledger.GetStageHistory(r.Context(), batchID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"stages": stages}); err != nil {
		h.logger.Error("Failed to write stage history response", zap.Error(err))
	}
}

type updateStageStatusRequest struct {
	Status  models.StageStatus `json:"status"`
	ActorID string             `json:"actor_id"`
}

// UpdateStageStatus handles PATCH /api/v1/batches/{bid}/stages/{sid}
func (h *StageHandler) UpdateStageStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := ParseBatchID(w, r, h.logger); !ok {
		return
	}
	stageID, ok := ParseStageID(w, r, h.logger)
	if !ok {
		return
	}

	var req updateStageStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if !models.IsValidStageStatus(req.Status) {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "unknown stage status")
		return
	}

	stage, err := h.ledger.UpdateStageStatus(r.Context(), stageID, req.Status, req.ActorID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, stage); err != nil {
		h.logger.Error("Failed to write stage response", zap.Error(err))
	}
}
