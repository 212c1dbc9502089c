package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/models"
	"github.com/harvestproof/harvestproof-engine/pkg/repositories"
)

// BatchHandler handles batch registration and lookup requests.
type BatchHandler struct {
	batchRepo repositories.BatchRepository
	logger    *zap.Logger
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(batchRepo repositories.BatchRepository, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{batchRepo: batchRepo, logger: logger}
}

// RegisterRoutes registers the batch handler's routes on the given mux.
func (h *BatchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/batches", h.CreateBatch)
	mux.HandleFunc("GET /api/v1/batches/{bid}", h.GetBatch)
}

type createBatchRequest struct {
	ProducerID string    `json:"producer_id"`
	FieldID    uuid.UUID `json:"field_id"`
	Crop       string    `json:"crop"`
}

// CreateBatch handles POST /api/v1/batches
func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.ProducerID == "" || req.Crop == "" || req.FieldID == uuid.Nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "producer_id, field_id and crop are required")
		return
	}

	batch := &models.Batch{
		ProducerID: req.ProducerID,
		FieldID:    req.FieldID,
		Crop:       req.Crop,
		Status:     models.BatchStatusRegistered,
	}
	if err := h.batchRepo.Create(r.Context(), batch); err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, batch); err != nil {
		h.logger.Error("Failed to write batch response", zap.Error(err))
	}
}

// GetBatch handles GET /api/v1/batches/{bid}
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := ParseBatchID(w, r, h.logger)
	if !ok {
		return
	}

	batch, err := h.batchRepo.GetByID(r.Context(), batchID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, batch); err != nil {
		h.logger.Error("Failed to write batch response", zap.Error(err))
	}
}
