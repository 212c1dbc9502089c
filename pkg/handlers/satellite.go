package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/services"
)

// SatelliteHandler handles satellite compliance analysis requests.
type SatelliteHandler struct {
	analysis services.SatelliteAnalysisService
	logger   *zap.Logger
}

// NewSatelliteHandler creates a new SatelliteHandler.
func NewSatelliteHandler(analysis services.SatelliteAnalysisService, logger *zap.Logger) *SatelliteHandler {
	return &SatelliteHandler{analysis: analysis, logger: logger}
}

// RegisterRoutes registers the satellite handler's routes on the given mux.
func (h *SatelliteHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/fields/{fid}/analysis", h.RunAnalysis)
	mux.HandleFunc("GET /api/v1/fields/{fid}/analysis/latest", h.GetLatestReport)
}

type runAnalysisRequest struct {
	Crop string `json:"crop"`
	// Optional window overrides; zero values use configured defaults.
	From             time.Time `json:"from,omitempty"`
	To               time.Time `json:"to,omitempty"`
	IntervalDays     int       `json:"interval_days,omitempty"`
	MaxCloudCoverage float64   `json:"max_cloud_coverage,omitempty"`
}

// RunAnalysis handles POST /api/v1/fields/{fid}/analysis
func (h *SatelliteHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	fieldID, ok := ParseFieldID(w, r, h.logger)
	if !ok {
		return
	}

	var req runAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Crop == "" {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "crop is required")
		return
	}

	params := &services.AnalysisParams{
		From:             req.From,
		To:               req.To,
		IntervalDays:     req.IntervalDays,
		MaxCloudCoverage: req.MaxCloudCoverage,
	}

	report, err := h.analysis.RunAnalysis(r.Context(), fieldID, req.Crop, params)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, report); err != nil {
		h.logger.Error("Failed to write analysis response", zap.Error(err))
	}
}

// GetLatestReport handles GET /api/v1/fields/{fid}/analysis/latest
func (h *SatelliteHandler) GetLatestReport(w http.ResponseWriter, r *http.Request) {
	fieldID, ok := ParseFieldID(w, r, h.logger)
	if !ok {
		return
	}

	report, err := h.analysis.GetLatestReport(r.Context(), fieldID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to write report response", zap.Error(err))
	}
}
