package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/models"
	"github.com/harvestproof/harvestproof-engine/pkg/services"
)

// CertificateHandler handles certificate issuance and review requests.
type CertificateHandler struct {
	certs       services.CertificateService
	eligibility services.EligibilityService
	logger      *zap.Logger
}

// NewCertificateHandler creates a new CertificateHandler.
func NewCertificateHandler(certs services.CertificateService, eligibility services.EligibilityService, logger *zap.Logger) *CertificateHandler {
	return &CertificateHandler{certs: certs, eligibility: eligibility, logger: logger}
}

// RegisterRoutes registers the certificate handler's routes on the given mux.
func (h *CertificateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/certificates", h.Generate)
	mux.HandleFunc("GET /api/v1/certificates/{cid}", h.Get)
	mux.HandleFunc("POST /api/v1/certificates/{cid}/approve", h.Approve)
	mux.HandleFunc("POST /api/v1/certificates/{cid}/reject", h.Reject)
	mux.HandleFunc("POST /api/v1/certificates/{cid}/revoke", h.Revoke)
	mux.HandleFunc("GET /api/v1/batches/{bid}/eligibility", h.Eligibility)
}

type generateCertificateRequest struct {
	BatchID uuid.UUID               `json:"batch_id"`
	Grade   models.CertificateGrade `json:"grade"`
}

// Generate handles POST /api/v1/certificates
func (h *CertificateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateCertificateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.BatchID == uuid.Nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "batch_id is required")
		return
	}

	cert, err := h.certs.Generate(r.Context(), &services.GenerateRequest{BatchID: req.BatchID, Grade: req.Grade})
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, cert); err != nil {
		h.logger.Error("Failed to write certificate response", zap.Error(err))
	}
}

// Get handles GET /api/v1/certificates/{cid}
func (h *CertificateHandler) Get(w http.ResponseWriter, r *http.Request) {
	certID, ok := ParseCertificateID(w, r, h.logger)
	if !ok {
		return
	}

	cert, err := h.certs.Get(r.Context(), certID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, cert); err != nil {
		h.logger.Error("Failed to write certificate response", zap.Error(err))
	}
}

type reviewRequest struct {
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason,omitempty"`
}

// Approve handles POST /api/v1/certificates/{cid}/approve
func (h *CertificateHandler) Approve(w http.ResponseWriter, r *http.Request) {
	certID, ok := ParseCertificateID(w, r, h.logger)
	if !ok {
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	cert, err := h.certs.Approve(r.Context(), certID, req.Reviewer)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	// A parked certificate means the anchor is still pending; the stored
	// state lets the client retry approval later.
	status := http.StatusOK
	if cert.Status == models.CertStatusBlockchainFailed {
		status = http.StatusAccepted
	}
	if err := WriteJSON(w, status, cert); err != nil {
		h.logger.Error("Failed to write certificate response", zap.Error(err))
	}
}

// Reject handles POST /api/v1/certificates/{cid}/reject
func (h *CertificateHandler) Reject(w http.ResponseWriter, r *http.Request) {
	certID, ok := ParseCertificateID(w, r, h.logger)
	if !ok {
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	cert, err := h.certs.Reject(r.Context(), certID, req.Reviewer, req.Reason)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, cert); err != nil {
		h.logger.Error("Failed to write certificate response", zap.Error(err))
	}
}

// Revoke handles POST /api/v1/certificates/{cid}/revoke
func (h *CertificateHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	certID, ok := ParseCertificateID(w, r, h.logger)
	if !ok {
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	cert, err := h.certs.Revoke(r.Context(), certID, req.Reason)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, cert); err != nil {
		h.logger.Error("Failed to write certificate response", zap.Error(err))
	}
}

// Eligibility handles GET /api/v1/batches/{bid}/eligibility?grade=ORGANIC
func (h *CertificateHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	batchID, ok := ParseBatchID(w, r, h.logger)
	if !ok {
		return
	}

	grade := models.CertificateGrade(r.URL.Query().Get("grade"))
	if !models.IsValidGrade(grade) {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "grade query parameter is missing or unknown")
		return
	}

	result, err := h.eligibility.Evaluate(r.Context(), batchID, grade)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write eligibility response", zap.Error(err))
	}
}
