package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/services"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ServiceError maps a service-layer error onto the HTTP surface. Handlers
// call it for any error they do not interpret themselves.
func ServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var validationErr *apperrors.ValidationError
	var stateErr *apperrors.StateConflictError
	var ineligibleErr *services.IneligibleError

	switch {
	case errors.As(err, &validationErr):
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", validationErr.Error())
	case errors.As(err, &ineligibleErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "not_eligible",
			"message": ineligibleErr.Error(),
			"result":  ineligibleErr.Result,
		})
	case errors.As(err, &stateErr):
		_ = ErrorResponse(w, http.StatusConflict, "invalid_state", stateErr.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, apperrors.ErrConflict):
		_ = ErrorResponse(w, http.StatusConflict, "conflict", "Resource was modified concurrently, retry the request")
	case errors.Is(err, apperrors.ErrInvalidOrder):
		_ = ErrorResponse(w, http.StatusConflict, "stage_out_of_order", err.Error())
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		_ = ErrorResponse(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())
	case errors.Is(err, apperrors.ErrInvalidHash):
		_ = ErrorResponse(w, http.StatusUnprocessableEntity, "invalid_hash", err.Error())
	case errors.Is(err, apperrors.ErrExternalService):
		logger.Error("Upstream service failure", zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadGateway, "upstream_error", "An upstream service failed, retry later")
	default:
		logger.Error("Unhandled service error", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
