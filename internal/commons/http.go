package commons

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "kitchenops/internal/errors"
)

type ErrorResponse struct {
	TraceID   string                       `json:"traceId"`
	Status    int                          `json:"status"`
	Code      string                       `json:"code"`
	Message   string                       `json:"message"`
	Details   []apperrors.ValidationDetail `json:"details,omitempty"`
	Current   string                       `json:"current,omitempty"`
	Requested string                       `json:"requested,omitempty"`
	Timestamp time.Time                    `json:"timestamp"`
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// StatusFor maps an application error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	if _, ok := apperrors.IsValidationError(err); ok {
		return http.StatusBadRequest, "VALIDATION_ERROR"
	}
	if _, ok := apperrors.IsNotFoundError(err); ok {
		return http.StatusNotFound, "NOT_FOUND"
	}
	if _, ok := apperrors.IsInvalidTransitionError(err); ok {
		return http.StatusConflict, "INVALID_TRANSITION"
	}
	if _, ok := apperrors.IsAlreadyInStateError(err); ok {
		return http.StatusConflict, "ALREADY_IN_STATE"
	}
	if _, ok := apperrors.IsConflictError(err); ok {
		return http.StatusConflict, "CONFLICT"
	}
	if _, ok := apperrors.IsRetryExhaustedError(err); ok {
		return http.StatusUnprocessableEntity, "RETRY_EXHAUSTED"
	}
	if te, ok := apperrors.IsTransportError(err); ok {
		return http.StatusBadGateway, te.Code
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// WriteError renders err with the shared error body. Unexpected errors are
// logged and their message hidden from the caller.
func WriteError(w http.ResponseWriter, traceID string, err error, logger *zap.Logger) {
	status, code := StatusFor(err)
	resp := ErrorResponse{
		TraceID:   traceID,
		Status:    status,
		Code:      code,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}

	if ve, ok := apperrors.IsValidationError(err); ok {
		resp.Message = ve.Message
		resp.Details = ve.Details
	}
	if ite, ok := apperrors.IsInvalidTransitionError(err); ok {
		resp.Current = ite.Current
		resp.Requested = ite.Requested
	}
	if status == http.StatusInternalServerError {
		logger.Error("unexpected error", zap.String("traceId", traceID), zap.Error(err))
		resp.Message = "an unexpected error occurred"
	} else {
		logger.Warn("request failed", zap.String("traceId", traceID), zap.String("code", code), zap.Error(err))
	}

	WriteJSON(w, status, resp, logger)
}

// DecodeJSON decodes the request body into dst, converting malformed input
// into a validation error.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
	}
	return nil
}

// ActorHeader carries the staff identity set by the upstream gateway.
const ActorHeader = "X-Actor-ID"

// Actor returns who performed the request, for audit entries.
func Actor(r *http.Request) string {
	if actor := r.Header.Get(ActorHeader); actor != "" {
		return actor
	}
	return "system"
}
