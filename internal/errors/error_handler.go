// Package errors provides error handling and HTTP status mapping for
// the distribution API.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/store"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	ErrorCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeRateLimited        ErrorCode = "RATE_LIMITED"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// Handler provides error handling functionality.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{logger: logger}
}

// HandleError maps a domain error to an HTTP response. Not-found
// covers both missing coordinates and readers racing cleanup of a
// superseded etag; callers re-fetch the list resource and retry.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-ID")

	if errors.Is(err, store.ErrNotFound) {
		h.WriteErrorResponse(w, http.StatusNotFound, ErrorCodeNotFound, "no data for the requested coordinates", requestID)
		return
	}

	h.logger.Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestID),
		zap.Error(err))
	h.WriteErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error", requestID)
}

// WriteErrorResponse writes a standard JSON error response.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message, requestID string) {
	response := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
