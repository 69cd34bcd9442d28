package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/auth"
	"github.com/ebogdum/jobgate/internal/idutil"
	"github.com/ebogdum/jobgate/jobs"
	"github.com/ebogdum/jobgate/locks"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendErrorResponse sends a standardized JSON error response
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, defaultStatusCode int) {
	w.Header().Set("Content-Type", "application/json")

	var statusCode int
	var errorCode string

	switch {
	case errors.Is(err, jobs.ErrNotFound):
		statusCode = http.StatusNotFound
		errorCode = "JOB_NOT_FOUND"
	case errors.Is(err, locks.ErrIllegalState):
		statusCode = http.StatusConflict
		errorCode = "ILLEGAL_STATE"
	case errors.Is(err, idutil.ErrInvalidID):
		statusCode = http.StatusBadRequest
		errorCode = "INVALID_ID"
	case errors.Is(err, idutil.ErrInvalidLimit):
		statusCode = http.StatusBadRequest
		errorCode = "INVALID_LIMIT"
	case errors.Is(err, auth.ErrAuthenticationFailed):
		statusCode = http.StatusUnauthorized
		errorCode = "AUTHENTICATION_FAILED"
	case errors.Is(err, locks.ErrComputeConflict):
		statusCode = http.StatusServiceUnavailable
		errorCode = "LOCK_CONTENTION"
	case errors.Is(err, context.DeadlineExceeded):
		statusCode = http.StatusGatewayTimeout
		errorCode = "TIMEOUT"
	default:
		statusCode = defaultStatusCode
		errorCode = "INTERNAL_ERROR"
	}

	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Code:    errorCode,
		Message: err.Error(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
		fmt.Fprintf(w, "Internal error occurred")
	}

	logger.Info("Error response sent",
		zap.String("error_code", errorCode),
		zap.Int("status_code", statusCode),
		zap.Error(err))
}

// SendJSONResponse sends a JSON response with any data structure
func SendJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"error":"Failed to encode response"}`)
	}
}
