package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/localrivet/dialoguesum/internal/errortypes"
)

// ErrorResponse represents the structure of error responses sent by the API
type ErrorResponse struct {
	Status  string                 `json:"status"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Common error codes
const (
	// ErrorCodeInvalidRequest indicates the request body could not be used
	ErrorCodeInvalidRequest = "INVALID_REQUEST"

	// ErrorCodeInternalError indicates an internal server error
	ErrorCodeInternalError = "INTERNAL_ERROR"

	// ErrorCodeResourceNotFound indicates a requested resource was not found
	ErrorCodeResourceNotFound = "RESOURCE_NOT_FOUND"

	// ErrorCodeMethodNotAllowed indicates the route exists for other methods
	ErrorCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"

	// ErrorCodeBadGateway indicates a failure in the model runtime
	ErrorCodeBadGateway = "BAD_GATEWAY"

	// ErrorCodeTimeout indicates the request gave up before a summary was ready
	ErrorCodeTimeout = "TIMEOUT"
)

// writeErrorResponse writes a structured error response to the HTTP response writer
func writeErrorResponse(w http.ResponseWriter, status int, code, message string, err error) {
	errResp := ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}

		logErr := errortypes.InternalError(err, fmt.Sprintf("API error (%s)", code)).
			WithField("status_code", status).
			WithField("error_code", code).
			WithField("client_message", message)
		if status >= http.StatusInternalServerError {
			errortypes.LogError(nil, logErr)
		} else {
			slog.Debug("Client error", "status_code", status, "error_code", code, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// HandleUnprocessable handles 422 responses for bodies that are not a valid
// summarize request.
func HandleUnprocessable(w http.ResponseWriter, message string, err error) {
	writeErrorResponse(w, http.StatusUnprocessableEntity, ErrorCodeInvalidRequest, message, err)
}

// HandleNotFound handles 404 Not Found errors
func HandleNotFound(w http.ResponseWriter, message string, err error) {
	writeErrorResponse(w, http.StatusNotFound, ErrorCodeResourceNotFound, message, err)
}

// HandleMethodNotAllowed handles 405 errors
func HandleMethodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeErrorResponse(w, http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed, "Method not allowed", nil)
}

// HandleInternalError handles 500 Internal Server Error errors
func HandleInternalError(w http.ResponseWriter, message string, err error) {
	writeErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, message, err)
}

// HandleBadGateway handles 502 Bad Gateway errors
func HandleBadGateway(w http.ResponseWriter, message string, err error) {
	writeErrorResponse(w, http.StatusBadGateway, ErrorCodeBadGateway, message, err)
}

// HandleTimeout handles 504 Gateway Timeout errors
func HandleTimeout(w http.ResponseWriter, message string, err error) {
	writeErrorResponse(w, http.StatusGatewayTimeout, ErrorCodeTimeout, message, err)
}

// HandleError inspects err's type to pick the HTTP response.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *errortypes.AppError
	if !errors.As(err, &appErr) {
		HandleInternalError(w, "An unexpected error occurred", err)
		return
	}

	switch appErr.Type {
	case errortypes.ErrorTypeValidation:
		HandleUnprocessable(w, "Invalid request parameters", err)
	case errortypes.ErrorTypeNetwork, errortypes.ErrorTypeExternal:
		HandleBadGateway(w, "Model runtime error", err)
	case errortypes.ErrorTypeCanceled:
		HandleTimeout(w, "Summarization did not complete", err)
	default:
		HandleInternalError(w, "An unexpected error occurred", err)
	}
}
