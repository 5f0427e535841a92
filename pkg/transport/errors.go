package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

// HTTPStatusFromError maps an APIError type to the corresponding HTTP status
// code. Transport-level errors (body too large, unsupported content type)
// are handled separately by the HTTP adapter.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest, api.ErrorTypeEngineError:
		return http.StatusBadRequest
	case api.ErrorTypeUnauthenticated:
		return http.StatusUnauthorized
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ToAPIError returns err as an APIError. Errors of any other type are
// logged with their detail and replaced by a generic internal error.
func ToAPIError(err error) *api.APIError {
	if apiErr, ok := api.AsAPIError(err); ok {
		return apiErr
	}
	slog.Error("unclassified error", slog.String("error", err.Error()))
	return api.NewInternalError(err)
}

// WriteErrorResponse writes a JSON error response using the ErrorResponse
// wrapper format from pkg/api. It sets the Content-Type header and writes
// the HTTP status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes an APIError response, deriving the HTTP status code
// from the error type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

// WriteError classifies err and writes it.
func WriteError(w http.ResponseWriter, err error) {
	WriteAPIError(w, ToAPIError(err))
}
