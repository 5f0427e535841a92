package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/provider"
)

// MapHTTPError converts an HTTP response with a non-2xx status code into
// an APIError. Input the engine refuses (400, 422) becomes an engine error
// reported to the client; everything else is a server error.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := ExtractErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		if message == "" {
			message = "the engine rejected the calculation input"
		}
		return api.NewEngineError(message, nil)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "engine authentication failed"
		}
		return api.NewServerError(message)

	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "engine rate limit exceeded"
		}
		return api.NewTooManyRequestsError(message)

	case resp.StatusCode >= http.StatusInternalServerError:
		if message == "" {
			message = fmt.Sprintf("engine server error (HTTP %d)", resp.StatusCode)
		}
		return api.NewServerError(message)

	default:
		if message == "" {
			message = fmt.Sprintf("unexpected engine error (HTTP %d)", resp.StatusCode)
		}
		return api.NewServerError(message)
	}
}

// MapNetworkError converts a network-level error (connection refused, timeout,
// DNS resolution failure) into an APIError with a descriptive message.
func MapNetworkError(err error) *api.APIError {
	return api.NewServerError(fmt.Sprintf("engine connection error: %s", err.Error()))
}

// ExtractErrorMessage tries to parse the response body as a provider.ErrorBody
// and returns the error message if found.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp provider.ErrorBody
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
