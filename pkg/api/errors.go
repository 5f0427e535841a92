package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an API error. It decides the
// transport status a failure is reported with.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"
	ErrorTypeEngineError     ErrorType = "engine_error"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// ErrorKind discriminates the validation failures reported as
// ErrorTypeInvalidRequest.
type ErrorKind string

const (
	// KindStructural marks a missing or wrongly shaped required field.
	KindStructural ErrorKind = "structural"

	// KindFieldType marks a field that is present but has the wrong type.
	KindFieldType ErrorKind = "field_type"

	// KindSpinChargeViolation marks a molecule whose electron count and
	// spin multiplicity have different parity.
	KindSpinChargeViolation ErrorKind = "spin_charge_violation"

	// KindUnsupportedValue marks a value outside a fixed enumeration:
	// element symbols, solver names, convergence parameter keys.
	KindUnsupportedValue ErrorKind = "unsupported_value"
)

// SpinChargeViolation is the payload of a parity failure.
type SpinChargeViolation struct {
	Charge           int `json:"charge"`
	SpinMultiplicity int `json:"spin_multiplicity"`
	Electrons        int `json:"electrons"`
	Spin             int `json:"spin"`
}

// APIError represents a structured API error with type, kind, param, and message.
type APIError struct {
	Type      ErrorType            `json:"type"`
	Kind      ErrorKind            `json:"kind,omitempty"`
	Param     string               `json:"param,omitempty"`
	Message   string               `json:"message"`
	Violation *SpinChargeViolation `json:"violation,omitempty"`

	// cause is logged by the transport but never serialized.
	cause error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	prefix := string(e.Type)
	if e.Kind != "" {
		prefix += "/" + string(e.Kind)
	}
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", prefix, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *APIError) Unwrap() error {
	return e.cause
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewStructuralError creates an APIError for a missing or malformed field.
func NewStructuralError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Kind:    KindStructural,
		Param:   param,
		Message: message,
	}
}

// NewFieldTypeError creates an APIError for a field with the wrong type.
func NewFieldTypeError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Kind:    KindFieldType,
		Param:   param,
		Message: message,
	}
}

// NewUnsupportedValueError creates an APIError for a value outside a fixed enumeration.
func NewUnsupportedValueError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Kind:    KindUnsupportedValue,
		Param:   param,
		Message: message,
	}
}

// NewSpinChargeError creates the parity violation error. The message reports
// the electron count and the derived spin 2S = spin_multiplicity - 1.
func NewSpinChargeError(charge, multiplicity, electrons int) *APIError {
	spin := multiplicity - 1
	return &APIError{
		Type:  ErrorTypeInvalidRequest,
		Kind:  KindSpinChargeViolation,
		Param: "molecule",
		Message: fmt.Sprintf(
			"invalid charge/spin combination: electron count %d and spin %d have different parity (charge %d, spin_multiplicity %d)",
			electrons, spin, charge, multiplicity),
		Violation: &SpinChargeViolation{
			Charge:           charge,
			SpinMultiplicity: multiplicity,
			Electrons:        electrons,
			Spin:             spin,
		},
	}
}

// NewUnauthenticatedError creates an APIError for missing or rejected credentials.
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUnauthenticated,
		Message: message,
	}
}

// NewEngineError creates an APIError for input the electronic-structure
// engine refused (unknown basis, unknown functional, no convergence).
func NewEngineError(message string, cause error) *APIError {
	return &APIError{
		Type:    ErrorTypeEngineError,
		Message: message,
		cause:   cause,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewInternalError creates a server error that keeps the detailed cause for
// operators while the client only sees a generic notice.
func NewInternalError(cause error) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: "internal error",
		cause:   cause,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}

// AsAPIError extracts an *APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsClientError reports whether err was caused by the caller's input and
// must not be retried.
func IsClientError(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	switch apiErr.Type {
	case ErrorTypeInvalidRequest, ErrorTypeEngineError, ErrorTypeUnauthenticated, ErrorTypeNotFound:
		return true
	}
	return false
}
