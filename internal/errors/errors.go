package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a MemoMind error code.
type ErrorCode string

const (
	ErrAuthRequired       ErrorCode = "AUTH_REQUIRED"       // 401 (local, no request sent)
	ErrSessionExpired     ErrorCode = "SESSION_EXPIRED"     // 401 (server)
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrBusy               ErrorCode = "BUSY"                // 409
	ErrUnexpectedFormat   ErrorCode = "UNEXPECTED_FORMAT"   // 422
	ErrServerError        ErrorCode = "SERVER_ERROR"        // status from server
	ErrNetworkUnreachable ErrorCode = "NETWORK_UNREACHABLE" // 0
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// NetworkMessage is shown when a request was sent but no response came back.
const NetworkMessage = "Network error - please check your connection"

// APIError is the normalized error shape returned across the client.
// Status is the HTTP status when one was received, 0 otherwise.
type APIError struct {
	Code    ErrorCode
	Status  int
	Message string
	Data    any
	Details map[string]any
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthRequired creates an error for operations attempted without an identity.
func NewAuthRequired() *APIError {
	return &APIError{
		Code:    ErrAuthRequired,
		Status:  401,
		Message: "User not authenticated. Please login again.",
	}
}

// NewSessionExpired creates an error for a 401 response from the backend.
func NewSessionExpired() *APIError {
	return &APIError{
		Code:    ErrSessionExpired,
		Status:  401,
		Message: "session expired, please login again",
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *APIError {
	return &APIError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing local resource.
func NewNotFound(identifier string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewBusy creates an error for a workflow that already has a call in flight.
func NewBusy(phase string) *APIError {
	return &APIError{
		Code:    ErrBusy,
		Status:  409,
		Message: fmt.Sprintf("workflow is busy (%s)", phase),
		Details: map[string]any{"phase": phase},
	}
}

// NewUnexpectedFormat creates an error for a response that parsed but matched
// no known shape. detail carries the raw text when parsing failed.
func NewUnexpectedFormat(detail string) *APIError {
	return &APIError{
		Code:    ErrUnexpectedFormat,
		Status:  422,
		Message: "unexpected response format",
		Details: map[string]any{"detail": detail},
	}
}

// NewServerError creates an error for a non-2xx response. An empty message
// falls back to "Server error (status)".
func NewServerError(status int, message string, data any) *APIError {
	if message == "" {
		message = fmt.Sprintf("Server error (%d)", status)
	}
	return &APIError{
		Code:    ErrServerError,
		Status:  status,
		Message: message,
		Data:    data,
	}
}

// NewNetworkUnreachable creates an error for a request that got no response.
func NewNetworkUnreachable(err error) *APIError {
	details := map[string]any{}
	if err != nil {
		details["transport_error"] = err.Error()
	}
	return &APIError{
		Code:    ErrNetworkUnreachable,
		Status:  0,
		Message: NetworkMessage,
		Details: details,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The original error is kept in Details for logging.
func NewInternal(err error) *APIError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &APIError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error (or anything it wraps) is an APIError with the given code.
func Is(err error, code ErrorCode) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// As returns the APIError carried by err, if any.
func As(err error) (*APIError, bool) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Reason builds the human-readable failure reason shown to users: the
// server-provided message, else the status line, else the network message.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	apiErr, ok := As(err)
	if !ok {
		return err.Error()
	}
	switch apiErr.Code {
	case ErrServerError:
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fmt.Sprintf("Server error (%d)", apiErr.Status)
	case ErrNetworkUnreachable:
		return "No response from server. Network error or server is unreachable."
	default:
		return apiErr.Message
	}
}
