package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EdgeError represents an error that can be returned to clients
type EdgeError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	underlying error
}

func (e *EdgeError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *EdgeError) Unwrap() error {
	return e.underlying
}

// WriteJSON writes the error as JSON to the response.
// For base errors (no details/requestID), uses pre-serialized JSON to avoid allocations.
func (e *EdgeError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	if pre, ok := preSerialized[e]; ok {
		w.Write(pre)
		return
	}
	json.NewEncoder(w).Encode(e)
}

// Common errors
var (
	ErrNotFound = &EdgeError{
		Code:    http.StatusNotFound,
		Message: "Not Found",
	}

	ErrMethodNotAllowed = &EdgeError{
		Code:    http.StatusMethodNotAllowed,
		Message: "Method Not Allowed",
	}

	ErrBadGateway = &EdgeError{
		Code:    http.StatusBadGateway,
		Message: "Bad Gateway",
	}

	ErrGatewayTimeout = &EdgeError{
		Code:    http.StatusGatewayTimeout,
		Message: "Gateway Timeout",
	}

	ErrServiceUnavailable = &EdgeError{
		Code:    http.StatusServiceUnavailable,
		Message: "Service Unavailable",
	}

	ErrBadRequest = &EdgeError{
		Code:    http.StatusBadRequest,
		Message: "Bad Request",
	}

	ErrInternalServer = &EdgeError{
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
	}
)

// ErrNoCachedData is returned on the network-first paths when the network
// fetch failed and no cache fallback exists for the request key.
var ErrNoCachedData = &EdgeError{
	Code:    http.StatusBadGateway,
	Message: "Bad Gateway",
	Details: "network error, no cached data available",
}

// preSerialized holds JSON-encoded bytes for base error singletons.
var preSerialized map[*EdgeError][]byte

func init() {
	bases := []*EdgeError{
		ErrNotFound, ErrMethodNotAllowed, ErrBadGateway, ErrGatewayTimeout,
		ErrServiceUnavailable, ErrBadRequest, ErrInternalServer, ErrNoCachedData,
	}
	preSerialized = make(map[*EdgeError][]byte, len(bases))
	for _, e := range bases {
		b, _ := json.Marshal(e)
		b = append(b, '\n') // match json.Encoder behavior
		preSerialized[e] = b
	}
}

// New creates a new EdgeError
func New(code int, message string) *EdgeError {
	return &EdgeError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code int, message string) *EdgeError {
	return &EdgeError{
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// WithDetails adds details to the error
func (e *EdgeError) WithDetails(details string) *EdgeError {
	return &EdgeError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		RequestID:  e.RequestID,
		underlying: e.underlying,
	}
}

// WithRequestID adds a request ID to the error
func (e *EdgeError) WithRequestID(requestID string) *EdgeError {
	return &EdgeError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    e.Details,
		RequestID:  requestID,
		underlying: e.underlying,
	}
}

// IsEdgeError checks if an error is an EdgeError
func IsEdgeError(err error) (*EdgeError, bool) {
	if ee, ok := err.(*EdgeError); ok {
		return ee, true
	}
	return nil, false
}
