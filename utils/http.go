package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse represents a structured error response. Detail carries the
// human readable message.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Detail  string                 `json:"detail"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with data as the body
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteBadRequest writes a 400 Bad Request response with error details
func WriteBadRequest(w http.ResponseWriter, detail string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, detail, details)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, detail string) error {
	if detail == "" {
		detail = "Resource not found"
	}
	return WriteError(w, http.StatusNotFound, detail, nil)
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, detail string) error {
	if detail == "" {
		detail = "Internal server error"
	}
	return WriteError(w, http.StatusInternalServerError, detail, nil)
}

// WriteError writes an error response based on the status code
func WriteError(w http.ResponseWriter, status int, detail string, details map[string]interface{}) error {
	var errorType string
	switch status {
	case http.StatusBadRequest:
		errorType = "bad_request"
	case http.StatusNotFound:
		errorType = "not_found"
	case http.StatusMethodNotAllowed:
		errorType = "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		errorType = "request_too_large"
	case http.StatusTooManyRequests:
		errorType = "rate_limit_exceeded"
	case http.StatusBadGateway:
		errorType = "bad_gateway"
	case http.StatusServiceUnavailable:
		errorType = "service_unavailable"
	case http.StatusGatewayTimeout:
		errorType = "gateway_timeout"
	default:
		errorType = "internal_error"
	}

	return WriteJSON(w, status, ErrorResponse{
		Error:   errorType,
		Detail:  detail,
		Details: details,
	})
}
