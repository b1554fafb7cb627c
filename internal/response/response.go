// Package response provides shared JSON response helpers for HTTP handlers.
package response

import (
	"encoding/json"
	"net/http"
)

// ErrorBody describes what went wrong and how the caller can fix it.
type ErrorBody struct {
	Message string `json:"message"`
	Fix     string `json:"fix"`
}

// Envelope is the standard API response envelope.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// JSON writes a JSON-encoded payload with the given HTTP status code.
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Text writes a plain-text body.
func Text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// OK writes a 200 response carrying a human-readable message.
func OK(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, Envelope{Success: true, Message: message})
}

// Error writes an error response with the given status, message and fix.
func Error(w http.ResponseWriter, status int, message, fix string) {
	JSON(w, status, Envelope{Success: false, Error: &ErrorBody{Message: message, Fix: fix}})
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, message, fix string) {
	Error(w, http.StatusBadRequest, message, fix)
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter, message, fix string) {
	Error(w, http.StatusUnauthorized, message, fix)
}

// InternalError writes a 500 response with a generic message.
func InternalError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "Internal server error.", "Try again later.")
}
