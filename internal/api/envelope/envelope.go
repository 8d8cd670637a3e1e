// Package envelope renders the API's response bodies. Every endpoint
// answers {"success": true, "data": ...} or {"error": "<tag>", "details": "..."}.
package envelope

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/json; charset=utf-8"

// Success wraps a successful payload.
type Success struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// Failure is an error response. Error is a stable machine tag; Details is
// human text, or a field map for validation failures.
type Failure struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// Render writes body as JSON with the given HTTP status code.
func Render(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, data any) {
	Render(w, status, Success{Success: true, Data: data})
}

// List writes a success envelope holding items, never null.
func List[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	Render(w, http.StatusOK, Success{Success: true, Data: items})
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, tag string, details any) {
	Render(w, status, Failure{Error: tag, Details: details})
}
