package server

import (
	"encoding/json"
	"net/http"
)

// outcome is the envelope mutation routes answer with: the text to surface
// and whether the client should reload the dashboard.
type outcome struct {
	Message string `json:"message"`
	Refresh bool   `json:"refresh"`
}

// respondJSON sends a JSON response with the given status code and payload.
// If the payload is nil, no body is sent.
func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		// Headers are already written, so an encode failure cannot be
		// reported to the client.
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}
