// Package httpapi exposes the PRIME research endpoints: the
// synchronous pipeline, the background task API backed by Temporal,
// and the SSE progress stream.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// writeJSON writes a JSON response with status and content-type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes an error body in the {"detail": ...} shape the
// API's existing clients parse.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// authorized checks the optional Bearer token gate. An empty configured
// token disables the gate.
func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token
}
