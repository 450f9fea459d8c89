// Package utils holds helpers shared by the docstore binaries and the
// observability endpoints.
package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// RespondJSON sends a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// The status is already written; log only.
		slog.DebugContext(r.Context(), "Failed to write response", "err", err)
	}
}
