package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"contributi/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto the API's status codes. Field-level
// failures render as 422 with a per-field message map; everything else is
// kept opaque.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve := core.AsValidation(err); ve != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": ve.Fields})
		return
	}
	switch {
	case errors.Is(err, core.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "url", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
