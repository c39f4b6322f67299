package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	appI18n "github.com/pavelanni/testmaker/internal/i18n"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError writes {"error": <localized msgID>}.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), msgID)})
}

// writeMessage writes {"message": <localized msgID>} merged with extra fields.
func writeMessage(w http.ResponseWriter, r *http.Request, status int, msgID string, extra map[string]any) {
	body := map[string]any{"message": appI18n.T(r.Context(), msgID)}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}
