package protected

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"auth-service/internal/auth"
	"auth-service/internal/observability"
)

// Handler serves the resources gated by the verification middleware. The
// identity comes from the request context; the middleware guarantees it is
// present by the time these run.
type Handler struct {
	logger *observability.Logger
}

func NewHandler(logger *observability.Logger) *Handler {
	return &Handler{logger: logger}
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	h.logger.Info("dashboard_accessed", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Welcome, %s!", user.Username)})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	h.logger.Info("profile_accessed", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":        user.ID,
			"username":  user.Username,
			"createdAt": user.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
