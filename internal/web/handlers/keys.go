package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coldfront-labs/coldfront/internal/auth"
	"github.com/coldfront-labs/coldfront/internal/store"
	"github.com/coldfront-labs/coldfront/internal/web/middleware"
)

// KeyHandler manages API keys for the authenticated user.
type KeyHandler struct {
	auth *auth.Service
	keys store.APIKeyStore
}

func NewKeyHandler(authService *auth.Service, keys store.APIKeyStore) *KeyHandler {
	return &KeyHandler{auth: authService, keys: keys}
}

// HandleCreateKey issues a new API key. The token appears in this response
// and nowhere else.
func (h *KeyHandler) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req struct {
		Label string `json:"label"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	issued, err := h.auth.CreateKey(r.Context(), user.ID, req.Label)
	if err != nil {
		slog.Error("failed to create API key", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    issued.Key.ID,
		"label": issued.Key.Label,
		"token": issued.Token,
	})
}

func (h *KeyHandler) HandleDeleteKey(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "keyID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "key id must be an integer")
		return
	}

	if err := h.keys.DeleteAPIKey(r.Context(), user.ID, id); err != nil {
		slog.Error("failed to delete API key", "user_id", user.ID, "key_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
