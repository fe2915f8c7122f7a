package handlers

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/store"
)

// EventsHandler ingests delivery feedback posted by the transport side:
// bounce and failure notifications reported against a send's public ID.
// The endpoint is guarded by a static bearer token, not an API key.
type EventsHandler struct {
	sends store.PlannedSendStore
	token string
}

func NewEventsHandler(sends store.PlannedSendStore, token string) *EventsHandler {
	return &EventsHandler{sends: sends, token: token}
}

var allowedOutcomes = map[string]bool{
	models.SendStatusSent:    true,
	models.SendStatusFailed:  true,
	models.SendStatusBounced: true,
}

func (h *EventsHandler) HandleDeliveryEvent(w http.ResponseWriter, r *http.Request) {
	if h.token == "" || subtle.ConstantTimeCompare([]byte(bearerToken(r)), []byte(h.token)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid events token")
		return
	}

	var req struct {
		SendID uuid.UUID `json:"send_id"`
		Status string    `json:"status"`
		Reason string    `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SendID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "send_id is required")
		return
	}
	if !allowedOutcomes[req.Status] {
		writeError(w, http.StatusBadRequest, "status must be sent, failed, or bounced")
		return
	}

	err := h.sends.RecordDeliveryOutcome(r.Context(), req.SendID, req.Status, req.Reason, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "send not found")
			return
		}
		slog.Error("failed to record delivery outcome", "send_id", req.SendID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}
