package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/store"
)

// trackingGIF is a 1x1 transparent GIF served by the open-tracking pixel.
var trackingGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingHandler serves the public open-tracking pixel embedded in sent
// emails. It always answers with the GIF, whatever happens on the way: a
// broken tracking URL must never show the recipient an error.
type TrackingHandler struct {
	sends store.PlannedSendStore
}

func NewTrackingHandler(sends store.PlannedSendStore) *TrackingHandler {
	return &TrackingHandler{sends: sends}
}

func (h *TrackingHandler) HandleOpenPixel(w http.ResponseWriter, r *http.Request) {
	if publicID, err := uuid.Parse(chi.URLParam(r, "sendID")); err == nil {
		if err := h.sends.MarkPlannedSendOpened(r.Context(), publicID, time.Now().UTC()); err != nil {
			slog.Warn("failed to record open", "send_id", publicID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(trackingGIF)
}
