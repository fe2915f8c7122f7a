package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/campaign"
	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/store"
	"github.com/coldfront-labs/coldfront/internal/web/middleware"
)

// CampaignHandler serves launched campaigns: the read-only record plus
// reallocation of unassigned sends.
type CampaignHandler struct {
	service   *campaign.Service
	campaigns store.CampaignStore
	sends     store.PlannedSendStore
}

func NewCampaignHandler(service *campaign.Service, campaigns store.CampaignStore, sends store.PlannedSendStore) *CampaignHandler {
	return &CampaignHandler{
		service:   service,
		campaigns: campaigns,
		sends:     sends,
	}
}

type campaignResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	EmailColumn string    `json:"email_column"`
	Status      string    `json:"status"`
	LaunchedAt  time.Time `json:"launched_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func campaignToResponse(c models.Campaign) campaignResponse {
	return campaignResponse{
		ID:          c.PublicID,
		Name:        c.Name,
		Description: c.Description,
		EmailColumn: c.EmailColumn,
		Status:      c.Status,
		LaunchedAt:  c.LaunchedAt,
		CreatedAt:   c.CreatedAt,
	}
}

func (h *CampaignHandler) HandleListCampaigns(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	limit, offset := pagination(r, 50)

	campaigns, err := h.campaigns.ListCampaignsByUserID(r.Context(), user.ID, limit, offset)
	if err != nil {
		slog.Error("failed to list campaigns", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, campaignToResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": out})
}

// HandleGetCampaign returns one campaign with its sequence steps and send
// counters.
func (h *CampaignHandler) HandleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCampaign(w, r)
	if !ok {
		return
	}

	steps, err := h.campaigns.ListSequenceStepsByCampaignID(r.Context(), c.ID)
	if err != nil {
		slog.Error("failed to list sequence steps", "campaign_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	stats, err := h.campaigns.GetCampaignStats(r.Context(), c.ID)
	if err != nil {
		slog.Error("failed to load campaign stats", "campaign_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	type stepResponse struct {
		Ordinal      int    `json:"ordinal"`
		Subject      string `json:"subject"`
		ScheduleMode string `json:"schedule_mode"`
		DelayAmount  int    `json:"delay_amount,omitempty"`
		DelayUnit    string `json:"delay_unit,omitempty"`
		AbsoluteDate string `json:"absolute_date,omitempty"`
		AbsoluteTime string `json:"absolute_time,omitempty"`
	}
	stepOut := make([]stepResponse, 0, len(steps))
	for _, s := range steps {
		stepOut = append(stepOut, stepResponse{
			Ordinal:      s.Ordinal,
			Subject:      s.Subject,
			ScheduleMode: s.ScheduleMode,
			DelayAmount:  s.DelayAmount,
			DelayUnit:    s.DelayUnit,
			AbsoluteDate: s.AbsoluteDate,
			AbsoluteTime: s.AbsoluteTime,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"campaign": campaignToResponse(*c),
		"steps":    stepOut,
		"stats": map[string]int{
			"total":      stats.Total,
			"scheduled":  stats.Scheduled,
			"queued":     stats.Queued,
			"sent":       stats.Sent,
			"failed":     stats.Failed,
			"bounced":    stats.Bounced,
			"unassigned": stats.Unassigned,
			"opened":     stats.Opened,
		},
	})
}

func (h *CampaignHandler) HandleListSends(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCampaign(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r, 100)

	sends, err := h.sends.ListPlannedSendsByCampaignID(r.Context(), c.ID, limit, offset)
	if err != nil {
		slog.Error("failed to list planned sends", "campaign_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	type sendResponse struct {
		ID          uuid.UUID  `json:"id"`
		Recipient   string     `json:"recipient"`
		Subject     string     `json:"subject"`
		ScheduledAt time.Time  `json:"scheduled_at"`
		Status      string     `json:"status"`
		Attempts    int        `json:"attempts"`
		SentAt      *time.Time `json:"sent_at,omitempty"`
		OpenedAt    *time.Time `json:"opened_at,omitempty"`
		Error       string     `json:"error,omitempty"`
	}
	out := make([]sendResponse, 0, len(sends))
	for _, ps := range sends {
		out = append(out, sendResponse{
			ID:          ps.PublicID,
			Recipient:   ps.RecipientEmail,
			Subject:     ps.RenderedSubject,
			ScheduledAt: ps.ScheduledAt,
			Status:      ps.Status,
			Attempts:    ps.Attempts,
			SentAt:      ps.SentAt,
			OpenedAt:    ps.OpenedAt,
			Error:       ps.ErrorMessage,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sends": out})
}

// HandleReallocate retries the campaign's unassigned sends against current
// sender capacity.
func (h *CampaignHandler) HandleReallocate(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	publicID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "campaign id must be a valid UUID")
		return
	}

	assigned, remaining, err := h.service.Reallocate(r.Context(), publicID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, campaign.ErrCampaignMissing):
			writeError(w, http.StatusNotFound, "campaign not found")
		case errors.Is(err, campaign.ErrNoUnassigned):
			writeError(w, http.StatusConflict, "campaign has no unassigned sends")
		default:
			slog.Error("failed to reallocate sends", "campaign_id", publicID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"assigned":  assigned,
		"remaining": remaining,
	})
}

func (h *CampaignHandler) loadCampaign(w http.ResponseWriter, r *http.Request) (*models.Campaign, bool) {
	user := middleware.UserFromContext(r.Context())

	publicID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "campaign id must be a valid UUID")
		return nil, false
	}

	c, err := h.campaigns.GetCampaignByPublicID(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return nil, false
		}
		slog.Error("failed to load campaign", "public_id", publicID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	if c.UserID != user.ID {
		writeError(w, http.StatusNotFound, "campaign not found")
		return nil, false
	}
	return c, true
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
