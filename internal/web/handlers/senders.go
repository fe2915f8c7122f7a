package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/allocator"
	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/store"
	"github.com/coldfront-labs/coldfront/internal/web/middleware"
)

// SenderHandler manages sender accounts: the SMTP identities campaigns
// rotate across.
type SenderHandler struct {
	senders store.SenderAccountStore
}

func NewSenderHandler(senders store.SenderAccountStore) *SenderHandler {
	return &SenderHandler{senders: senders}
}

type senderResponse struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Provider   string    `json:"provider"`
	SMTPHost   string    `json:"smtp_host"`
	SMTPPort   int       `json:"smtp_port"`
	DailyLimit int       `json:"daily_limit"`
	SentToday  int       `json:"sent_today"`
	Remaining  int       `json:"remaining"`
	CreatedAt  time.Time `json:"created_at"`
}

// SMTP credentials never leave the server once stored.
func senderToResponse(a models.SenderAccount) senderResponse {
	return senderResponse{
		ID:         a.PublicID,
		Email:      a.Email,
		Provider:   a.Provider,
		SMTPHost:   a.SMTPHost,
		SMTPPort:   a.SMTPPort,
		DailyLimit: a.DailyLimit,
		SentToday:  a.SentToday,
		Remaining:  a.Remaining(),
		CreatedAt:  a.CreatedAt,
	}
}

func (h *SenderHandler) HandleCreateSender(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req struct {
		Email      string `json:"email"`
		Provider   string `json:"provider"`
		SMTPHost   string `json:"smtp_host"`
		SMTPPort   int    `json:"smtp_port"`
		SMTPUser   string `json:"smtp_user"`
		SMTPPass   string `json:"smtp_pass"`
		DailyLimit int    `json:"daily_limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "email must be a valid address")
		return
	}
	if req.DailyLimit <= 0 {
		writeError(w, http.StatusBadRequest, "daily_limit must be positive")
		return
	}
	if req.SMTPPort == 0 {
		req.SMTPPort = 587
	}

	account, err := h.senders.CreateSenderAccount(r.Context(), store.SenderAccountCreateParams{
		UserID:     user.ID,
		Email:      req.Email,
		Provider:   req.Provider,
		SMTPHost:   req.SMTPHost,
		SMTPPort:   req.SMTPPort,
		SMTPUser:   req.SMTPUser,
		SMTPPass:   req.SMTPPass,
		DailyLimit: req.DailyLimit,
	})
	if err != nil {
		slog.Error("failed to create sender account", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, senderToResponse(*account))
}

func (h *SenderHandler) HandleListSenders(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	accounts, err := h.senders.ListSenderAccountsByUserID(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to list sender accounts", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]senderResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, senderToResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"senders": out})
}

// HandleCapacity reports the user's pooled daily capacity across all sender
// accounts.
func (h *SenderHandler) HandleCapacity(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	accounts, err := h.senders.ListSenderAccountsByUserID(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to list sender accounts", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	pool := allocator.CapacityOf(accounts)
	writeJSON(w, http.StatusOK, map[string]int{
		"total":     pool.Total,
		"used":      pool.Used,
		"remaining": pool.Remaining,
	})
}

func (h *SenderHandler) HandleDeleteSender(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	publicID, err := uuid.Parse(chi.URLParam(r, "senderID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "sender id must be a valid UUID")
		return
	}

	account, err := h.senders.GetSenderAccountByPublicID(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "sender account not found")
			return
		}
		slog.Error("failed to load sender account", "public_id", publicID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if account.UserID != user.ID {
		writeError(w, http.StatusNotFound, "sender account not found")
		return
	}

	if err := h.senders.DeleteSenderAccount(r.Context(), user.ID, account.ID); err != nil {
		slog.Error("failed to delete sender account", "sender_id", account.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
