package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/archive"
	"github.com/coldfront-labs/coldfront/internal/campaign"
	"github.com/coldfront-labs/coldfront/internal/importer"
	"github.com/coldfront-labs/coldfront/internal/merge"
	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/schedule"
	"github.com/coldfront-labs/coldfront/internal/store"
	"github.com/coldfront-labs/coldfront/internal/verify"
	"github.com/coldfront-labs/coldfront/internal/web/middleware"
)

// DraftHandler drives the campaign wizard over the API: drafts live in
// memory until launch, every mutation goes through the wizard registry.
type DraftHandler struct {
	campaigns *campaign.Service
	senders   store.SenderAccountStore
	imports   store.ContactImportStore
	uploads   archive.Store
	oracle    verify.Oracle
}

func NewDraftHandler(campaigns *campaign.Service, senders store.SenderAccountStore, imports store.ContactImportStore, uploads archive.Store, oracle verify.Oracle) *DraftHandler {
	return &DraftHandler{
		campaigns: campaigns,
		senders:   senders,
		imports:   imports,
		uploads:   uploads,
		oracle:    oracle,
	}
}

type draftStepPayload struct {
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	ScheduleMode string `json:"schedule_mode"`
	DelayAmount  int    `json:"delay_amount,omitempty"`
	DelayUnit    string `json:"delay_unit,omitempty"`
	AbsoluteDate string `json:"absolute_date,omitempty"`
	AbsoluteTime string `json:"absolute_time,omitempty"`
}

type draftResponse struct {
	ID            uuid.UUID          `json:"id"`
	Stage         campaign.Stage     `json:"stage"`
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	EmailColumn   string             `json:"email_column,omitempty"`
	SenderIDs     []uuid.UUID        `json:"sender_ids"`
	ContactCount  int                `json:"contact_count"`
	ImportSummary *importer.Summary  `json:"import_summary,omitempty"`
	Sequence      []draftStepPayload `json:"sequence"`
	Overrides     map[string]string  `json:"overrides,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (h *DraftHandler) draftToResponse(r *http.Request, d *campaign.Draft) draftResponse {
	resp := draftResponse{
		ID:            d.ID,
		Stage:         d.Stage,
		Name:          d.Name,
		Description:   d.Description,
		EmailColumn:   d.EmailColumn,
		SenderIDs:     []uuid.UUID{},
		ContactCount:  len(d.Contacts),
		ImportSummary: d.ImportSummary,
		Sequence:      []draftStepPayload{},
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}

	if len(d.SenderAccountIDs) > 0 {
		if accounts, err := h.senders.ListSenderAccountsByUserID(r.Context(), d.UserID); err == nil {
			publicByID := make(map[int64]uuid.UUID, len(accounts))
			for _, a := range accounts {
				publicByID[a.ID] = a.PublicID
			}
			for _, id := range d.SenderAccountIDs {
				if pub, ok := publicByID[id]; ok {
					resp.SenderIDs = append(resp.SenderIDs, pub)
				}
			}
		}
	}

	for _, s := range d.Sequence {
		resp.Sequence = append(resp.Sequence, draftStepPayload{
			Subject:      s.Subject,
			Body:         s.Body,
			ScheduleMode: s.Scheduling.Mode,
			DelayAmount:  s.Scheduling.Amount,
			DelayUnit:    s.Scheduling.Unit,
			AbsoluteDate: s.Scheduling.Date,
			AbsoluteTime: s.Scheduling.Time,
		})
	}

	if len(d.Overrides) > 0 {
		resp.Overrides = make(map[string]string, len(d.Overrides))
		for email, o := range d.Overrides {
			resp.Overrides[email] = string(o)
		}
	}

	return resp
}

func (h *DraftHandler) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	d := h.campaigns.Wizard().Create(user.ID)
	writeJSON(w, http.StatusCreated, h.draftToResponse(r, d))
}

func (h *DraftHandler) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	d, err := h.campaigns.Wizard().Get(draftID, user.ID)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.draftToResponse(r, d))
}

func (h *DraftHandler) HandleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	h.campaigns.Wizard().Discard(draftID, user.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"discarded": true})
}

func (h *DraftHandler) HandleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.campaigns.Wizard().UpdateDetails(draftID, user.ID, req.Name, req.Description)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.draftToResponse(r, d))
}

// HandleSetSenders records the selected sender accounts. Order matters: it
// is the rotation order sends are spread in.
func (h *DraftHandler) HandleSetSenders(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	var req struct {
		SenderIDs []uuid.UUID `json:"sender_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	accounts, err := h.senders.ListSenderAccountsByUserID(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to list sender accounts", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	internalByPublic := make(map[uuid.UUID]int64, len(accounts))
	for _, a := range accounts {
		internalByPublic[a.PublicID] = a.ID
	}

	ids := make([]int64, 0, len(req.SenderIDs))
	for _, pub := range req.SenderIDs {
		id, ok := internalByPublic[pub]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown sender account: "+pub.String())
			return
		}
		ids = append(ids, id)
	}

	d, err := h.campaigns.Wizard().SetSenders(draftID, user.ID, ids)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.draftToResponse(r, d))
}

// HandleImportContacts accepts a multipart upload (field "file", CSV or
// XLSX) plus an "email_column" form value, archives the raw file, parses it,
// and replaces the draft's contact list.
func (h *DraftHandler) HandleImportContacts(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(importer.MaxFileBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	emailColumn := r.FormValue("email_column")
	if emailColumn == "" {
		writeError(w, http.StatusBadRequest, "email_column is required")
		return
	}

	table, err := importer.ParseTabular(header.Filename, file)
	if err != nil {
		if errors.Is(err, importer.ErrFileTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contacts, summary, err := importer.BuildContacts(table, emailColumn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Archive the raw upload so the import can be audited later. The import
	// still succeeds if archiving fails.
	key := archive.UploadKey(user.ID, draftID, header.Filename)
	if _, err := file.Seek(0, io.SeekStart); err == nil {
		if raw, err := io.ReadAll(file); err == nil {
			if err := h.uploads.Put(r.Context(), key, header.Header.Get("Content-Type"), raw); err != nil {
				slog.Warn("failed to archive contact upload", "key", key, "error", err)
				key = ""
			}
		}
	}

	if _, err := h.imports.CreateContactImport(r.Context(), store.ContactImportCreateParams{
		UserID:       user.ID,
		FileName:     header.Filename,
		ArchiveKey:   key,
		TotalRows:    summary.TotalRows,
		ImportedRows: summary.Imported,
		SkippedRows:  summary.Skipped,
		Truncated:    summary.Truncated,
	}); err != nil {
		slog.Error("failed to record contact import", "user_id", user.ID, "error", err)
	}

	d, err := h.campaigns.Wizard().SetContacts(draftID, user.ID, contacts, emailColumn, &summary)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.draftToResponse(r, d))
}

func (h *DraftHandler) HandleRemoveContact(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	d, err := h.campaigns.Wizard().RemoveContact(draftID, user.ID, req.Email)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.draftToResponse(r, d))
}

func (h *DraftHandler) HandleSetSequence(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	var req struct {
		Steps []draftStepPayload `json:"steps"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	steps := make([]campaign.DraftStep, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = campaign.DraftStep{
			Subject: s.Subject,
			Body:    s.Body,
			Scheduling: schedule.Step{
				Mode:   s.ScheduleMode,
				Amount: s.DelayAmount,
				Unit:   s.DelayUnit,
				Date:   s.AbsoluteDate,
				Time:   s.AbsoluteTime,
			},
		}
	}

	d, err := h.campaigns.Wizard().SetSequence(draftID, user.ID, steps)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.draftToResponse(r, d))
}

func (h *DraftHandler) HandleSetStage(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	var req struct {
		Stage string `json:"stage"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.campaigns.Wizard().SetStage(draftID, user.ID, campaign.Stage(req.Stage))
	if err != nil {
		if errors.Is(err, campaign.ErrUnknownStage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.draftToResponse(r, d))
}

// HandleDuplicates classifies the draft's contacts against prior campaign
// recipients. "degraded" means the history lookup failed and every contact
// was treated as fresh.
func (h *DraftHandler) HandleDuplicates(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	res, degraded, err := h.campaigns.Duplicates(r.Context(), draftID, user.ID)
	if err != nil {
		writeDraftError(w, err)
		return
	}

	fresh := make([]string, 0, len(res.Fresh))
	for _, c := range res.Fresh {
		fresh = append(fresh, c.Email())
	}
	duplicates := make([]string, 0, len(res.Duplicate))
	for _, c := range res.Duplicate {
		duplicates = append(duplicates, c.Email())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"fresh":      fresh,
		"duplicates": duplicates,
		"degraded":   degraded,
	})
}

func (h *DraftHandler) HandleSetOverrides(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	var req struct {
		Overrides map[string]string `json:"overrides"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	overrides := make(map[string]campaign.Override, len(req.Overrides))
	for email, o := range req.Overrides {
		overrides[email] = campaign.Override(o)
	}

	d, err := h.campaigns.Wizard().SetOverrides(draftID, user.ID, overrides)
	if err != nil {
		if errors.Is(err, campaign.ErrDraftNotFound) || errors.Is(err, campaign.ErrDraftSealed) {
			writeDraftError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.draftToResponse(r, d))
}

// HandlePreview renders a step's subject and body against one of the
// draft's contacts (by email, defaulting to the first) and reports the
// distinct merge tags found.
func (h *DraftHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	var req struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
		Email   string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.campaigns.Wizard().Get(draftID, user.ID)
	if err != nil {
		writeDraftError(w, err)
		return
	}

	var attrs map[string]string
	if len(d.Contacts) > 0 {
		sample := d.Contacts[0]
		if req.Email != "" {
			norm := models.Contact{EmailKey: "email", Attributes: map[string]string{"email": req.Email}}.NormalizedEmail()
			for _, c := range d.Contacts {
				if c.NormalizedEmail() == norm {
					sample = c
					break
				}
			}
		}
		attrs = sample.Attributes
	}

	tags := merge.Tags(req.Subject)
	for _, t := range merge.Tags(req.Body) {
		seen := false
		for _, existing := range tags {
			if existing == t {
				seen = true
				break
			}
		}
		if !seen {
			tags = append(tags, t)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subject": merge.Render(req.Subject, attrs),
		"body":    merge.Render(req.Body, attrs),
		"tags":    tags,
	})
}

// HandleVerifyContact checks one draft contact against the deliverability
// oracle. The verdict is advisory; nothing in the draft changes.
func (h *DraftHandler) HandleVerifyContact(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if _, err := h.campaigns.Wizard().Get(draftID, user.ID); err != nil {
		writeDraftError(w, err)
		return
	}

	res, err := h.oracle.Check(r.Context(), req.Email)
	if err != nil {
		slog.Warn("deliverability check failed", "email", req.Email, "error", err)
		writeError(w, http.StatusBadGateway, "verification service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"email":       req.Email,
		"deliverable": res.Deliverable,
		"reason":      res.Reason,
	})
}

// HandleReview dry-runs assembly: validation, dedup, scheduling, and
// allocation against live sender capacity, with nothing persisted.
func (h *DraftHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	asm, err := h.campaigns.Review(r.Context(), draftID, user.ID)
	if err != nil {
		var verrs campaign.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"state":  campaign.StateDraft,
				"errors": verrs,
			})
			return
		}
		writeDraftError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assemblyToResponse(asm))
}

func (h *DraftHandler) HandleLaunch(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	draftID, ok := parseDraftID(w, r)
	if !ok {
		return
	}

	res, err := h.campaigns.Launch(r.Context(), draftID, user.ID)
	if err != nil {
		var verrs campaign.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"state":  campaign.StateDraft,
				"errors": verrs,
			})
		case errors.Is(err, campaign.ErrLaunchInFlight):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, campaign.ErrDraftNotFound):
			writeError(w, http.StatusNotFound, "draft not found")
		default:
			slog.Error("failed to launch campaign", "draft_id", draftID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"campaign_id": res.Campaign.PublicID,
		"state":       campaign.StateLaunched,
		"scheduled":   res.Scheduled,
		"unassigned":  res.Unassigned,
		"warnings":    res.Warnings,
	})
}

func assemblyToResponse(asm *campaign.Assembly) map[string]any {
	return map[string]any{
		"state":          asm.State,
		"launch_at":      asm.LaunchAt,
		"scheduled":      len(asm.Sends),
		"unassigned":     len(asm.Unassigned),
		"fresh":          asm.FreshCount,
		"duplicates":     asm.DuplicateCount,
		"excluded":       asm.Excluded,
		"warnings":       asm.Warnings,
		"duration_hours": asm.Duration.Hours(),
		"capacity":       map[string]int{"total": asm.Capacity.Total, "used": asm.Capacity.Used, "remaining": asm.Capacity.Remaining},
	}
}

func parseDraftID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "draftID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "draft id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func writeDraftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrDraftNotFound):
		writeError(w, http.StatusNotFound, "draft not found")
	case errors.Is(err, campaign.ErrDraftSealed):
		writeError(w, http.StatusConflict, "draft is sealed after launch")
	default:
		slog.Error("draft operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
