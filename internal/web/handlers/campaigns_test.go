package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/campaign"
	"github.com/coldfront-labs/coldfront/internal/models"
)

type campaignTestEnv struct {
	router    *chi.Mux
	campaigns *mockCampaignStore
	sends     *mockSendStore
	senders   *mockSenderStore
	launches  *mockLaunchStore
}

func newCampaignTestEnv(t *testing.T) *campaignTestEnv {
	t.Helper()

	campaigns := newMockCampaignStore()
	sends := newMockSendStore()
	senders := newMockSenderStore()
	launches := &mockLaunchStore{}
	service := campaign.NewService(campaign.NewWizard(0), senders, campaigns, campaigns, launches, sends)
	h := NewCampaignHandler(service, campaigns, sends)

	r := chi.NewRouter()
	r.Use(withUser(&models.User{ID: 1}))
	r.Get("/campaigns", h.HandleListCampaigns)
	r.Route("/campaigns/{campaignID}", func(r chi.Router) {
		r.Get("/", h.HandleGetCampaign)
		r.Get("/sends", h.HandleListSends)
		r.Post("/reallocate", h.HandleReallocate)
	})

	return &campaignTestEnv{
		router:    r,
		campaigns: campaigns,
		sends:     sends,
		senders:   senders,
		launches:  launches,
	}
}

func (e *campaignTestEnv) addCampaign(userID int64) models.Campaign {
	c := models.Campaign{
		ID:         int64(len(e.campaigns.campaigns) + 1),
		PublicID:   uuid.New(),
		UserID:     userID,
		Name:       "Q3 outreach",
		Status:     models.CampaignStatusLaunched,
		LaunchedAt: time.Now().UTC(),
	}
	e.campaigns.campaigns = append(e.campaigns.campaigns, c)
	return c
}

func TestGetCampaign_IncludesStepsAndStats(t *testing.T) {
	env := newCampaignTestEnv(t)
	c := env.addCampaign(1)
	env.campaigns.steps[c.ID] = []models.SequenceStep{
		{Ordinal: 0, Subject: "Hi", ScheduleMode: "relative"},
		{Ordinal: 1, Subject: "Follow up", ScheduleMode: "relative", DelayAmount: 2, DelayUnit: "days"},
	}
	env.campaigns.stats[c.ID] = &models.CampaignStats{Total: 4, Sent: 2, Scheduled: 1, Unassigned: 1, Opened: 1}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/campaigns/%s/", c.PublicID), nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Campaign campaignResponse `json:"campaign"`
		Steps    []struct {
			Ordinal int    `json:"ordinal"`
			Subject string `json:"subject"`
		} `json:"steps"`
		Stats map[string]int `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Campaign.Name != "Q3 outreach" {
		t.Errorf("unexpected campaign: %+v", resp.Campaign)
	}
	if len(resp.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(resp.Steps))
	}
	if resp.Stats["sent"] != 2 || resp.Stats["opened"] != 1 {
		t.Errorf("unexpected stats: %v", resp.Stats)
	}
}

func TestGetCampaign_ScopedToOwner(t *testing.T) {
	env := newCampaignTestEnv(t)
	other := env.addCampaign(2)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/campaigns/%s/", other.PublicID), nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's campaign, got %d", rec.Code)
	}
}

func TestListSends_ReturnsCampaignSends(t *testing.T) {
	env := newCampaignTestEnv(t)
	c := env.addCampaign(1)
	env.sends.sends = []models.PlannedSend{
		{ID: 1, PublicID: uuid.New(), CampaignID: c.ID, RecipientEmail: "carol@x.com", Status: models.SendStatusSent},
		{ID: 2, PublicID: uuid.New(), CampaignID: c.ID, RecipientEmail: "dave@y.com", Status: models.SendStatusScheduled},
		{ID: 3, PublicID: uuid.New(), CampaignID: 999, RecipientEmail: "other@z.com", Status: models.SendStatusSent},
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/campaigns/%s/sends", c.PublicID), nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Sends []struct {
			Recipient string `json:"recipient"`
			Status    string `json:"status"`
		} `json:"sends"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sends) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(resp.Sends))
	}
}

func TestReallocate_AssignsPendingSends(t *testing.T) {
	env := newCampaignTestEnv(t)
	c := env.addCampaign(1)
	env.senders.add(1, "a@acme.io", 50, 0)
	env.sends.sends = []models.PlannedSend{
		{ID: 1, CampaignID: c.ID, RecipientEmail: "carol@x.com", Status: models.SendStatusUnassigned, ScheduledAt: time.Now().UTC()},
		{ID: 2, CampaignID: c.ID, RecipientEmail: "dave@y.com", Status: models.SendStatusUnassigned, ScheduledAt: time.Now().UTC()},
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/campaigns/%s/reallocate", c.PublicID), nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["assigned"] != 2 || resp["remaining"] != 0 {
		t.Errorf("unexpected result: %v", resp)
	}
	if len(env.launches.assigned) != 1 || len(env.launches.assigned[0]) != 2 {
		t.Errorf("expected 2 assignments persisted, got %v", env.launches.assigned)
	}
}

func TestReallocate_NothingPending(t *testing.T) {
	env := newCampaignTestEnv(t)
	c := env.addCampaign(1)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/campaigns/%s/reallocate", c.PublicID), nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when nothing is unassigned, got %d: %s", rec.Code, rec.Body)
	}
}
