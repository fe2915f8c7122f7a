package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/store"
	"github.com/coldfront-labs/coldfront/internal/web/middleware"
)

// --- Shared mock stores used across the handler tests ---

type mockSenderStore struct {
	accounts []models.SenderAccount
	nextID   int64
}

func newMockSenderStore() *mockSenderStore {
	return &mockSenderStore{nextID: 1}
}

func (m *mockSenderStore) add(userID int64, email string, dailyLimit, sentToday int) models.SenderAccount {
	a := models.SenderAccount{
		ID:         m.nextID,
		PublicID:   uuid.New(),
		UserID:     userID,
		Email:      email,
		DailyLimit: dailyLimit,
		SentToday:  sentToday,
		CreatedAt:  time.Now(),
	}
	m.nextID++
	m.accounts = append(m.accounts, a)
	return a
}

func (m *mockSenderStore) CreateSenderAccount(_ context.Context, params store.SenderAccountCreateParams) (*models.SenderAccount, error) {
	a := m.add(params.UserID, params.Email, params.DailyLimit, 0)
	a.Provider = params.Provider
	a.SMTPHost = params.SMTPHost
	a.SMTPPort = params.SMTPPort
	m.accounts[len(m.accounts)-1] = a
	return &a, nil
}

func (m *mockSenderStore) ListSenderAccountsByUserID(_ context.Context, userID int64) ([]models.SenderAccount, error) {
	var out []models.SenderAccount
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockSenderStore) GetSenderAccountByID(_ context.Context, id int64) (*models.SenderAccount, error) {
	for _, a := range m.accounts {
		if a.ID == id {
			account := a
			return &account, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSenderStore) GetSenderAccountByPublicID(_ context.Context, publicID uuid.UUID) (*models.SenderAccount, error) {
	for _, a := range m.accounts {
		if a.PublicID == publicID {
			account := a
			return &account, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSenderStore) DeleteSenderAccount(_ context.Context, userID, id int64) error {
	for i, a := range m.accounts {
		if a.ID == id && a.UserID == userID {
			m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockSenderStore) ReleaseSenderCapacity(_ context.Context, _ int64, _ int) error { return nil }

type mockImportStore struct {
	created []store.ContactImportCreateParams
}

func (m *mockImportStore) CreateContactImport(_ context.Context, params store.ContactImportCreateParams) (*models.ContactImport, error) {
	m.created = append(m.created, params)
	return &models.ContactImport{ID: int64(len(m.created)), PublicID: uuid.New()}, nil
}

type mockCampaignStore struct {
	campaigns []models.Campaign
	steps     map[int64][]models.SequenceStep
	stats     map[int64]*models.CampaignStats
	prior     []string
	priorErr  error
}

func newMockCampaignStore() *mockCampaignStore {
	return &mockCampaignStore{
		steps: make(map[int64][]models.SequenceStep),
		stats: make(map[int64]*models.CampaignStats),
	}
}

func (m *mockCampaignStore) ListCampaignsByUserID(_ context.Context, userID int64, _, _ int) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, c := range m.campaigns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCampaignStore) GetCampaignByPublicID(_ context.Context, publicID uuid.UUID) (*models.Campaign, error) {
	for _, c := range m.campaigns {
		if c.PublicID == publicID {
			campaign := c
			return &campaign, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCampaignStore) ListSequenceStepsByCampaignID(_ context.Context, campaignID int64) ([]models.SequenceStep, error) {
	return m.steps[campaignID], nil
}

func (m *mockCampaignStore) GetCampaignStats(_ context.Context, campaignID int64) (*models.CampaignStats, error) {
	if s, ok := m.stats[campaignID]; ok {
		return s, nil
	}
	return &models.CampaignStats{}, nil
}

func (m *mockCampaignStore) ListPriorRecipients(_ context.Context, _ int64) ([]string, error) {
	if m.priorErr != nil {
		return nil, m.priorErr
	}
	return m.prior, nil
}

type mockLaunchStore struct {
	launched  []store.LaunchParams
	assigned  [][]store.SendAssignment
	launchErr error
	assignErr error
	nextID    int64
}

func (m *mockLaunchStore) CreateCampaignLaunch(_ context.Context, params store.LaunchParams) (*models.Campaign, error) {
	if m.launchErr != nil {
		return nil, m.launchErr
	}
	m.launched = append(m.launched, params)
	m.nextID++
	return &models.Campaign{
		ID:         m.nextID,
		PublicID:   uuid.New(),
		UserID:     params.UserID,
		Name:       params.Name,
		Status:     models.CampaignStatusLaunched,
		LaunchedAt: params.LaunchedAt,
	}, nil
}

func (m *mockLaunchStore) AssignPlannedSends(_ context.Context, assignments []store.SendAssignment, _ map[int64]int) error {
	if m.assignErr != nil {
		return m.assignErr
	}
	m.assigned = append(m.assigned, assignments)
	return nil
}

type mockSendStore struct {
	sends    []models.PlannedSend
	opened   []uuid.UUID
	outcomes map[uuid.UUID]string
}

func newMockSendStore() *mockSendStore {
	return &mockSendStore{outcomes: make(map[uuid.UUID]string)}
}

func (m *mockSendStore) ListPlannedSendsByCampaignID(_ context.Context, campaignID int64, _, _ int) ([]models.PlannedSend, error) {
	var out []models.PlannedSend
	for _, ps := range m.sends {
		if ps.CampaignID == campaignID {
			out = append(out, ps)
		}
	}
	return out, nil
}

func (m *mockSendStore) ListUnassignedByCampaignID(_ context.Context, campaignID int64) ([]models.PlannedSend, error) {
	var out []models.PlannedSend
	for _, ps := range m.sends {
		if ps.CampaignID == campaignID && ps.Status == models.SendStatusUnassigned {
			out = append(out, ps)
		}
	}
	return out, nil
}

func (m *mockSendStore) GetPlannedSendByID(_ context.Context, id int64) (*models.PlannedSend, error) {
	for _, ps := range m.sends {
		if ps.ID == id {
			send := ps
			return &send, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSendStore) GetPlannedSendByPublicID(_ context.Context, publicID uuid.UUID) (*models.PlannedSend, error) {
	for _, ps := range m.sends {
		if ps.PublicID == publicID {
			send := ps
			return &send, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSendStore) ClaimDuePlannedSends(_ context.Context, _ time.Time, _ int) ([]models.PlannedSend, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSendStore) ReleasePlannedSend(_ context.Context, _ int64) error { return nil }

func (m *mockSendStore) MarkPlannedSendSent(_ context.Context, _ int64, _ time.Time) error {
	return nil
}

func (m *mockSendStore) MarkPlannedSendFailed(_ context.Context, _ int64, _ string) error {
	return nil
}

func (m *mockSendStore) MarkPlannedSendRetry(_ context.Context, _ int64, _ time.Time, _ string) error {
	return nil
}

func (m *mockSendStore) RecordDeliveryOutcome(_ context.Context, publicID uuid.UUID, status, _ string, _ time.Time) error {
	for _, ps := range m.sends {
		if ps.PublicID == publicID {
			m.outcomes[publicID] = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockSendStore) MarkPlannedSendOpened(_ context.Context, publicID uuid.UUID, _ time.Time) error {
	m.opened = append(m.opened, publicID)
	return nil
}

// memArchive is an in-memory archive.Store.
type memArchive struct {
	objects map[string][]byte
}

func newMemArchive() *memArchive {
	return &memArchive{objects: make(map[string][]byte)}
}

func (m *memArchive) Put(_ context.Context, key, _ string, body []byte) error {
	m.objects[key] = body
	return nil
}

func (m *memArchive) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (m *memArchive) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

// withUser injects an authenticated user, standing in for the API key
// middleware.
func withUser(user *models.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
