package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/queue"
	"github.com/coldfront-labs/coldfront/internal/store"
)

// --- Mock stores ---

type mockSendStore struct {
	sends map[int64]*models.PlannedSend

	sent     []int64
	failed   map[int64]string
	retried  map[int64]time.Time
	released []int64
	claimErr error
	due      []models.PlannedSend
}

func newMockSendStore(sends ...*models.PlannedSend) *mockSendStore {
	m := &mockSendStore{
		sends:   make(map[int64]*models.PlannedSend),
		failed:  make(map[int64]string),
		retried: make(map[int64]time.Time),
	}
	for _, s := range sends {
		m.sends[s.ID] = s
	}
	return m
}

func (m *mockSendStore) ListPlannedSendsByCampaignID(_ context.Context, _ int64, _, _ int) ([]models.PlannedSend, error) {
	return nil, nil
}
func (m *mockSendStore) ListUnassignedByCampaignID(_ context.Context, _ int64) ([]models.PlannedSend, error) {
	return nil, nil
}

func (m *mockSendStore) GetPlannedSendByID(_ context.Context, id int64) (*models.PlannedSend, error) {
	s, ok := m.sends[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (m *mockSendStore) GetPlannedSendByPublicID(_ context.Context, _ uuid.UUID) (*models.PlannedSend, error) {
	return nil, errors.New("not found")
}

func (m *mockSendStore) ClaimDuePlannedSends(_ context.Context, _ time.Time, _ int) ([]models.PlannedSend, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	due := m.due
	m.due = nil
	return due, nil
}

func (m *mockSendStore) ReleasePlannedSend(_ context.Context, id int64) error {
	m.released = append(m.released, id)
	return nil
}

func (m *mockSendStore) MarkPlannedSendSent(_ context.Context, id int64, _ time.Time) error {
	m.sent = append(m.sent, id)
	return nil
}

func (m *mockSendStore) MarkPlannedSendFailed(_ context.Context, id int64, msg string) error {
	m.failed[id] = msg
	return nil
}

func (m *mockSendStore) MarkPlannedSendRetry(_ context.Context, id int64, nextAt time.Time, _ string) error {
	m.retried[id] = nextAt
	return nil
}

func (m *mockSendStore) RecordDeliveryOutcome(_ context.Context, _ uuid.UUID, _, _ string, _ time.Time) error {
	return nil
}
func (m *mockSendStore) MarkPlannedSendOpened(_ context.Context, _ uuid.UUID, _ time.Time) error {
	return nil
}

type mockSenderStore struct {
	accounts map[int64]*models.SenderAccount
	released map[int64]int
}

func newMockSenderStore(accounts ...*models.SenderAccount) *mockSenderStore {
	m := &mockSenderStore{
		accounts: make(map[int64]*models.SenderAccount),
		released: make(map[int64]int),
	}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *mockSenderStore) CreateSenderAccount(_ context.Context, _ store.SenderAccountCreateParams) (*models.SenderAccount, error) {
	return nil, errors.New("not implemented")
}
func (m *mockSenderStore) ListSenderAccountsByUserID(_ context.Context, _ int64) ([]models.SenderAccount, error) {
	return nil, nil
}

func (m *mockSenderStore) GetSenderAccountByID(_ context.Context, id int64) (*models.SenderAccount, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return a, nil
}

func (m *mockSenderStore) GetSenderAccountByPublicID(_ context.Context, _ uuid.UUID) (*models.SenderAccount, error) {
	return nil, errors.New("not found")
}
func (m *mockSenderStore) DeleteSenderAccount(_ context.Context, _, _ int64) error { return nil }

func (m *mockSenderStore) ReleaseSenderCapacity(_ context.Context, senderID int64, n int) error {
	m.released[senderID] += n
	return nil
}

// --- Helpers ---

func withStubSend(t *testing.T, stub func(account models.SenderAccount, to, subject, body string) error) {
	t.Helper()
	orig := sendFunc
	sendFunc = stub
	t.Cleanup(func() {
		sendFunc = orig
	})
}

func queuedSend(id, senderID int64, attempts int) *models.PlannedSend {
	sid := senderID
	return &models.PlannedSend{
		ID:              id,
		PublicID:        uuid.New(),
		SenderAccountID: &sid,
		RecipientEmail:  "lead@x.com",
		RenderedSubject: "Hello",
		RenderedBody:    "Hi",
		Status:          models.SendStatusQueued,
		Attempts:        attempts,
	}
}

func fastDeliverer(sends *mockSendStore, senders *mockSenderStore) *Deliverer {
	return NewDeliverer(sends, senders, nil, DelivererOptions{
		PerSenderRate: 10000,
		MaxAttempts:   3,
	})
}

// --- Tests ---

func TestHandle_SuccessfulSendMarkedSent(t *testing.T) {
	sends := newMockSendStore(queuedSend(1, 5, 0))
	senders := newMockSenderStore(&models.SenderAccount{ID: 5, Email: "s@x.com", SMTPHost: "h", SMTPUser: "u", SMTPPass: "p"})
	d := fastDeliverer(sends, senders)

	var sentTo string
	withStubSend(t, func(_ models.SenderAccount, to, _, _ string) error {
		sentTo = to
		return nil
	})

	if err := d.handle(context.Background(), queue.Job{PlannedSendID: 1}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sentTo != "lead@x.com" {
		t.Errorf("expected delivery to lead@x.com, got %q", sentTo)
	}
	if len(sends.sent) != 1 || sends.sent[0] != 1 {
		t.Errorf("expected send 1 marked sent, got %v", sends.sent)
	}
}

func TestHandle_TransientFailureReschedules(t *testing.T) {
	sends := newMockSendStore(queuedSend(1, 5, 0))
	senders := newMockSenderStore(&models.SenderAccount{ID: 5})
	d := fastDeliverer(sends, senders)

	withStubSend(t, func(_ models.SenderAccount, _, _, _ string) error {
		return errors.New("connection reset")
	})

	if err := d.handle(context.Background(), queue.Job{PlannedSendID: 1}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, ok := sends.retried[1]; !ok {
		t.Error("expected send rescheduled for retry")
	}
	if len(sends.failed) != 0 {
		t.Errorf("expected no permanent failure yet, got %v", sends.failed)
	}
}

func TestHandle_ExhaustedAttemptsFailAndReleaseCapacity(t *testing.T) {
	sends := newMockSendStore(queuedSend(1, 5, 2)) // third attempt is the last
	senders := newMockSenderStore(&models.SenderAccount{ID: 5})
	d := fastDeliverer(sends, senders)

	withStubSend(t, func(_ models.SenderAccount, _, _, _ string) error {
		return errors.New("mailbox unavailable")
	})

	if err := d.handle(context.Background(), queue.Job{PlannedSendID: 1}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sends.failed[1] == "" {
		t.Error("expected send marked failed with its error message")
	}
	if senders.released[5] != 1 {
		t.Errorf("expected 1 capacity release for sender 5, got %d", senders.released[5])
	}
}

func TestHandle_StaleJobSkipped(t *testing.T) {
	ps := queuedSend(1, 5, 0)
	ps.Status = models.SendStatusSent
	sends := newMockSendStore(ps)
	d := fastDeliverer(sends, newMockSenderStore())

	withStubSend(t, func(_ models.SenderAccount, _, _, _ string) error {
		t.Fatal("stale job must not send")
		return nil
	})

	if err := d.handle(context.Background(), queue.Job{PlannedSendID: 1}); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func TestRetryDelay_ExponentialWithCeiling(t *testing.T) {
	d := NewDeliverer(nil, nil, nil, DelivererOptions{
		RetryBaseDelay: time.Minute,
		MaxRetryDelay:  10 * time.Minute,
	})

	if got := d.retryDelay(1); got != time.Minute {
		t.Errorf("attempt 1: expected 1m, got %v", got)
	}
	if got := d.retryDelay(3); got != 4*time.Minute {
		t.Errorf("attempt 3: expected 4m, got %v", got)
	}
	if got := d.retryDelay(10); got != 10*time.Minute {
		t.Errorf("attempt 10: expected ceiling 10m, got %v", got)
	}
}
