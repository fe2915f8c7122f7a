package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
)

// ErrCapacityExceeded is returned by a capacity reservation that would push
// a sender account past its daily limit.
var ErrCapacityExceeded = errors.New("sender capacity exceeded")

type UserStore interface {
	CreateUser(ctx context.Context, email string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, userID int64, keyID, secretHash, label string) (*models.APIKey, error)
	GetAPIKeyByKeyID(ctx context.Context, keyID string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, id int64) error
	DeleteAPIKey(ctx context.Context, userID, id int64) error
}

type SenderAccountCreateParams struct {
	UserID     int64
	Email      string
	Provider   string
	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	DailyLimit int
}

type SenderAccountStore interface {
	CreateSenderAccount(ctx context.Context, params SenderAccountCreateParams) (*models.SenderAccount, error)
	ListSenderAccountsByUserID(ctx context.Context, userID int64) ([]models.SenderAccount, error)
	GetSenderAccountByID(ctx context.Context, id int64) (*models.SenderAccount, error)
	GetSenderAccountByPublicID(ctx context.Context, publicID uuid.UUID) (*models.SenderAccount, error)
	DeleteSenderAccount(ctx context.Context, userID, id int64) error

	// ReleaseSenderCapacity undoes n same-day reservations, used when a
	// reserved send permanently fails. Counters from earlier days are left
	// alone.
	ReleaseSenderCapacity(ctx context.Context, senderID int64, n int) error
}

// HistoryStore answers "which addresses have this user's launched
// campaigns already been sent to". The duplicate detector fails open when
// this lookup is unavailable.
type HistoryStore interface {
	ListPriorRecipients(ctx context.Context, userID int64) ([]string, error)
}

type ContactImportCreateParams struct {
	UserID       int64
	FileName     string
	ArchiveKey   string
	TotalRows    int
	ImportedRows int
	SkippedRows  int
	Truncated    bool
}

type ContactImportStore interface {
	CreateContactImport(ctx context.Context, params ContactImportCreateParams) (*models.ContactImport, error)
}

type CampaignStore interface {
	ListCampaignsByUserID(ctx context.Context, userID int64, limit, offset int) ([]models.Campaign, error)
	GetCampaignByPublicID(ctx context.Context, publicID uuid.UUID) (*models.Campaign, error)
	ListSequenceStepsByCampaignID(ctx context.Context, campaignID int64) ([]models.SequenceStep, error)
	GetCampaignStats(ctx context.Context, campaignID int64) (*models.CampaignStats, error)
}

type LaunchStep struct {
	Ordinal      int
	Subject      string
	Body         string
	ScheduleMode string
	DelayAmount  int
	DelayUnit    string
	AbsoluteDate string
	AbsoluteTime string
}

type LaunchContact struct {
	Email      string
	Attributes map[string]string
}

// LaunchSend references its contact and step by position in the launch
// params; the store resolves them to row IDs inside the transaction.
// SenderAccountID is nil for unassigned sends.
type LaunchSend struct {
	ContactIndex    int
	StepOrdinal     int
	SenderAccountID *int64
	RecipientEmail  string
	Subject         string
	Body            string
	ScheduledAt     time.Time
	Status          string
}

type LaunchParams struct {
	UserID      int64
	Name        string
	Description string
	EmailColumn string
	LaunchedAt  time.Time
	Steps       []LaunchStep
	Contacts    []LaunchContact
	Sends       []LaunchSend

	// Reservations are per-sender capacity increments, applied with a
	// compare-and-increment guard. Any reservation failing the guard
	// aborts the whole launch with ErrCapacityExceeded.
	Reservations map[int64]int
}

type SendAssignment struct {
	PlannedSendID   int64
	SenderAccountID int64
	ScheduledAt     time.Time
}

// LaunchStore performs the transactional pieces of a campaign launch:
// everything inside one method happens in a single database transaction.
type LaunchStore interface {
	CreateCampaignLaunch(ctx context.Context, params LaunchParams) (*models.Campaign, error)
	AssignPlannedSends(ctx context.Context, assignments []SendAssignment, reservations map[int64]int) error
}

type PlannedSendStore interface {
	ListPlannedSendsByCampaignID(ctx context.Context, campaignID int64, limit, offset int) ([]models.PlannedSend, error)
	ListUnassignedByCampaignID(ctx context.Context, campaignID int64) ([]models.PlannedSend, error)
	GetPlannedSendByID(ctx context.Context, id int64) (*models.PlannedSend, error)
	GetPlannedSendByPublicID(ctx context.Context, publicID uuid.UUID) (*models.PlannedSend, error)

	// ClaimDuePlannedSends flips due scheduled sends to queued and returns
	// them. Concurrent dispatchers never claim the same row.
	ClaimDuePlannedSends(ctx context.Context, now time.Time, limit int) ([]models.PlannedSend, error)

	// ReleasePlannedSend puts a claimed send back to scheduled, used when
	// publishing its delivery job fails.
	ReleasePlannedSend(ctx context.Context, id int64) error

	MarkPlannedSendSent(ctx context.Context, id int64, at time.Time) error
	MarkPlannedSendFailed(ctx context.Context, id int64, errorMessage string) error
	MarkPlannedSendRetry(ctx context.Context, id int64, nextAt time.Time, errorMessage string) error

	// RecordDeliveryOutcome applies transport feedback (sent, failed,
	// bounced) reported against a send's public ID.
	RecordDeliveryOutcome(ctx context.Context, publicID uuid.UUID, status, errorMessage string, at time.Time) error

	// MarkPlannedSendOpened sets opened_at the first time only.
	MarkPlannedSendOpened(ctx context.Context, publicID uuid.UUID, at time.Time) error
}
