package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        int64
	PublicID  uuid.UUID
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type APIKey struct {
	ID         int64
	UserID     int64
	KeyID      string
	SecretHash string
	Label      string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// SenderAccount is an outbound identity with a daily send cap. SentToday is
// an observed counter rolled at UTC midnight (UsageDate); the capacity
// invariant sent_today <= daily_limit is enforced by the reservation query,
// not by this struct.
type SenderAccount struct {
	ID         int64
	PublicID   uuid.UUID
	UserID     int64
	Email      string
	Provider   string
	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	DailyLimit int
	SentToday  int
	UsageDate  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Remaining reports how many sends the account can still take today.
// Never negative, even if external sends pushed SentToday past the limit.
func (a SenderAccount) Remaining() int {
	r := a.DailyLimit - a.SentToday
	if r < 0 {
		return 0
	}
	return r
}

// Contact is one imported recipient: a flat bag of column values plus the
// key that holds the email address. Attribute presence beyond EmailKey is
// best-effort.
type Contact struct {
	EmailKey   string
	Attributes map[string]string
}

// Email returns the contact's address as imported, untrimmed.
func (c Contact) Email() string {
	return c.Attributes[c.EmailKey]
}

// NormalizedEmail is the address lowered and trimmed, the form used for
// duplicate comparison.
func (c Contact) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(c.Email()))
}

type ContactImport struct {
	ID           int64
	PublicID     uuid.UUID
	UserID       int64
	FileName     string
	ArchiveKey   string
	TotalRows    int
	ImportedRows int
	SkippedRows  int
	Truncated    bool
	CreatedAt    time.Time
}

const (
	CampaignStatusLaunched = "launched"

	SendStatusScheduled  = "scheduled"
	SendStatusQueued     = "queued"
	SendStatusSent       = "sent"
	SendStatusFailed     = "failed"
	SendStatusBounced    = "bounced"
	SendStatusUnassigned = "unassigned"
)

type Campaign struct {
	ID          int64
	PublicID    uuid.UUID
	UserID      int64
	Name        string
	Description string
	EmailColumn string
	Status      string
	LaunchedAt  time.Time
	CreatedAt   time.Time
}

// SequenceStep is one email in a campaign's drip sequence. Exactly one of
// the two scheduling shapes applies: ScheduleMode "relative" uses
// DelayAmount/DelayUnit, "absolute" uses AbsoluteDate/AbsoluteTime.
type SequenceStep struct {
	ID           int64
	CampaignID   int64
	Ordinal      int
	Subject      string
	Body         string
	ScheduleMode string
	DelayAmount  int
	DelayUnit    string
	AbsoluteDate string
	AbsoluteTime string
}

// PlannedSend is one fully resolved future delivery: recipient, step,
// assigned sender, target time, and the already-rendered content. Rows are
// written once at launch and only their status fields change afterwards.
type PlannedSend struct {
	ID              int64
	PublicID        uuid.UUID
	CampaignID      int64
	StepID          int64
	ContactID       int64
	SenderAccountID *int64
	RecipientEmail  string
	RenderedSubject string
	RenderedBody    string
	ScheduledAt     time.Time
	Status          string
	Attempts        int
	SentAt          *time.Time
	OpenedAt        *time.Time
	ErrorMessage    string
	CreatedAt       time.Time
}

type CampaignStats struct {
	Total      int
	Scheduled  int
	Queued     int
	Sent       int
	Failed     int
	Bounced    int
	Unassigned int
	Opened     int
}
