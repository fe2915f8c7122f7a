package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/store"
)

type SenderAccountStore struct {
	db *sql.DB
}

func NewSenderAccountStore(db *sql.DB) *SenderAccountStore {
	return &SenderAccountStore{db: db}
}

const senderAccountColumns = `id, public_id, user_id, email, provider, smtp_host, smtp_port,
	smtp_user, smtp_pass, daily_limit, sent_today, usage_date, created_at, updated_at`

func scanSenderAccount(row interface{ Scan(...any) error }, a *models.SenderAccount) error {
	return row.Scan(&a.ID, &a.PublicID, &a.UserID, &a.Email, &a.Provider, &a.SMTPHost, &a.SMTPPort,
		&a.SMTPUser, &a.SMTPPass, &a.DailyLimit, &a.SentToday, &a.UsageDate, &a.CreatedAt, &a.UpdatedAt)
}

func (s *SenderAccountStore) CreateSenderAccount(ctx context.Context, params store.SenderAccountCreateParams) (*models.SenderAccount, error) {
	a := &models.SenderAccount{
		PublicID:   uuid.New(),
		UserID:     params.UserID,
		Email:      params.Email,
		Provider:   params.Provider,
		SMTPHost:   params.SMTPHost,
		SMTPPort:   params.SMTPPort,
		SMTPUser:   params.SMTPUser,
		SMTPPass:   params.SMTPPass,
		DailyLimit: params.DailyLimit,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO sender_accounts (public_id, user_id, email, provider, smtp_host, smtp_port, smtp_user, smtp_pass, daily_limit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, sent_today, usage_date, created_at, updated_at`,
		a.PublicID, a.UserID, a.Email, a.Provider, a.SMTPHost, a.SMTPPort, a.SMTPUser, a.SMTPPass, a.DailyLimit,
	).Scan(&a.ID, &a.SentToday, &a.UsageDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListSenderAccountsByUserID returns the user's accounts with their usage
// counters rolled forward: a counter from an earlier day reads as zero.
func (s *SenderAccountStore) ListSenderAccountsByUserID(ctx context.Context, userID int64) ([]models.SenderAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+senderAccountColumns+`
		 FROM sender_accounts WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	today := utcDay(time.Now())
	var accounts []models.SenderAccount
	for rows.Next() {
		var a models.SenderAccount
		if err := scanSenderAccount(rows, &a); err != nil {
			return nil, err
		}
		rollUsage(&a, today)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *SenderAccountStore) GetSenderAccountByID(ctx context.Context, id int64) (*models.SenderAccount, error) {
	a := &models.SenderAccount{}
	err := scanSenderAccount(s.db.QueryRowContext(ctx,
		`SELECT `+senderAccountColumns+`
		 FROM sender_accounts WHERE id = $1`, id), a)
	if err != nil {
		return nil, err
	}
	rollUsage(a, utcDay(time.Now()))
	return a, nil
}

func (s *SenderAccountStore) GetSenderAccountByPublicID(ctx context.Context, publicID uuid.UUID) (*models.SenderAccount, error) {
	a := &models.SenderAccount{}
	err := scanSenderAccount(s.db.QueryRowContext(ctx,
		`SELECT `+senderAccountColumns+`
		 FROM sender_accounts WHERE public_id = $1`, publicID), a)
	if err != nil {
		return nil, err
	}
	rollUsage(a, utcDay(time.Now()))
	return a, nil
}

func (s *SenderAccountStore) DeleteSenderAccount(ctx context.Context, userID, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sender_accounts WHERE id = $1 AND user_id = $2`, id, userID)
	return err
}

func (s *SenderAccountStore) ReleaseSenderCapacity(ctx context.Context, senderID int64, n int) error {
	if n <= 0 {
		return nil
	}
	// Only the current day's counter is released; yesterday's usage is
	// history, not reservable capacity.
	_, err := s.db.ExecContext(ctx,
		`UPDATE sender_accounts
		 SET sent_today = GREATEST(sent_today - $2, 0), updated_at = now()
		 WHERE id = $1 AND usage_date = $3`,
		senderID, n, utcDay(time.Now()))
	return err
}

// reserveSenderCapacityTx increments a sender's daily counter by n only if
// the result stays within daily_limit, rolling the counter to zero first
// when usage_date is stale. The guard and the increment are a single UPDATE,
// so two launches racing for the last slots cannot both win.
func reserveSenderCapacityTx(ctx context.Context, tx *sql.Tx, senderID int64, n int, day string) error {
	if n <= 0 {
		return nil
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE sender_accounts
		 SET sent_today = (CASE WHEN usage_date = $3 THEN sent_today ELSE 0 END) + $2,
		     usage_date = $3,
		     updated_at = now()
		 WHERE id = $1
		   AND (CASE WHEN usage_date = $3 THEN sent_today ELSE 0 END) + $2 <= daily_limit`,
		senderID, n, day)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrCapacityExceeded
	}
	return nil
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// rollUsage zeroes a stale daily counter in the returned copy. The row
// itself is only rolled when a reservation next touches it.
func rollUsage(a *models.SenderAccount, today string) {
	if a.UsageDate.Format("2006-01-02") != today {
		a.SentToday = 0
	}
}
