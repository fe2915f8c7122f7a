package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
)

type PlannedSendStore struct {
	db *sql.DB
}

func NewPlannedSendStore(db *sql.DB) *PlannedSendStore {
	return &PlannedSendStore{db: db}
}

const plannedSendColumns = `id, public_id, campaign_id, step_id, contact_id, sender_account_id,
	recipient_email, rendered_subject, rendered_body, scheduled_at, status, attempts,
	sent_at, opened_at, error_message, created_at`

func scanPlannedSend(row interface{ Scan(...any) error }, ps *models.PlannedSend) error {
	return row.Scan(&ps.ID, &ps.PublicID, &ps.CampaignID, &ps.StepID, &ps.ContactID, &ps.SenderAccountID,
		&ps.RecipientEmail, &ps.RenderedSubject, &ps.RenderedBody, &ps.ScheduledAt, &ps.Status, &ps.Attempts,
		&ps.SentAt, &ps.OpenedAt, &ps.ErrorMessage, &ps.CreatedAt)
}

func (s *PlannedSendStore) ListPlannedSendsByCampaignID(ctx context.Context, campaignID int64, limit, offset int) ([]models.PlannedSend, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+plannedSendColumns+`
		 FROM planned_sends WHERE campaign_id = $1
		 ORDER BY scheduled_at ASC, id ASC
		 LIMIT $2 OFFSET $3`, campaignID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPlannedSends(rows)
}

func (s *PlannedSendStore) ListUnassignedByCampaignID(ctx context.Context, campaignID int64) ([]models.PlannedSend, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+plannedSendColumns+`
		 FROM planned_sends WHERE campaign_id = $1 AND status = 'unassigned'
		 ORDER BY scheduled_at ASC, id ASC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPlannedSends(rows)
}

func collectPlannedSends(rows *sql.Rows) ([]models.PlannedSend, error) {
	var sends []models.PlannedSend
	for rows.Next() {
		var ps models.PlannedSend
		if err := scanPlannedSend(rows, &ps); err != nil {
			return nil, err
		}
		sends = append(sends, ps)
	}
	return sends, rows.Err()
}

func (s *PlannedSendStore) GetPlannedSendByID(ctx context.Context, id int64) (*models.PlannedSend, error) {
	ps := &models.PlannedSend{}
	err := scanPlannedSend(s.db.QueryRowContext(ctx,
		`SELECT `+plannedSendColumns+`
		 FROM planned_sends WHERE id = $1`, id), ps)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func (s *PlannedSendStore) GetPlannedSendByPublicID(ctx context.Context, publicID uuid.UUID) (*models.PlannedSend, error) {
	ps := &models.PlannedSend{}
	err := scanPlannedSend(s.db.QueryRowContext(ctx,
		`SELECT `+plannedSendColumns+`
		 FROM planned_sends WHERE public_id = $1`, publicID), ps)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// ClaimDuePlannedSends flips due scheduled sends to queued and returns them.
// SKIP LOCKED keeps concurrent dispatchers off each other's rows.
func (s *PlannedSendStore) ClaimDuePlannedSends(ctx context.Context, now time.Time, limit int) ([]models.PlannedSend, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE planned_sends SET status = 'queued'
		 WHERE id IN (
		     SELECT id FROM planned_sends
		     WHERE status = 'scheduled' AND scheduled_at <= $1
		     ORDER BY scheduled_at ASC
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+plannedSendColumns, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPlannedSends(rows)
}

func (s *PlannedSendStore) ReleasePlannedSend(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE planned_sends SET status = 'scheduled'
		 WHERE id = $1 AND status = 'queued'`, id)
	return err
}

func (s *PlannedSendStore) MarkPlannedSendSent(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE planned_sends
		 SET status = 'sent', sent_at = $2, attempts = attempts + 1, error_message = ''
		 WHERE id = $1`, id, at)
	return err
}

func (s *PlannedSendStore) MarkPlannedSendFailed(ctx context.Context, id int64, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE planned_sends
		 SET status = 'failed', attempts = attempts + 1, error_message = $2
		 WHERE id = $1`, id, errorMessage)
	return err
}

// MarkPlannedSendRetry puts the send back on the schedule for a later
// attempt; the dispatcher will claim it again once nextAt passes.
func (s *PlannedSendStore) MarkPlannedSendRetry(ctx context.Context, id int64, nextAt time.Time, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE planned_sends
		 SET status = 'scheduled', scheduled_at = $2, attempts = attempts + 1, error_message = $3
		 WHERE id = $1`, id, nextAt, errorMessage)
	return err
}

func (s *PlannedSendStore) RecordDeliveryOutcome(ctx context.Context, publicID uuid.UUID, status, errorMessage string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE planned_sends
		 SET status = $2,
		     error_message = $3,
		     sent_at = CASE WHEN $2 = 'sent' THEN $4 ELSE sent_at END
		 WHERE public_id = $1`, publicID, status, errorMessage, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkPlannedSendOpened records the first open only; later pixel hits are
// no-ops.
func (s *PlannedSendStore) MarkPlannedSendOpened(ctx context.Context, publicID uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE planned_sends SET opened_at = $2
		 WHERE public_id = $1 AND opened_at IS NULL`, publicID, at)
	return err
}
