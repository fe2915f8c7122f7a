package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
)

type CampaignStore struct {
	db *sql.DB
}

func NewCampaignStore(db *sql.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

func (s *CampaignStore) ListCampaignsByUserID(ctx context.Context, userID int64, limit, offset int) ([]models.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, public_id, user_id, name, description, email_column, status, launched_at, created_at
		 FROM campaigns WHERE user_id = $1
		 ORDER BY launched_at DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.PublicID, &c.UserID, &c.Name, &c.Description, &c.EmailColumn, &c.Status, &c.LaunchedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (s *CampaignStore) GetCampaignByPublicID(ctx context.Context, publicID uuid.UUID) (*models.Campaign, error) {
	c := &models.Campaign{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, user_id, name, description, email_column, status, launched_at, created_at
		 FROM campaigns WHERE public_id = $1`, publicID,
	).Scan(&c.ID, &c.PublicID, &c.UserID, &c.Name, &c.Description, &c.EmailColumn, &c.Status, &c.LaunchedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignStore) ListSequenceStepsByCampaignID(ctx context.Context, campaignID int64) ([]models.SequenceStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, campaign_id, ordinal, subject, body, schedule_mode, delay_amount, delay_unit, absolute_date, absolute_time
		 FROM sequence_steps WHERE campaign_id = $1 ORDER BY ordinal ASC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []models.SequenceStep
	for rows.Next() {
		var st models.SequenceStep
		if err := rows.Scan(&st.ID, &st.CampaignID, &st.Ordinal, &st.Subject, &st.Body, &st.ScheduleMode, &st.DelayAmount, &st.DelayUnit, &st.AbsoluteDate, &st.AbsoluteTime); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (s *CampaignStore) GetCampaignStats(ctx context.Context, campaignID int64) (*models.CampaignStats, error) {
	stats := &models.CampaignStats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'scheduled'),
		        COUNT(*) FILTER (WHERE status = 'queued'),
		        COUNT(*) FILTER (WHERE status = 'sent'),
		        COUNT(*) FILTER (WHERE status = 'failed'),
		        COUNT(*) FILTER (WHERE status = 'bounced'),
		        COUNT(*) FILTER (WHERE status = 'unassigned'),
		        COUNT(opened_at)
		 FROM planned_sends WHERE campaign_id = $1`, campaignID,
	).Scan(&stats.Total, &stats.Scheduled, &stats.Queued, &stats.Sent, &stats.Failed, &stats.Bounced, &stats.Unassigned, &stats.Opened)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ListPriorRecipients returns every address, normalized to lower case, that
// any of the user's launched campaigns has ever targeted. Backs duplicate
// detection in the wizard.
func (s *CampaignStore) ListPriorRecipients(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT LOWER(ps.recipient_email)
		 FROM planned_sends ps
		 JOIN campaigns c ON c.id = ps.campaign_id
		 WHERE c.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
