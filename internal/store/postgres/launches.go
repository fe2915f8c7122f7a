package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/store"
)

// LaunchStore writes a launched campaign in one transaction: capacity
// reservations, the campaign row, its steps and contacts, and every planned
// send. If any reservation would breach a sender's daily limit the whole
// transaction rolls back with store.ErrCapacityExceeded.
type LaunchStore struct {
	db *sql.DB
}

func NewLaunchStore(db *sql.DB) *LaunchStore {
	return &LaunchStore{db: db}
}

func (s *LaunchStore) CreateCampaignLaunch(ctx context.Context, params store.LaunchParams) (*models.Campaign, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin launch tx: %w", err)
	}
	defer tx.Rollback()

	if err := reserveAll(ctx, tx, params.Reservations, params.LaunchedAt); err != nil {
		return nil, err
	}

	c := &models.Campaign{
		PublicID:    uuid.New(),
		UserID:      params.UserID,
		Name:        params.Name,
		Description: params.Description,
		EmailColumn: params.EmailColumn,
		Status:      models.CampaignStatusLaunched,
		LaunchedAt:  params.LaunchedAt,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO campaigns (public_id, user_id, name, description, email_column, status, launched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		c.PublicID, c.UserID, c.Name, c.Description, c.EmailColumn, c.Status, c.LaunchedAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert campaign: %w", err)
	}

	stepIDs := make(map[int]int64, len(params.Steps))
	for _, st := range params.Steps {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO sequence_steps (campaign_id, ordinal, subject, body, schedule_mode, delay_amount, delay_unit, absolute_date, absolute_time)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			c.ID, st.Ordinal, st.Subject, st.Body, st.ScheduleMode, st.DelayAmount, st.DelayUnit, st.AbsoluteDate, st.AbsoluteTime,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert sequence step %d: %w", st.Ordinal, err)
		}
		stepIDs[st.Ordinal] = id
	}

	contactIDs := make([]int64, len(params.Contacts))
	for i, ct := range params.Contacts {
		attrs, err := json.Marshal(ct.Attributes)
		if err != nil {
			return nil, fmt.Errorf("encode contact attributes: %w", err)
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO campaign_contacts (campaign_id, email, attributes)
			 VALUES ($1, $2, $3)
			 RETURNING id`,
			c.ID, ct.Email, attrs,
		).Scan(&contactIDs[i])
		if err != nil {
			return nil, fmt.Errorf("insert campaign contact: %w", err)
		}
	}

	for _, send := range params.Sends {
		if send.ContactIndex < 0 || send.ContactIndex >= len(contactIDs) {
			return nil, fmt.Errorf("planned send references unknown contact index %d", send.ContactIndex)
		}
		stepID, ok := stepIDs[send.StepOrdinal]
		if !ok {
			return nil, fmt.Errorf("planned send references unknown step ordinal %d", send.StepOrdinal)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO planned_sends (public_id, campaign_id, step_id, contact_id, sender_account_id,
			     recipient_email, rendered_subject, rendered_body, scheduled_at, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New(), c.ID, stepID, contactIDs[send.ContactIndex], send.SenderAccountID,
			send.RecipientEmail, send.Subject, send.Body, send.ScheduledAt, send.Status)
		if err != nil {
			return nil, fmt.Errorf("insert planned send: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit launch tx: %w", err)
	}
	return c, nil
}

// AssignPlannedSends moves previously unassigned sends onto sender accounts,
// reserving the new capacity in the same transaction.
func (s *LaunchStore) AssignPlannedSends(ctx context.Context, assignments []store.SendAssignment, reservations map[int64]int) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign tx: %w", err)
	}
	defer tx.Rollback()

	if err := reserveAll(ctx, tx, reservations, time.Now()); err != nil {
		return err
	}

	for _, a := range assignments {
		res, err := tx.ExecContext(ctx,
			`UPDATE planned_sends
			 SET sender_account_id = $2, scheduled_at = $3, status = 'scheduled'
			 WHERE id = $1 AND status = 'unassigned'`,
			a.PlannedSendID, a.SenderAccountID, a.ScheduledAt)
		if err != nil {
			return fmt.Errorf("assign planned send %d: %w", a.PlannedSendID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("planned send %d is no longer unassigned", a.PlannedSendID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assign tx: %w", err)
	}
	return nil
}

// reserveAll applies per-sender reservations in ascending sender ID order so
// concurrent launches lock rows in the same sequence.
func reserveAll(ctx context.Context, tx *sql.Tx, reservations map[int64]int, at time.Time) error {
	ids := make([]int64, 0, len(reservations))
	for id := range reservations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	day := utcDay(at)
	for _, id := range ids {
		if err := reserveSenderCapacityTx(ctx, tx, id, reservations[id], day); err != nil {
			return fmt.Errorf("reserve capacity for sender %d: %w", id, err)
		}
	}
	return nil
}
