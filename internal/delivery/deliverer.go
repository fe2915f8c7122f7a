package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coldfront-labs/coldfront/internal/mail"
	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/queue"
	"github.com/coldfront-labs/coldfront/internal/store"
)

// sendFunc is swapped out in tests.
var sendFunc = func(account models.SenderAccount, to, subject, body string) error {
	return mail.NewClient(account).Send(to, subject, body)
}

type DelivererOptions struct {
	// PerSenderRate paces outbound SMTP per sender account, in sends per
	// second. Cold-outreach providers throttle hard; the default is one
	// send per two seconds per account.
	PerSenderRate  float64
	RetryBaseDelay time.Duration
	MaxRetryDelay  time.Duration
	MaxAttempts    int
}

// Deliverer consumes delivery jobs and performs the actual SMTP sends.
// Transient failures reschedule the send with exponential backoff in the
// database; exhausted sends are marked failed and their reserved sender
// capacity released.
type Deliverer struct {
	sends   store.PlannedSendStore
	senders store.SenderAccountStore
	cons    queue.Consumer

	perSenderRate  rate.Limit
	retryBaseDelay time.Duration
	maxRetryDelay  time.Duration
	maxAttempts    int

	mu     sync.Mutex
	pacers map[int64]*rate.Limiter
}

func NewDeliverer(sends store.PlannedSendStore, senders store.SenderAccountStore, cons queue.Consumer, opts DelivererOptions) *Deliverer {
	perRate := opts.PerSenderRate
	if perRate <= 0 {
		perRate = 0.5
	}
	retryBase := opts.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = 2 * time.Minute
	}
	maxRetry := opts.MaxRetryDelay
	if maxRetry <= 0 {
		maxRetry = time.Hour
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Deliverer{
		sends:          sends,
		senders:        senders,
		cons:           cons,
		perSenderRate:  rate.Limit(perRate),
		retryBaseDelay: retryBase,
		maxRetryDelay:  maxRetry,
		maxAttempts:    maxAttempts,
		pacers:         make(map[int64]*rate.Limiter),
	}
}

func (d *Deliverer) Run(ctx context.Context) error {
	return d.cons.Consume(ctx, d.handle)
}

func (d *Deliverer) handle(ctx context.Context, job queue.Job) error {
	ps, err := d.sends.GetPlannedSendByID(ctx, job.PlannedSendID)
	if err != nil {
		return fmt.Errorf("load planned send %d: %w", job.PlannedSendID, err)
	}

	// Stale or duplicated job; the row has moved on.
	if ps.Status != models.SendStatusQueued {
		slog.Info("skipping planned send in unexpected status",
			"planned_send_id", ps.ID, "status", ps.Status)
		return nil
	}
	if ps.SenderAccountID == nil {
		return d.fail(ctx, ps, "planned send has no sender account")
	}

	account, err := d.senders.GetSenderAccountByID(ctx, *ps.SenderAccountID)
	if err != nil {
		return fmt.Errorf("load sender account %d: %w", *ps.SenderAccountID, err)
	}

	if err := d.pacer(account.ID).Wait(ctx); err != nil {
		return err
	}

	if sendErr := sendFunc(*account, ps.RecipientEmail, ps.RenderedSubject, ps.RenderedBody); sendErr != nil {
		if ps.Attempts+1 >= d.maxAttempts {
			return d.fail(ctx, ps, sendErr.Error())
		}
		nextAt := time.Now().UTC().Add(d.retryDelay(ps.Attempts + 1))
		if err := d.sends.MarkPlannedSendRetry(ctx, ps.ID, nextAt, sendErr.Error()); err != nil {
			return fmt.Errorf("mark send retry: %w", err)
		}
		slog.Warn("send failed, rescheduled",
			"planned_send_id", ps.ID, "attempt", ps.Attempts+1, "next_at", nextAt, "error", sendErr)
		return nil
	}

	if err := d.sends.MarkPlannedSendSent(ctx, ps.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark send sent: %w", err)
	}
	return nil
}

// fail marks the send permanently failed and releases the day's reserved
// capacity back to its sender.
func (d *Deliverer) fail(ctx context.Context, ps *models.PlannedSend, reason string) error {
	if err := d.sends.MarkPlannedSendFailed(ctx, ps.ID, reason); err != nil {
		return fmt.Errorf("mark send failed: %w", err)
	}
	if ps.SenderAccountID != nil {
		if err := d.senders.ReleaseSenderCapacity(ctx, *ps.SenderAccountID, 1); err != nil {
			slog.Error("release sender capacity", "sender_account_id", *ps.SenderAccountID, "error", err)
		}
	}
	slog.Warn("planned send failed permanently", "planned_send_id", ps.ID, "error", reason)
	return nil
}

func (d *Deliverer) pacer(senderID int64) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pacers[senderID]
	if !ok {
		p = rate.NewLimiter(d.perSenderRate, 1)
		d.pacers[senderID] = p
	}
	return p
}

func (d *Deliverer) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := d.retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.maxRetryDelay {
			return d.maxRetryDelay
		}
	}
	if delay > d.maxRetryDelay {
		return d.maxRetryDelay
	}
	return delay
}
