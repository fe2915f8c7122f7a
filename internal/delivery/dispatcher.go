// Package delivery executes planned sends: the dispatcher claims due rows
// and publishes delivery jobs, the deliverer consumes jobs and sends over
// SMTP.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coldfront-labs/coldfront/internal/queue"
	"github.com/coldfront-labs/coldfront/internal/store"
)

type DispatcherOptions struct {
	PollInterval time.Duration
	BatchSize    int
}

// Dispatcher polls for planned sends whose scheduled time has arrived,
// flips them to queued, and publishes one delivery job per send. Claiming
// happens in the store with row locking, so running several dispatchers is
// safe.
type Dispatcher struct {
	sends        store.PlannedSendStore
	pub          queue.Publisher
	pollInterval time.Duration
	batchSize    int
}

func NewDispatcher(sends store.PlannedSendStore, pub queue.Publisher, opts DispatcherOptions) *Dispatcher {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 15 * time.Second
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 100
	}

	return &Dispatcher{
		sends:        sends,
		pub:          pub,
		pollInterval: poll,
		batchSize:    batch,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		worked, err := d.dispatchBatch(ctx)
		if err != nil {
			slog.Error("dispatcher cycle failed", "error", err)
		}
		if worked {
			// Drain the backlog before sleeping again.
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) (bool, error) {
	claimed, err := d.sends.ClaimDuePlannedSends(ctx, time.Now().UTC(), d.batchSize)
	if err != nil {
		return false, fmt.Errorf("claim due sends: %w", err)
	}
	if len(claimed) == 0 {
		return false, nil
	}

	for _, ps := range claimed {
		if err := d.pub.Publish(ctx, queue.Job{PlannedSendID: ps.ID}); err != nil {
			// Put the send back so a later cycle can retry it.
			if relErr := d.sends.ReleasePlannedSend(ctx, ps.ID); relErr != nil {
				slog.Error("release send after publish failure", "planned_send_id", ps.ID, "error", relErr)
			}
			return true, fmt.Errorf("publish job for send %d: %w", ps.ID, err)
		}
	}

	slog.Info("dispatched planned sends", "count", len(claimed))
	return true, nil
}
