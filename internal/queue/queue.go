// Package queue moves delivery jobs from the dispatcher to the deliverer.
// Jobs reference planned sends by row ID; all send state lives in the
// database, so a lost or duplicated job is recoverable.
package queue

import "context"

// Job is one delivery unit of work.
type Job struct {
	PlannedSendID int64 `json:"planned_send_id"`
}

type Publisher interface {
	Publish(ctx context.Context, job Job) error
	Close() error
}

// Consumer delivers jobs to handler one at a time. A handler error requeues
// the job once; a second failure drops it (the database retry path takes
// over). Consume blocks until ctx is cancelled or the transport fails.
type Consumer interface {
	Consume(ctx context.Context, handler func(ctx context.Context, job Job) error) error
	Close() error
}
