package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/queue"
)

type recordingPublisher struct {
	jobs    []queue.Job
	failOn  int64
	publish int
}

func (p *recordingPublisher) Publish(_ context.Context, job queue.Job) error {
	p.publish++
	if p.failOn != 0 && job.PlannedSendID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestDispatchBatch_PublishesOneJobPerClaimedSend(t *testing.T) {
	sends := newMockSendStore()
	sends.due = []models.PlannedSend{{ID: 1}, {ID: 2}, {ID: 3}}
	pub := &recordingPublisher{}
	d := NewDispatcher(sends, pub, DispatcherOptions{})

	worked, err := d.dispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !worked {
		t.Error("expected work to be reported")
	}
	if len(pub.jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(pub.jobs))
	}
	for i, job := range pub.jobs {
		if job.PlannedSendID != int64(i+1) {
			t.Errorf("job %d: expected send %d, got %d", i, i+1, job.PlannedSendID)
		}
	}
}

func TestDispatchBatch_NothingDue(t *testing.T) {
	d := NewDispatcher(newMockSendStore(), &recordingPublisher{}, DispatcherOptions{})

	worked, err := d.dispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if worked {
		t.Error("expected no work reported for empty claim")
	}
}

func TestDispatchBatch_PublishFailureReleasesSend(t *testing.T) {
	sends := newMockSendStore()
	sends.due = []models.PlannedSend{{ID: 1}, {ID: 2}}
	pub := &recordingPublisher{failOn: 2}
	d := NewDispatcher(sends, pub, DispatcherOptions{})

	_, err := d.dispatchBatch(context.Background())
	if err == nil {
		t.Fatal("expected publish error to surface")
	}
	if len(sends.released) != 1 || sends.released[0] != 2 {
		t.Errorf("expected send 2 released back to scheduled, got %v", sends.released)
	}
}

func TestDispatchBatch_ClaimErrorSurfaces(t *testing.T) {
	sends := newMockSendStore()
	sends.claimErr = errors.New("db down")
	d := NewDispatcher(sends, &recordingPublisher{}, DispatcherOptions{})

	if _, err := d.dispatchBatch(context.Background()); err == nil {
		t.Fatal("expected claim error to surface")
	}
}
