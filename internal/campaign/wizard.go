package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/importer"
	"github.com/coldfront-labs/coldfront/internal/models"
)

var (
	ErrDraftNotFound = errors.New("draft not found")
	ErrDraftSealed   = errors.New("draft is sealed after launch")
	ErrUnknownStage  = errors.New("unknown wizard stage")
)

// Wizard is the in-memory draft registry backing the campaign wizard.
// Drafts are keyed by UUID, scoped to their owning user, and swept after a
// TTL of inactivity. All access goes through the registry lock; methods
// return snapshots, never live pointers into the map.
type Wizard struct {
	mu     sync.Mutex
	drafts map[uuid.UUID]*Draft
	ttl    time.Duration
}

// NewWizard creates a registry whose drafts expire after ttl without
// updates. A non-positive ttl defaults to 24 hours.
func NewWizard(ttl time.Duration) *Wizard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Wizard{
		drafts: make(map[uuid.UUID]*Draft),
		ttl:    ttl,
	}
}

// Create opens a new empty draft at the details stage.
func (w *Wizard) Create(userID int64) *Draft {
	now := time.Now().UTC()
	d := &Draft{
		ID:        uuid.New(),
		UserID:    userID,
		Stage:     StageDetails,
		Overrides: make(map[string]Override),
		CreatedAt: now,
		UpdatedAt: now,
	}

	w.mu.Lock()
	w.drafts[d.ID] = d
	w.mu.Unlock()

	return d.clone()
}

// Get returns a snapshot of the draft, if it exists and belongs to userID.
func (w *Wizard) Get(id uuid.UUID, userID int64) (*Draft, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	d, err := w.locked(id, userID)
	if err != nil {
		return nil, err
	}
	return d.clone(), nil
}

// Discard removes the draft. Discarding an unknown draft is not an error.
func (w *Wizard) Discard(id uuid.UUID, userID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if d, ok := w.drafts[id]; ok && d.UserID == userID {
		delete(w.drafts, id)
	}
}

// UpdateDetails merges the details-stage fragment into the draft.
func (w *Wizard) UpdateDetails(id uuid.UUID, userID int64, name, description string) (*Draft, error) {
	return w.update(id, userID, func(d *Draft) error {
		d.Name = name
		d.Description = description
		return nil
	})
}

// SetSenders records the selected sender accounts in selection order.
func (w *Wizard) SetSenders(id uuid.UUID, userID int64, senderIDs []int64) (*Draft, error) {
	return w.update(id, userID, func(d *Draft) error {
		d.SenderAccountIDs = append([]int64(nil), senderIDs...)
		return nil
	})
}

// SetContacts replaces the draft's contact list with a fresh import.
// Earlier keep/remove overrides no longer apply and are cleared.
func (w *Wizard) SetContacts(id uuid.UUID, userID int64, contacts []models.Contact, emailColumn string, summary *importer.Summary) (*Draft, error) {
	return w.update(id, userID, func(d *Draft) error {
		d.Contacts = append([]models.Contact(nil), contacts...)
		d.EmailColumn = emailColumn
		d.ImportSummary = summary
		d.Overrides = make(map[string]Override)
		return nil
	})
}

// RemoveContact deletes one contact from the draft by normalized email.
func (w *Wizard) RemoveContact(id uuid.UUID, userID int64, email string) (*Draft, error) {
	return w.update(id, userID, func(d *Draft) error {
		norm := models.Contact{EmailKey: "email", Attributes: map[string]string{"email": email}}.NormalizedEmail()
		kept := d.Contacts[:0]
		for _, c := range d.Contacts {
			if c.NormalizedEmail() != norm {
				kept = append(kept, c)
			}
		}
		d.Contacts = kept
		return nil
	})
}

// SetSequence replaces the draft's sequence steps.
func (w *Wizard) SetSequence(id uuid.UUID, userID int64, steps []DraftStep) (*Draft, error) {
	return w.update(id, userID, func(d *Draft) error {
		d.Sequence = append([]DraftStep(nil), steps...)
		return nil
	})
}

// SetStage moves the wizard to any valid stage. No gating in either
// direction: incomplete drafts may reach review, where validation runs.
func (w *Wizard) SetStage(id uuid.UUID, userID int64, stage Stage) (*Draft, error) {
	if !ValidStage(stage) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	return w.update(id, userID, func(d *Draft) error {
		d.Stage = stage
		return nil
	})
}

// SetOverrides merges per-contact keep/remove decisions, keyed by email.
func (w *Wizard) SetOverrides(id uuid.UUID, userID int64, overrides map[string]Override) (*Draft, error) {
	return w.update(id, userID, func(d *Draft) error {
		for email, o := range overrides {
			if o != OverrideKeep && o != OverrideRemove {
				return fmt.Errorf("invalid override %q for %s", o, email)
			}
			norm := models.Contact{EmailKey: "email", Attributes: map[string]string{"email": email}}.NormalizedEmail()
			d.Overrides[norm] = o
		}
		return nil
	})
}

// Seal marks the draft launched and removes it from the registry. The
// returned snapshot is the final state of the wizard's part of the work.
func (w *Wizard) Seal(id uuid.UUID, userID int64) (*Draft, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	d, err := w.locked(id, userID)
	if err != nil {
		return nil, err
	}
	d.sealed = true
	delete(w.drafts, id)
	return d.clone(), nil
}

// Run sweeps expired drafts until ctx is cancelled.
func (w *Wizard) Run(ctx context.Context) {
	ticker := time.NewTicker(w.ttl / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.sweep(time.Now().UTC()); n > 0 {
				slog.Info("swept expired campaign drafts", "count", n)
			}
		}
	}
}

func (w *Wizard) sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for id, d := range w.drafts {
		if now.Sub(d.UpdatedAt) >= w.ttl {
			delete(w.drafts, id)
			n++
		}
	}
	return n
}

func (w *Wizard) locked(id uuid.UUID, userID int64) (*Draft, error) {
	d, ok := w.drafts[id]
	if !ok || d.UserID != userID {
		return nil, ErrDraftNotFound
	}
	return d, nil
}

func (w *Wizard) update(id uuid.UUID, userID int64, fn func(*Draft) error) (*Draft, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	d, err := w.locked(id, userID)
	if err != nil {
		return nil, err
	}
	if d.sealed {
		return nil, ErrDraftSealed
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	d.UpdatedAt = time.Now().UTC()
	return d.clone(), nil
}
