package campaign

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/schedule"
)

func TestWizard_CreateStartsAtDetails(t *testing.T) {
	w := NewWizard(time.Hour)

	d := w.Create(1)
	if d.Stage != StageDetails {
		t.Errorf("expected details stage, got %s", d.Stage)
	}
	if d.ID == uuid.Nil {
		t.Error("expected a draft ID")
	}
}

func TestWizard_GetScopedToOwner(t *testing.T) {
	w := NewWizard(time.Hour)
	d := w.Create(1)

	if _, err := w.Get(d.ID, 2); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound for other user, got %v", err)
	}
	if _, err := w.Get(d.ID, 1); err != nil {
		t.Fatalf("expected owner to see draft, got %v", err)
	}
}

func TestWizard_StageUpdatesShallowMerge(t *testing.T) {
	w := NewWizard(time.Hour)
	d := w.Create(1)

	if _, err := w.UpdateDetails(d.ID, 1, "Q1 outreach", "first touch"); err != nil {
		t.Fatalf("update details: %v", err)
	}
	if _, err := w.SetSenders(d.ID, 1, []int64{3, 1}); err != nil {
		t.Fatalf("set senders: %v", err)
	}
	got, err := w.SetSequence(d.ID, 1, []DraftStep{{Subject: "s", Body: "b", Scheduling: schedule.Step{Mode: schedule.ModeRelative}}})
	if err != nil {
		t.Fatalf("set sequence: %v", err)
	}

	if got.Name != "Q1 outreach" {
		t.Errorf("details fragment lost: %q", got.Name)
	}
	if len(got.SenderAccountIDs) != 2 || got.SenderAccountIDs[0] != 3 {
		t.Errorf("sender selection order lost: %v", got.SenderAccountIDs)
	}
	if len(got.Sequence) != 1 {
		t.Errorf("sequence fragment lost: %v", got.Sequence)
	}
}

func TestWizard_FreeNavigationBothDirections(t *testing.T) {
	w := NewWizard(time.Hour)
	d := w.Create(1)

	// Jump straight to review with nothing filled in.
	got, err := w.SetStage(d.ID, 1, StageReview)
	if err != nil {
		t.Fatalf("expected free forward navigation, got %v", err)
	}
	if got.Stage != StageReview {
		t.Errorf("expected review stage, got %s", got.Stage)
	}

	got, err = w.SetStage(d.ID, 1, StageDetails)
	if err != nil {
		t.Fatalf("expected free backward navigation, got %v", err)
	}
	if got.Stage != StageDetails {
		t.Errorf("expected details stage, got %s", got.Stage)
	}
}

func TestWizard_UnknownStageRejected(t *testing.T) {
	w := NewWizard(time.Hour)
	d := w.Create(1)

	if _, err := w.SetStage(d.ID, 1, Stage("summary")); !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}

func TestWizard_NewImportClearsOverrides(t *testing.T) {
	w := NewWizard(time.Hour)
	d := w.Create(1)

	contacts := []models.Contact{{EmailKey: "email", Attributes: map[string]string{"email": "a@x.com"}}}
	if _, err := w.SetContacts(d.ID, 1, contacts, "email", nil); err != nil {
		t.Fatalf("set contacts: %v", err)
	}
	if _, err := w.SetOverrides(d.ID, 1, map[string]Override{"a@x.com": OverrideKeep}); err != nil {
		t.Fatalf("set overrides: %v", err)
	}

	got, err := w.SetContacts(d.ID, 1, contacts, "email", nil)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if len(got.Overrides) != 0 {
		t.Errorf("expected overrides cleared on re-import, got %v", got.Overrides)
	}
}

func TestWizard_OverridesNormalizeEmails(t *testing.T) {
	w := NewWizard(time.Hour)
	d := w.Create(1)

	got, err := w.SetOverrides(d.ID, 1, map[string]Override{" A@X.COM ": OverrideRemove})
	if err != nil {
		t.Fatalf("set overrides: %v", err)
	}
	if got.Overrides["a@x.com"] != OverrideRemove {
		t.Errorf("expected normalized override key, got %v", got.Overrides)
	}
}

func TestWizard_InvalidOverrideRejected(t *testing.T) {
	w := NewWizard(time.Hour)
	d := w.Create(1)

	if _, err := w.SetOverrides(d.ID, 1, map[string]Override{"a@x.com": Override("maybe")}); err == nil {
		t.Fatal("expected error for invalid override value")
	}
}

func TestWizard_SealRemovesAndBlocksMutation(t *testing.T) {
	w := NewWizard(time.Hour)
	d := w.Create(1)

	sealed, err := w.Seal(d.ID, 1)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !sealed.Sealed() {
		t.Error("expected sealed draft")
	}
	if _, err := w.Get(d.ID, 1); !errors.Is(err, ErrDraftNotFound) {
		t.Errorf("expected sealed draft gone from registry, got %v", err)
	}
}

func TestWizard_DiscardLeavesNoTrace(t *testing.T) {
	w := NewWizard(time.Hour)
	d := w.Create(1)

	w.Discard(d.ID, 1)
	if _, err := w.Get(d.ID, 1); !errors.Is(err, ErrDraftNotFound) {
		t.Errorf("expected draft gone, got %v", err)
	}
}

func TestWizard_SweepRemovesIdleDrafts(t *testing.T) {
	w := NewWizard(time.Minute)
	d := w.Create(1)

	if n := w.sweep(time.Now().UTC()); n != 0 {
		t.Errorf("expected nothing swept yet, got %d", n)
	}
	if n := w.sweep(time.Now().UTC().Add(2 * time.Minute)); n != 1 {
		t.Errorf("expected 1 draft swept, got %d", n)
	}
	if _, err := w.Get(d.ID, 1); !errors.Is(err, ErrDraftNotFound) {
		t.Errorf("expected swept draft gone, got %v", err)
	}
}

func TestWizard_RemoveContactByEmail(t *testing.T) {
	w := NewWizard(time.Hour)
	d := w.Create(1)

	contacts := []models.Contact{
		{EmailKey: "email", Attributes: map[string]string{"email": "a@x.com"}},
		{EmailKey: "email", Attributes: map[string]string{"email": "b@x.com"}},
	}
	if _, err := w.SetContacts(d.ID, 1, contacts, "email", nil); err != nil {
		t.Fatalf("set contacts: %v", err)
	}

	got, err := w.RemoveContact(d.ID, 1, "A@X.com")
	if err != nil {
		t.Fatalf("remove contact: %v", err)
	}
	if len(got.Contacts) != 1 || got.Contacts[0].Email() != "b@x.com" {
		t.Errorf("expected a@x.com removed, got %v", got.Contacts)
	}
}
