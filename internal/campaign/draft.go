package campaign

import (
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/importer"
	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/schedule"
)

// Stage is one of the five linear wizard stages. Navigation between stages
// is free in both directions; required fields are only enforced at review.
type Stage string

const (
	StageDetails  Stage = "details"
	StageSenders  Stage = "senders"
	StageContacts Stage = "contacts"
	StageSequence Stage = "sequence"
	StageReview   Stage = "review"
)

var stageOrder = []Stage{StageDetails, StageSenders, StageContacts, StageSequence, StageReview}

// ValidStage reports whether s names a wizard stage.
func ValidStage(s Stage) bool {
	for _, known := range stageOrder {
		if s == known {
			return true
		}
	}
	return false
}

// Override is a user decision on one detected duplicate (or fresh contact):
// keep it in the campaign or remove it, regardless of classification.
type Override string

const (
	OverrideKeep   Override = "keep"
	OverrideRemove Override = "remove"
)

// DraftStep is one sequence step while still editable.
type DraftStep struct {
	Subject    string
	Body       string
	Scheduling schedule.Step
}

// Draft accumulates wizard input until launch. It lives only in the wizard
// registry: abandoning a draft leaves no persistent trace.
type Draft struct {
	ID          uuid.UUID
	UserID      int64
	Stage       Stage
	Name        string
	Description string
	EmailColumn string

	// SenderAccountIDs keeps the user's selection order, which is the
	// rotation order the allocator uses.
	SenderAccountIDs []int64

	Contacts      []models.Contact
	ImportSummary *importer.Summary

	Sequence []DraftStep

	// Overrides maps normalized email to a keep/remove decision.
	Overrides map[string]Override

	CreatedAt time.Time
	UpdatedAt time.Time

	sealed bool
}

// Sealed reports whether the draft has been launched and is closed to
// further mutation.
func (d *Draft) Sealed() bool {
	return d.sealed
}

// clone returns a snapshot safe to hand outside the wizard lock. Slices
// and maps are copied one level deep; contacts share attribute maps, which
// callers treat as read-only.
func (d *Draft) clone() *Draft {
	c := *d
	c.SenderAccountIDs = append([]int64(nil), d.SenderAccountIDs...)
	c.Contacts = append([]models.Contact(nil), d.Contacts...)
	c.Sequence = append([]DraftStep(nil), d.Sequence...)
	c.Overrides = make(map[string]Override, len(d.Overrides))
	for k, v := range d.Overrides {
		c.Overrides[k] = v
	}
	if d.ImportSummary != nil {
		s := *d.ImportSummary
		c.ImportSummary = &s
	}
	return &c
}
