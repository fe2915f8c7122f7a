package campaign

import (
	"fmt"
	"strings"
	"time"

	"github.com/coldfront-labs/coldfront/internal/allocator"
	"github.com/coldfront-labs/coldfront/internal/dedup"
	"github.com/coldfront-labs/coldfront/internal/merge"
	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/schedule"
)

// State is the assembly lifecycle: Draft → Validating → Ready → Launched.
// Validation failure drops back to Draft; Launched is a one-way gate.
type State string

const (
	StateDraft      State = "draft"
	StateValidating State = "validating"
	StateReady      State = "ready"
	StateLaunched   State = "launched"
)

// FieldError is one unmet requirement found at review.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors carries every failure at once so the UI can show the
// complete list, never just the first.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Field + ": " + e.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Warning is a non-blocking advisory surfaced at review and launch.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WarnScheduleAnomaly    = "schedule_anomaly"
	WarnHistoryUnavailable = "duplicate_check_unavailable"
)

// PlannedSend is one fully resolved future delivery produced by assembly.
// Sender is the zero value on unassigned sends.
type PlannedSend struct {
	Contact     models.Contact
	StepOrdinal int
	Sender      models.SenderAccount
	ScheduledAt time.Time
	Subject     string
	Body        string
}

// Assembly is the output of one successful assembly run: the full planned
// send set plus everything review needs to report.
type Assembly struct {
	State    State
	LaunchAt time.Time

	Sends      []PlannedSend
	Unassigned []PlannedSend

	// PerSender is what a launch must reserve, by sender account ID.
	PerSender map[int64]int
	Capacity  allocator.Capacity

	Warnings       []Warning
	FreshCount     int
	DuplicateCount int
	Excluded       int
	Duration       time.Duration
}

// Validate runs the review-stage field checks and returns every failure.
func Validate(d *Draft) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "campaign name is required"})
	}
	if len(d.SenderAccountIDs) == 0 {
		errs = append(errs, FieldError{Field: "senders", Message: "at least one sender account is required"})
	}
	if len(d.Contacts) == 0 {
		errs = append(errs, FieldError{Field: "contacts", Message: "at least one contact is required"})
	}
	if strings.TrimSpace(d.EmailColumn) == "" {
		errs = append(errs, FieldError{Field: "email_column", Message: "an email column must be selected"})
	}
	if len(d.Sequence) == 0 {
		errs = append(errs, FieldError{Field: "sequence", Message: "at least one sequence step is required"})
	}
	for i, s := range d.Sequence {
		if strings.TrimSpace(s.Subject) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("sequence[%d].subject", i), Message: "subject must not be empty"})
		}
		if strings.TrimSpace(s.Body) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("sequence[%d].body", i), Message: "body must not be empty"})
		}
	}
	return errs
}

// Assemble validates the draft and, on success, expands it into the full
// planned send set: dedup-filtered contacts crossed with sequence steps,
// each pair scheduled against launchAt, rendered per contact, and spread
// across the sender pool. Allocation shortfall does not fail assembly; the
// unassigned remainder is returned alongside the assigned sends.
//
// On validation failure the returned error is a ValidationErrors and the
// assembly state is back at Draft.
func Assemble(d *Draft, senders []models.SenderAccount, history map[string]struct{}, historyUnavailable bool, launchAt time.Time) (*Assembly, error) {
	if errs := Validate(d); len(errs) > 0 {
		return nil, errs
	}

	steps := make([]schedule.Step, len(d.Sequence))
	for i, s := range d.Sequence {
		steps[i] = s.Scheduling
	}
	resolved, err := schedule.Compute(steps, launchAt)
	if err != nil {
		return nil, ValidationErrors{{Field: "sequence", Message: err.Error()}}
	}

	asm := &Assembly{
		State:    StateReady,
		LaunchAt: launchAt,
		Capacity: allocator.CapacityOf(senders),
		Duration: schedule.Duration(resolved),
	}

	if historyUnavailable {
		asm.Warnings = append(asm.Warnings, Warning{
			Code:    WarnHistoryUnavailable,
			Message: "duplicate check unavailable — proceeding without it",
		})
	}
	for _, ordinal := range schedule.Anomalies(resolved) {
		asm.Warnings = append(asm.Warnings, Warning{
			Code:    WarnScheduleAnomaly,
			Message: fmt.Sprintf("step %d is scheduled before step %d", ordinal, ordinal-1),
		})
	}

	part := dedup.Partition(d.Contacts, history)
	asm.FreshCount = len(part.Fresh)
	asm.DuplicateCount = len(part.Duplicate)

	recipients := applyOverrides(d, part)
	asm.Excluded = len(d.Contacts) - len(recipients)

	// Contact-major cross product: all of one contact's steps before the
	// next contact.
	var pairs []allocator.Pair
	for _, c := range recipients {
		for ordinal := range d.Sequence {
			pairs = append(pairs, allocator.Pair{
				Contact: c,
				Step:    models.SequenceStep{Ordinal: ordinal},
			})
		}
	}

	res, err := allocator.Allocate(pairs, senders)
	if err != nil {
		return nil, err
	}
	asm.PerSender = res.PerSender

	for _, a := range res.Assigned {
		ps := renderSend(d, a.Pair, resolved)
		ps.Sender = a.Sender
		asm.Sends = append(asm.Sends, ps)
	}
	for _, p := range res.Unassigned {
		asm.Unassigned = append(asm.Unassigned, renderSend(d, p, resolved))
	}

	return asm, nil
}

// applyOverrides folds the user's keep/remove decisions into the
// classification: duplicates are excluded unless kept, fresh contacts are
// included unless removed. Original contact order is preserved.
func applyOverrides(d *Draft, part dedup.Result) []models.Contact {
	dup := make(map[string]bool, len(part.Duplicate))
	for _, c := range part.Duplicate {
		dup[c.NormalizedEmail()] = true
	}

	var out []models.Contact
	for _, c := range d.Contacts {
		norm := c.NormalizedEmail()
		override, has := d.Overrides[norm]
		if dup[norm] {
			if has && override == OverrideKeep {
				out = append(out, c)
			}
			continue
		}
		if has && override == OverrideRemove {
			continue
		}
		out = append(out, c)
	}
	return out
}

func renderSend(d *Draft, p allocator.Pair, resolved []time.Time) PlannedSend {
	step := d.Sequence[p.Step.Ordinal]
	return PlannedSend{
		Contact:     p.Contact,
		StepOrdinal: p.Step.Ordinal,
		ScheduledAt: resolved[p.Step.Ordinal],
		Subject:     merge.Render(step.Subject, p.Contact.Attributes),
		Body:        merge.Render(step.Body, p.Contact.Attributes),
	}
}
