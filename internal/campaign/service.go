package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/allocator"
	"github.com/coldfront-labs/coldfront/internal/dedup"
	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/store"
)

var (
	ErrLaunchInFlight  = errors.New("a launch is already in flight for this draft")
	ErrNoUnassigned    = errors.New("campaign has no unassigned sends")
	ErrCampaignMissing = errors.New("campaign not found")
)

// reserveRetries bounds how often a launch re-allocates after losing a
// capacity race to a concurrent launch against the same senders.
const reserveRetries = 3

// Service orchestrates reviews, launches, and post-launch reallocation on
// top of the wizard registry and the stores.
type Service struct {
	wizard    *Wizard
	senders   store.SenderAccountStore
	history   store.HistoryStore
	campaigns store.CampaignStore
	launches  store.LaunchStore
	sends     store.PlannedSendStore

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewService(wizard *Wizard, senders store.SenderAccountStore, history store.HistoryStore, campaigns store.CampaignStore, launches store.LaunchStore, sends store.PlannedSendStore) *Service {
	return &Service{
		wizard:    wizard,
		senders:   senders,
		history:   history,
		campaigns: campaigns,
		launches:  launches,
		sends:     sends,
		inFlight:  make(map[uuid.UUID]struct{}),
	}
}

// Wizard exposes the draft registry to the handlers.
func (s *Service) Wizard() *Wizard {
	return s.wizard
}

// Duplicates classifies the draft's contacts against prior recipients.
// The second return reports whether the history lookup was degraded.
func (s *Service) Duplicates(ctx context.Context, draftID uuid.UUID, userID int64) (dedup.Result, bool, error) {
	d, err := s.wizard.Get(draftID, userID)
	if err != nil {
		return dedup.Result{}, false, err
	}
	history, unavailable := s.historySet(ctx, userID)
	return dedup.Partition(d.Contacts, history), unavailable, nil
}

// Review dry-runs assembly against current sender capacity without
// touching any persistent state. A ValidationErrors error means the draft
// is incomplete.
func (s *Service) Review(ctx context.Context, draftID uuid.UUID, userID int64) (*Assembly, error) {
	d, err := s.wizard.Get(draftID, userID)
	if err != nil {
		return nil, err
	}

	senders, err := s.sendersForDraft(ctx, d)
	if err != nil {
		return nil, err
	}
	history, unavailable := s.historySet(ctx, userID)

	return Assemble(d, senders, history, unavailable, time.Now().UTC())
}

// LaunchResult is what a completed launch reports back to the caller.
type LaunchResult struct {
	Campaign   *models.Campaign
	Scheduled  int
	Unassigned int
	Warnings   []Warning
}

// Launch assembles the draft and persists the campaign, its steps,
// contacts, and every planned send in one transaction, reserving sender
// capacity atomically. At most one launch may be in flight per draft; a
// lost capacity race refreshes the sender pool and re-allocates, a bounded
// number of times, before giving up. On success the draft is sealed and
// removed from the wizard.
func (s *Service) Launch(ctx context.Context, draftID uuid.UUID, userID int64) (*LaunchResult, error) {
	if !s.acquire(draftID) {
		return nil, ErrLaunchInFlight
	}
	defer s.release(draftID)

	d, err := s.wizard.Get(draftID, userID)
	if err != nil {
		return nil, err
	}

	history, unavailable := s.historySet(ctx, userID)
	launchAt := time.Now().UTC()

	var (
		asm      *Assembly
		launched *models.Campaign
	)
	for attempt := 1; attempt <= reserveRetries; attempt++ {
		senders, err := s.sendersForDraft(ctx, d)
		if err != nil {
			return nil, err
		}

		asm, err = Assemble(d, senders, history, unavailable, launchAt)
		if err != nil {
			return nil, err
		}

		launched, err = s.launches.CreateCampaignLaunch(ctx, launchParams(d, asm))
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrCapacityExceeded) && attempt < reserveRetries {
			slog.Warn("sender capacity raced at launch, re-allocating",
				"draft_id", draftID, "attempt", attempt)
			continue
		}
		return nil, fmt.Errorf("persist launch: %w", err)
	}

	if _, err := s.wizard.Seal(draftID, userID); err != nil {
		// The campaign is already persisted; a missing draft here only
		// means a concurrent discard.
		slog.Warn("seal after launch failed", "draft_id", draftID, "error", err)
	}

	return &LaunchResult{
		Campaign:   launched,
		Scheduled:  len(asm.Sends),
		Unassigned: len(asm.Unassigned),
		Warnings:   asm.Warnings,
	}, nil
}

// Reallocate retries a campaign's unassigned remainder against the
// current sender pool, reserving capacity for every send it manages to
// assign. Sends that still do not fit stay unassigned.
func (s *Service) Reallocate(ctx context.Context, campaignPublicID uuid.UUID, userID int64) (assigned, remaining int, err error) {
	c, err := s.campaigns.GetCampaignByPublicID(ctx, campaignPublicID)
	if err != nil || c == nil || c.UserID != userID {
		return 0, 0, ErrCampaignMissing
	}

	pending, err := s.sends.ListUnassignedByCampaignID(ctx, c.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("list unassigned sends: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, ErrNoUnassigned
	}

	senders, err := s.senders.ListSenderAccountsByUserID(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("list sender accounts: %w", err)
	}

	for attempt := 1; attempt <= reserveRetries; attempt++ {
		pairs := make([]allocator.Pair, len(pending))
		for i, ps := range pending {
			pairs[i] = allocator.Pair{
				Contact: models.Contact{EmailKey: "email", Attributes: map[string]string{"email": ps.RecipientEmail}},
				Step:    models.SequenceStep{Ordinal: i},
			}
		}

		res, err := allocator.Allocate(pairs, senders)
		if err != nil {
			return 0, 0, err
		}
		if len(res.Assigned) == 0 {
			return 0, len(pending), nil
		}

		// Allocation preserves input order, so the assigned prefix maps
		// back onto the pending slice by index.
		assignments := make([]store.SendAssignment, len(res.Assigned))
		for i, a := range res.Assigned {
			assignments[i] = store.SendAssignment{
				PlannedSendID:   pending[i].ID,
				SenderAccountID: a.Sender.ID,
				ScheduledAt:     pending[i].ScheduledAt,
			}
		}

		err = s.launches.AssignPlannedSends(ctx, assignments, res.PerSender)
		if err == nil {
			return len(assignments), len(pending) - len(assignments), nil
		}
		if errors.Is(err, store.ErrCapacityExceeded) && attempt < reserveRetries {
			senders, err = s.senders.ListSenderAccountsByUserID(ctx, userID)
			if err != nil {
				return 0, 0, fmt.Errorf("refresh sender accounts: %w", err)
			}
			continue
		}
		return 0, 0, fmt.Errorf("assign planned sends: %w", err)
	}

	return 0, len(pending), nil
}

// sendersForDraft loads the user's accounts and orders them by the draft's
// selection, which is the rotation order. Unknown IDs are dropped.
func (s *Service) sendersForDraft(ctx context.Context, d *Draft) ([]models.SenderAccount, error) {
	all, err := s.senders.ListSenderAccountsByUserID(ctx, d.UserID)
	if err != nil {
		return nil, fmt.Errorf("list sender accounts: %w", err)
	}

	byID := make(map[int64]models.SenderAccount, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}

	var out []models.SenderAccount
	for _, id := range d.SenderAccountIDs {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// historySet loads prior recipients, failing open on error: campaigns are
// never blocked by an unavailable history lookup, but the degraded check
// is reported to the caller.
func (s *Service) historySet(ctx context.Context, userID int64) (map[string]struct{}, bool) {
	prior, err := s.history.ListPriorRecipients(ctx, userID)
	if err != nil {
		slog.Warn("prior recipient lookup unavailable, duplicate check degraded",
			"user_id", userID, "error", err)
		return map[string]struct{}{}, true
	}
	return dedup.HistorySet(prior), false
}

func (s *Service) acquire(draftID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[draftID]; busy {
		return false
	}
	s.inFlight[draftID] = struct{}{}
	return true
}

func (s *Service) release(draftID uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, draftID)
	s.mu.Unlock()
}

func launchParams(d *Draft, asm *Assembly) store.LaunchParams {
	params := store.LaunchParams{
		UserID:       d.UserID,
		Name:         d.Name,
		Description:  d.Description,
		EmailColumn:  d.EmailColumn,
		LaunchedAt:   asm.LaunchAt,
		Reservations: asm.PerSender,
	}

	for i, s := range d.Sequence {
		params.Steps = append(params.Steps, store.LaunchStep{
			Ordinal:      i,
			Subject:      s.Subject,
			Body:         s.Body,
			ScheduleMode: s.Scheduling.Mode,
			DelayAmount:  s.Scheduling.Amount,
			DelayUnit:    s.Scheduling.Unit,
			AbsoluteDate: s.Scheduling.Date,
			AbsoluteTime: s.Scheduling.Time,
		})
	}

	contactIndex := make(map[string]int)
	addContact := func(c models.Contact) int {
		norm := c.NormalizedEmail()
		if idx, ok := contactIndex[norm]; ok {
			return idx
		}
		idx := len(params.Contacts)
		contactIndex[norm] = idx
		params.Contacts = append(params.Contacts, store.LaunchContact{
			Email:      c.Email(),
			Attributes: c.Attributes,
		})
		return idx
	}

	addSend := func(ps PlannedSend, senderID *int64, status string) {
		params.Sends = append(params.Sends, store.LaunchSend{
			ContactIndex:    addContact(ps.Contact),
			StepOrdinal:     ps.StepOrdinal,
			SenderAccountID: senderID,
			RecipientEmail:  ps.Contact.Email(),
			Subject:         ps.Subject,
			Body:            ps.Body,
			ScheduledAt:     ps.ScheduledAt,
			Status:          status,
		})
	}

	for _, ps := range asm.Sends {
		id := ps.Sender.ID
		addSend(ps, &id, models.SendStatusScheduled)
	}
	for _, ps := range asm.Unassigned {
		addSend(ps, nil, models.SendStatusUnassigned)
	}

	return params
}
