// Package allocator spreads planned recipient-step pairs across sender
// accounts round-robin, under each account's daily limit.
package allocator

import (
	"errors"

	"github.com/coldfront-labs/coldfront/internal/models"
)

var ErrNoSenders = errors.New("no sender accounts")

// Pair is one (contact, step) unit awaiting a sender.
type Pair struct {
	Contact models.Contact
	Step    models.SequenceStep
}

// Assigned is a pair bound to the sender account that will carry it.
type Assigned struct {
	Pair
	Sender models.SenderAccount
}

// Result keeps unassignable pairs instead of dropping them; the caller
// decides whether to defer or shrink the launch.
type Result struct {
	Assigned   []Assigned
	Unassigned []Pair

	// PerSender counts assignments by sender account ID, the amounts the
	// launch transaction must reserve.
	PerSender map[int64]int
}

// Capacity is the pool-wide headroom summary shown before allocation.
type Capacity struct {
	Total     int
	Used      int
	Remaining int
}

// CapacityOf sums daily limits and observed usage across the pool.
func CapacityOf(senders []models.SenderAccount) Capacity {
	var c Capacity
	for _, s := range senders {
		c.Total += s.DailyLimit
		c.Used += s.SentToday
		c.Remaining += s.Remaining()
	}
	return c
}

// Allocate assigns senders to pairs in rotation over the sender slice in
// its given order. A sender at capacity (observed sends plus assignments
// made in this run) is skipped; once every sender is exhausted the rest of
// the pairs are returned unassigned. Output depends only on input order,
// so identical inputs allocate identically.
func Allocate(pairs []Pair, senders []models.SenderAccount) (Result, error) {
	if len(senders) == 0 {
		return Result{}, ErrNoSenders
	}

	res := Result{PerSender: make(map[int64]int, len(senders))}
	assigned := make([]int, len(senders))

	cursor := 0
	for i, p := range pairs {
		idx, ok := nextAvailable(senders, assigned, cursor)
		if !ok {
			res.Unassigned = append(res.Unassigned, pairs[i:]...)
			break
		}
		assigned[idx]++
		res.PerSender[senders[idx].ID]++
		res.Assigned = append(res.Assigned, Assigned{Pair: p, Sender: senders[idx]})
		cursor = (idx + 1) % len(senders)
	}

	return res, nil
}

// nextAvailable walks the rotation starting at cursor and returns the first
// sender with headroom left. SentToday is re-checked on every assignment
// since external sends may have consumed capacity concurrently.
func nextAvailable(senders []models.SenderAccount, assigned []int, cursor int) (int, bool) {
	for probe := 0; probe < len(senders); probe++ {
		idx := (cursor + probe) % len(senders)
		if senders[idx].SentToday+assigned[idx] < senders[idx].DailyLimit {
			return idx, true
		}
	}
	return 0, false
}
