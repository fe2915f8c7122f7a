// Package schedule resolves a campaign's sequence steps into absolute send
// timestamps anchored at a launch instant.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

const (
	ModeRelative = "relative"
	ModeAbsolute = "absolute"

	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"

	// DefaultTime is used when an absolute step omits its time of day.
	DefaultTime = "09:00"
)

var (
	ErrUnknownUnit   = errors.New("unknown delay unit")
	ErrUnknownMode   = errors.New("unknown schedule mode")
	ErrNegativeDelay = errors.New("delay amount must not be negative")
)

// Step is the scheduling shape of one sequence step. Mode selects which
// fields apply: relative steps use Amount/Unit, absolute steps use
// Date ("2006-01-02") and Time ("15:04", default 09:00).
type Step struct {
	Mode   string
	Amount int
	Unit   string
	Date   string
	Time   string
}

// Compute resolves one timestamp per step, in step order.
//
// Step 0 resolves to exactly start regardless of its declared mode. A
// relative step resolves to the previous step's resolved timestamp plus its
// delay, so delays accumulate along the chain. An absolute step resolves to
// its literal date and time in UTC, independent of the previous step — even
// if that lands before it. Out-of-order results are reported by Anomalies,
// not rejected here.
func Compute(steps []Step, start time.Time) ([]time.Time, error) {
	if len(steps) == 0 {
		return nil, nil
	}

	resolved := make([]time.Time, len(steps))
	resolved[0] = start

	for i := 1; i < len(steps); i++ {
		s := steps[i]
		switch s.Mode {
		case ModeRelative:
			d, err := delayDuration(s.Amount, s.Unit)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			resolved[i] = resolved[i-1].Add(d)
		case ModeAbsolute:
			at, err := parseAbsolute(s.Date, s.Time)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			resolved[i] = at
		default:
			return nil, fmt.Errorf("step %d: %w: %q", i, ErrUnknownMode, s.Mode)
		}
	}

	return resolved, nil
}

// Anomalies returns the ordinals of steps that resolve earlier than their
// predecessor. These are surfaced as review warnings; launch is never
// blocked on them.
func Anomalies(resolved []time.Time) []int {
	var out []int
	for i := 1; i < len(resolved); i++ {
		if resolved[i].Before(resolved[i-1]) {
			out = append(out, i)
		}
	}
	return out
}

// Duration reports the span from the first to the last resolved timestamp,
// floored at zero.
func Duration(resolved []time.Time) time.Duration {
	if len(resolved) < 2 {
		return 0
	}
	d := resolved[len(resolved)-1].Sub(resolved[0])
	if d < 0 {
		return 0
	}
	return d
}

func delayDuration(amount int, unit string) (time.Duration, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeDelay, amount)
	}
	switch unit {
	case UnitMinutes:
		return time.Duration(amount) * time.Minute, nil
	case UnitHours:
		return time.Duration(amount) * time.Hour, nil
	case UnitDays:
		return time.Duration(amount) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
}

func parseAbsolute(date, timeOfDay string) (time.Time, error) {
	if timeOfDay == "" {
		timeOfDay = DefaultTime
	}
	at, err := time.ParseInLocation("2006-01-02 15:04", date+" "+timeOfDay, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid absolute schedule %q %q: %w", date, timeOfDay, err)
	}
	return at, nil
}
