package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a per-caller token bucket rate limiter. Callers are tracked by
// an opaque key (API key ID or client IP) and stale entries are cleaned up
// automatically.
type Limiter struct {
	callers map[string]*caller
	mu      sync.RWMutex
	rps     rate.Limit
	burst   int
}

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a rate limiter that allows rps requests per second with
// the given burst size per caller. It starts a background goroutine that
// removes callers not seen for 5 or more minutes, running every 3 minutes.
func NewLimiter(rps float64, burst int) *Limiter {
	l := &Limiter{
		callers: make(map[string]*caller),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go l.cleanup()
	return l
}

// Allow reports whether a request from the given caller key should be
// permitted, creating a fresh bucket for unseen keys.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	c, exists := l.callers[key]
	if !exists {
		c = &caller{
			limiter: rate.NewLimiter(l.rps, l.burst),
		}
		l.callers[key] = c
	}
	c.lastSeen = time.Now()
	l.mu.Unlock()

	return c.limiter.Allow()
}

func (l *Limiter) cleanup() {
	for {
		time.Sleep(3 * time.Minute)

		l.mu.Lock()
		for key, c := range l.callers {
			if time.Since(c.lastSeen) >= 5*time.Minute {
				delete(l.callers, key)
			}
		}
		l.mu.Unlock()
	}
}
