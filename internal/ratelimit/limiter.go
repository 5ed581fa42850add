// Package ratelimit enforces the provider's per-minute and per-day call
// budgets plus a pacing floor between consecutive calls. The provider
// throttles bursts harder than its documented per-minute ceiling, so a
// fixed minimum delay is applied whenever more than one call lands in
// the current minute window.
//
// Quota is reserved before the pacing sleep: a caller cancelled while
// waiting has still consumed its slot. Undercounting the provider's
// windows is worse than losing a local slot to an abandoned call.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrLimited is returned when either window is at capacity.
var ErrLimited = errors.New("rate limit exceeded")

// Status is a snapshot of both windows for introspection.
type Status struct {
	MinuteUsed  int `json:"minute_used"`
	MinuteLimit int `json:"minute_limit"`
	DayUsed     int `json:"day_used"`
	DayLimit    int `json:"day_limit"`
}

// Limiter tracks request timestamps in two sliding windows. State is
// process-lifetime only; a restart starts with empty windows.
type Limiter struct {
	mu          sync.Mutex
	minuteLimit int
	dayLimit    int
	pacing      time.Duration

	minute   []time.Time
	day      []time.Time
	nextSlot time.Time // earliest admission time honoring the pacing floor
	now      func() time.Time
	log      zerolog.Logger
}

// New creates a limiter with the given budgets and pacing floor.
func New(minuteLimit, dayLimit int, pacing time.Duration, log zerolog.Logger) *Limiter {
	return &Limiter{
		minuteLimit: minuteLimit,
		dayLimit:    dayLimit,
		pacing:      pacing,
		now:         time.Now,
		log:         log.With().Str("component", "ratelimit").Logger(),
	}
}

// Acquire reserves one call. It either records the call and (after any
// pacing delay) returns nil, or denies with ErrLimited. The window
// check and the recording happen in one critical section so two
// concurrent callers can never both slip past a full window.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	l.pruneLocked(now)

	if len(l.minute) >= l.minuteLimit || len(l.day) >= l.dayLimit {
		status := l.statusLocked()
		l.mu.Unlock()
		l.log.Warn().
			Int("minute_used", status.MinuteUsed).
			Int("minute_limit", status.MinuteLimit).
			Int("day_used", status.DayUsed).
			Int("day_limit", status.DayLimit).
			Msg("call denied")
		return fmt.Errorf("%w: minute %d/%d, day %d/%d", ErrLimited,
			status.MinuteUsed, status.MinuteLimit, status.DayUsed, status.DayLimit)
	}

	// Pacing applies only once a second call lands in the current
	// minute. The reserved slot advances under the lock so concurrent
	// callers queue behind each other instead of sleeping in lockstep.
	var wait time.Duration
	if len(l.minute) > 0 {
		slot := l.nextSlot
		if slot.Before(now) {
			slot = now
		}
		wait = slot.Sub(now)
		l.nextSlot = slot.Add(l.pacing)
	} else {
		l.nextSlot = now.Add(l.pacing)
	}

	l.minute = append(l.minute, now)
	l.day = append(l.day, now)
	l.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Status reports current window usage.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	return l.statusLocked()
}

func (l *Limiter) statusLocked() Status {
	return Status{
		MinuteUsed:  len(l.minute),
		MinuteLimit: l.minuteLimit,
		DayUsed:     len(l.day),
		DayLimit:    l.dayLimit,
	}
}

func (l *Limiter) pruneLocked(now time.Time) {
	l.minute = pruneBefore(l.minute, now.Add(-time.Minute))
	l.day = pruneBefore(l.day, now.Add(-24*time.Hour))
}

// pruneBefore drops timestamps at or before the cutoff. Slices are
// appended in time order, so the survivors are a suffix.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
