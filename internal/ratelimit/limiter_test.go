package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLimiter(minute, day int, pacing time.Duration) *Limiter {
	return New(minute, day, pacing, zerolog.Nop())
}

func TestAcquireDeniesWhenMinuteWindowFull(t *testing.T) {
	l := newTestLimiter(3, 100, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	err := l.Acquire(ctx)
	if !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}

	st := l.Status()
	if st.MinuteUsed != 3 || st.MinuteLimit != 3 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestAcquireDeniesWhenDayWindowFull(t *testing.T) {
	l := newTestLimiter(100, 2, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if err := l.Acquire(ctx); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
}

func TestMinuteWindowSlides(t *testing.T) {
	l := newTestLimiter(2, 100, 0)
	base := time.Now()
	current := base
	l.now = func() time.Time { return current }
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if err := l.Acquire(ctx); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}

	// Advance past the minute window; the old timestamps must age out.
	current = base.Add(61 * time.Second)
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire after window slide: %v", err)
	}
	st := l.Status()
	if st.MinuteUsed != 1 {
		t.Fatalf("expected 1 in minute window, got %d", st.MinuteUsed)
	}
	if st.DayUsed != 3 {
		t.Fatalf("expected 3 in day window, got %d", st.DayUsed)
	}
}

func TestPacingDelayBetweenConsecutiveCalls(t *testing.T) {
	pacing := 50 * time.Millisecond
	l := newTestLimiter(10, 100, pacing)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)
	// First call is free, the next two each pay the pacing floor.
	if elapsed < 2*pacing {
		t.Fatalf("pacing not applied: 3 calls took %v, want >= %v", elapsed, 2*pacing)
	}
}

func TestAcquireHonorsContextDuringPacing(t *testing.T) {
	l := newTestLimiter(10, 100, time.Second)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The cancelled caller reserved its slot before sleeping, so the
	// window still counts it.
	if st := l.Status(); st.MinuteUsed != 2 {
		t.Fatalf("cancelled acquire should still consume quota, got %d", st.MinuteUsed)
	}
}

func TestConcurrentAcquireNeverExceedsWindow(t *testing.T) {
	const limit = 20
	const callers = 100

	l := newTestLimiter(limit, 10_000, 0)
	ctx := context.Background()

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != limit {
		t.Fatalf("expected exactly %d grants, got %d", limit, got)
	}
	if st := l.Status(); st.MinuteUsed != limit {
		t.Fatalf("window recorded %d, want %d", st.MinuteUsed, limit)
	}
}
