package gate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type stubSettings struct {
	delay   atomic.Int64 // nanoseconds
	timeout time.Duration
}

func (s *stubSettings) RequestDelayValue() time.Duration {
	return time.Duration(s.delay.Load())
}
func (s *stubSettings) RequestTimeoutValue() time.Duration { return s.timeout }

func TestAcquireEnforcesSpacing(t *testing.T) {
	settings := &stubSettings{timeout: time.Second}
	settings.delay.Store(int64(50 * time.Millisecond))
	g := New(settings)
	ctx := context.Background()

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	start := time.Now()
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("second acquire returned after %v, want >= ~50ms", elapsed)
	}
}

func TestAcquireReadsDelayLive(t *testing.T) {
	settings := &stubSettings{timeout: time.Second}
	settings.delay.Store(int64(time.Hour))
	g := New(settings)
	ctx := context.Background()

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// Drop the configured delay to zero; the next acquire must pick it up
	// instead of waiting out the old hour-long spacing.
	settings.delay.Store(0)
	done := make(chan error, 1)
	go func() { done <- g.Acquire(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("acquire after delay change: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("acquire still blocked on the stale delay")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	settings := &stubSettings{timeout: time.Second}
	settings.delay.Store(int64(time.Hour))
	g := New(settings)

	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); err == nil {
		t.Fatalf("expected context error while spacing is an hour")
	}
}

func TestTimeout(t *testing.T) {
	settings := &stubSettings{timeout: 30 * time.Second}
	g := New(settings)
	if g.Timeout() != 30*time.Second {
		t.Fatalf("Timeout() = %v", g.Timeout())
	}
}
