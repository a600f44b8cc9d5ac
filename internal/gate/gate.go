// Package gate serializes outbound tracker requests process-wide.
//
// Every session shares one gate: even unrelated sites wait on the same
// clock. When dozens of sessions wake up in the same cycle, the process as a
// whole still never bursts.
package gate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Settings is the subset of config the gate reads. It is consulted on every
// Acquire, not cached, so a live config manager (or a fixed stub in tests)
// can change pacing without restarts.
type Settings interface {
	RequestDelayValue() time.Duration
	RequestTimeoutValue() time.Duration
}

// Gate enforces a minimum spacing between any two requests it releases.
// Exactly one caller proceeds at a time; the rest queue on the limiter.
type Gate struct {
	settings Settings

	mu      sync.Mutex
	limiter *rate.Limiter
	delay   time.Duration
}

func New(settings Settings) *Gate {
	g := &Gate{settings: settings}
	d := settings.RequestDelayValue()
	g.delay = d
	g.limiter = rate.NewLimiter(limitFor(d), 1)
	return g
}

// Acquire blocks until at least the configured delay has elapsed since the
// previous release, then records this release. Safe for concurrent use;
// ordering across callers is whatever the limiter queue gives us, only the
// spacing matters.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if d := g.settings.RequestDelayValue(); d != g.delay {
		g.delay = d
		g.limiter.SetLimit(limitFor(d))
	}
	lim := g.limiter
	g.mu.Unlock()

	return lim.Wait(ctx)
}

// Timeout returns the current per-request deadline.
func (g *Gate) Timeout() time.Duration {
	return g.settings.RequestTimeoutValue()
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}
