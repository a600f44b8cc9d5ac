// Package dispatch fans a finalized item out to the configured notification
// sinks. Sink failures are logged and isolated: one channel being down never
// blocks the others, and never fails the cycle.
package dispatch

import (
	"context"
	"time"

	"ptnotify/internal/metrics"
	"ptnotify/internal/tracker"
	logx "ptnotify/pkg/logx"
)

// Sink delivers one item to one destination. Implementations own their
// formatting (markup conversion, icons); the dispatcher owns ordering and
// failure isolation.
type Sink interface {
	Name() string
	Send(ctx context.Context, item tracker.Item, trackerName, baseURL, itemURL string) error
}

// Spacing is the subset of config the dispatcher consults between items.
type Spacing interface {
	NotifySpacingValue() time.Duration
}

type Dispatcher struct {
	sinks   []Sink
	spacing Spacing
	log     logx.Logger
}

func New(sinks []Sink, spacing Spacing, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{sinks: sinks, spacing: spacing, log: log}
}

// Sinks reports how many sinks are configured.
func (d *Dispatcher) Sinks() int { return len(d.sinks) }

// Dispatch invokes every sink in configuration order. Errors are logged per
// sink and swallowed: delivery is best-effort at-least-once.
func (d *Dispatcher) Dispatch(ctx context.Context, item tracker.Item, trackerName, baseURL string) {
	for _, s := range d.sinks {
		if ctx.Err() != nil {
			return
		}
		if err := s.Send(ctx, item, trackerName, baseURL, item.URL); err != nil {
			metrics.DispatchFailed(s.Name())
			d.log.Error("sink delivery failed",
				logx.String("sink", s.Name()),
				logx.String("tracker", trackerName),
				logx.String("item_id", item.ID),
				logx.Err(err))
		}
	}
}

// Pause sleeps the configured inter-item spacing (webhook rate limits),
// returning early when ctx is cancelled. Called by the session between
// items, never between the sinks of one item.
func (d *Dispatcher) Pause(ctx context.Context) {
	wait := d.spacing.NotifySpacingValue()
	if wait <= 0 {
		return
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
