// Package session runs one polling cycle per tracker: due check, fetch
// through the shared gate, dedup filter, sink dispatch, ledger commit.
//
// The session is the error boundary of the system. Whatever goes wrong in a
// cycle is logged and contained here; other sessions and the poll loop never
// see it.
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ptnotify/internal/dispatch"
	"ptnotify/internal/gate"
	"ptnotify/internal/metrics"
	"ptnotify/internal/state"
	"ptnotify/internal/tracker"
	"ptnotify/internal/version"
	logx "ptnotify/pkg/logx"
)

// Settings is the live-config surface the session reads. Values are
// consulted at use time so config edits apply without a restart.
type Settings interface {
	ScrapeIntervalValue() time.Duration
	MarkAsReadEnabled() bool
	APITokenFor(kind string) string
	// DumpTarget returns the directory for failed-response dumps and
	// whether dumping is enabled.
	DumpTarget() (string, bool)
}

// Session binds one tracker identity to its credentials, the shared gate,
// its dedup ledger, and the dispatcher. One cycle at a time; the poller
// never runs the same session concurrently with itself.
type Session struct {
	adapter    tracker.Adapter
	client     *http.Client
	gate       *gate.Gate
	store      state.Store
	dispatcher *dispatch.Dispatcher
	settings   Settings
	log        logx.Logger

	identity string
	st       state.State
	firstRun bool

	now func() time.Time
}

// New loads the tracker's durable state and builds the session. A missing
// (or corrupt) state record marks the session first-run: the coming cycle
// consumes the site's backlog silently instead of flooding the channels.
func New(
	adapter tracker.Adapter,
	client *http.Client,
	g *gate.Gate,
	store state.Store,
	dispatcher *dispatch.Dispatcher,
	settings Settings,
	log logx.Logger,
) (*Session, error) {
	identity := adapter.Identity()
	if identity == "" {
		return nil, fmt.Errorf("%w: adapter %s produced no identity", ErrCredential, adapter.Kind())
	}

	s := &Session{
		adapter:    adapter,
		client:     client,
		gate:       g,
		store:      store,
		dispatcher: dispatcher,
		settings:   settings,
		log:        log.With(logx.String("tracker", identity)),
		identity:   identity,
		now:        time.Now,
	}

	st, existed, err := store.Load(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrState, identity, err)
	}
	s.st = st
	if !existed {
		s.firstRun = true
		s.log.Warn("no existing state; first run will not notify to avoid spamming")
		// Persist the empty ledger right away so a crash during the first
		// cycle cannot replay the whole backlog as notifications later.
		if err := store.Save(identity, s.st); err != nil {
			s.log.Error("saving initial state failed", logx.Err(err))
		}
	}
	return s, nil
}

// Identity implements tracker.Session.
func (s *Session) Identity() string { return s.identity }

// State implements tracker.Session.
func (s *Session) State() *state.State { return &s.st }

// SaveState implements tracker.Session (adapter-initiated persistence of
// discovered URLs and tokens).
func (s *Session) SaveState() error {
	if err := s.store.Save(s.identity, s.st); err != nil {
		return fmt.Errorf("%w: %v", ErrState, err)
	}
	return nil
}

// APIToken implements tracker.Session.
func (s *Session) APIToken() string {
	return s.settings.APITokenFor(s.adapter.Kind())
}

// MarkAsRead implements tracker.Session.
func (s *Session) MarkAsRead() bool { return s.settings.MarkAsReadEnabled() }

// Log implements tracker.Session.
func (s *Session) Log() logx.Logger { return s.log }

// Interval is the effective scrape interval: whatever the adapter asks for,
// floored at the global minimum. Requesting less than the global minimum is
// not a thing.
func (s *Session) Interval() time.Duration {
	global := s.settings.ScrapeIntervalValue()
	if req := s.adapter.Interval(); req > global {
		return req
	}
	return global
}

// IsDue reports whether a full interval has elapsed since the last
// completed cycle.
func (s *Session) IsDue(now time.Time) bool {
	return now.Sub(s.st.LastRunTime()) >= s.Interval()
}

// FetchDue is the poller's entry point. When due it runs a cycle (errors
// contained and logged) and returns the full interval; otherwise it returns
// the remaining wait, never negative.
func (s *Session) FetchDue(ctx context.Context) time.Duration {
	now := s.now()
	if s.IsDue(now) {
		if err := s.RunCycle(ctx); err != nil {
			s.log.Error("cycle failed", logx.Err(err))
		}
		return s.Interval()
	}
	remaining := s.Interval() - now.Sub(s.st.LastRunTime())
	if remaining < 0 {
		remaining = 0
	}
	s.log.Debug("not due yet", logx.Duration("remaining", remaining))
	return remaining
}

// RunCycle fetches items, dispatches the unseen ones, and commits the
// ledger. Partial progress survives a failure: items acked before the error
// stay acked (at-least-once, never atomic-per-cycle).
func (s *Session) RunCycle(ctx context.Context) error {
	items, err := s.adapter.Fetch(ctx, s)
	if err != nil {
		metrics.CycleCompleted(s.identity, "error")
		return fmt.Errorf("fetch: %w", err)
	}

	delivered := 0
	for i := range items {
		it := items[i]
		if it.ID == "" || s.st.Seen(it.ID) {
			continue
		}
		if !s.firstRun {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.dispatcher.Dispatch(ctx, it, s.identity, s.adapter.BaseURL())
			delivered++
			s.dispatcher.Pause(ctx)
		}
		// Acked regardless of first-run so the backlog is consumed.
		s.st.Ack(it.ID)
		metrics.ItemDiscovered(s.identity, string(it.Kind))
	}

	s.st.Touch(s.now())
	wasFirst := s.firstRun
	s.firstRun = false

	if err := s.store.Save(s.identity, s.st); err != nil {
		metrics.CycleCompleted(s.identity, "state_error")
		return fmt.Errorf("%w: %v", ErrState, err)
	}

	metrics.CycleCompleted(s.identity, "ok")
	if delivered > 0 || wasFirst {
		s.log.Info("cycle complete",
			logx.Int("items", len(items)),
			logx.Int("delivered", delivered),
			logx.Bool("first_run", wasFirst))
	}
	return nil
}

// FetchPage implements tracker.Session: gate-paced GET with marker
// validation. All adapter traffic funnels through here.
func (s *Session) FetchPage(ctx context.Context, pageURL, kind, marker string, headers map[string]string) (string, error) {
	body, err := s.request(ctx, http.MethodGet, pageURL, kind, nil, headers)
	if err != nil {
		return "", err
	}
	if marker != "" && !strings.Contains(body, marker) {
		s.dumpFailedResponse(body)
		return "", fmt.Errorf("%w: marker %q not found in %s response; cookies likely expired or markup changed",
			ErrValidation, marker, kind)
	}
	return body, nil
}

// PostForm implements tracker.Session.
func (s *Session) PostForm(ctx context.Context, postURL string, form url.Values, kind string, headers map[string]string) (string, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	}
	return s.request(ctx, http.MethodPost, postURL, kind, strings.NewReader(form.Encode()), headers)
}

func (s *Session) request(ctx context.Context, method, reqURL, kind string, body io.Reader, headers map[string]string) (string, error) {
	waitStart := s.now()
	if err := s.gate.Acquire(ctx); err != nil {
		return "", fmt.Errorf("%w: gate: %v", ErrNetwork, err)
	}
	metrics.GateWaited(s.now().Sub(waitStart))

	reqCtx, cancel := context.WithTimeout(ctx, s.gate.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, reqURL, body)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	s.log.Debug("fetching", logx.String("kind", kind), logx.String("url", reqURL))

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNetwork, kind, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read %s body: %v", ErrNetwork, kind, err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: HTTP %d for %s", ErrNetwork, resp.StatusCode, kind)
	}
	return string(b), nil
}

func (s *Session) dumpFailedResponse(body string) {
	dir, enabled := s.settings.DumpTarget()
	if !enabled {
		return
	}
	path, err := logx.DumpResponse(dir, s.identity, body)
	if err != nil {
		s.log.Debug("response dump failed", logx.Err(err))
		return
	}
	if path != "" {
		s.log.Info("failed response dumped", logx.String("path", path))
	}
}
