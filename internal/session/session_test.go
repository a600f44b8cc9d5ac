package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ptnotify/internal/dispatch"
	"ptnotify/internal/gate"
	"ptnotify/internal/state"
	"ptnotify/internal/tracker"
	logx "ptnotify/pkg/logx"
)

// ---- fakes ----

type fakeAdapter struct {
	identity string
	interval time.Duration
	items    []tracker.Item
	err      error
	fetches  int
}

func (a *fakeAdapter) Kind() string            { return "Fake" }
func (a *fakeAdapter) Identity() string        { return a.identity }
func (a *fakeAdapter) BaseURL() string         { return "https://fake.example" }
func (a *fakeAdapter) Interval() time.Duration { return a.interval }

func (a *fakeAdapter) Fetch(_ context.Context, _ tracker.Session) ([]tracker.Item, error) {
	a.fetches++
	return a.items, a.err
}

type memStore struct {
	m       map[string]state.State
	saveErr error
	saves   int
}

func newMemStore() *memStore { return &memStore{m: map[string]state.State{}} }

func (s *memStore) Load(name string) (state.State, bool, error) {
	st, ok := s.m[name]
	if !ok {
		return state.Empty(), false, nil
	}
	return st, true, nil
}

func (s *memStore) Save(name string, st state.State) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	cp := st
	cp.ProcessedIDs = append([]string(nil), st.ProcessedIDs...)
	s.m[name] = cp
	return nil
}

func (s *memStore) Close() error { return nil }

type stubSettings struct {
	scrapeInterval time.Duration
	requestDelay   time.Duration
	markAsRead     bool
	tokens         map[string]string
}

func (s *stubSettings) ScrapeIntervalValue() time.Duration { return s.scrapeInterval }
func (s *stubSettings) RequestDelayValue() time.Duration   { return s.requestDelay }
func (s *stubSettings) RequestTimeoutValue() time.Duration { return 5 * time.Second }
func (s *stubSettings) MarkAsReadEnabled() bool            { return s.markAsRead }
func (s *stubSettings) APITokenFor(kind string) string     { return s.tokens[kind] }
func (s *stubSettings) DumpTarget() (string, bool)         { return "", false }
func (s *stubSettings) NotifySpacingValue() time.Duration  { return 0 }

type recordingSink struct {
	sent []string
}

func (s *recordingSink) Name() string { return "record" }

func (s *recordingSink) Send(_ context.Context, item tracker.Item, _, _, _ string) error {
	s.sent = append(s.sent, item.ID)
	return nil
}

type harness struct {
	adapter *fakeAdapter
	store   *memStore
	sink    *recordingSink
	session *Session
}

func newHarness(t *testing.T, adapter *fakeAdapter, store *memStore, settings *stubSettings) *harness {
	t.Helper()
	if settings == nil {
		settings = &stubSettings{scrapeInterval: 30 * time.Minute}
	}
	sink := &recordingSink{}
	d := dispatch.New([]dispatch.Sink{sink}, settings, logx.Nop())
	s, err := New(adapter, http.DefaultClient, gate.New(settings), store, d, settings, logx.Nop())
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return &harness{adapter: adapter, store: store, sink: sink, session: s}
}

// ---- tests ----

func TestFirstRunSuppressesDelivery(t *testing.T) {
	adapter := &fakeAdapter{
		identity: "Example",
		items: []tracker.Item{
			{Kind: tracker.KindNotification, ID: "n1"},
			{Kind: tracker.KindMessage, ID: "m1"},
		},
	}
	store := newMemStore()
	h := newHarness(t, adapter, store, nil)

	// New() persists the empty ledger immediately on first run.
	if store.saves != 1 {
		t.Fatalf("expected initial save, got %d", store.saves)
	}

	if err := h.session.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(h.sink.sent) != 0 {
		t.Fatalf("first run must not notify, sent %v", h.sink.sent)
	}

	st := store.m["Example"]
	if !st.Seen("n1") || !st.Seen("m1") {
		t.Fatalf("first run must ack the backlog, got %v", st.ProcessedIDs)
	}
	if st.LastRun <= 0 {
		t.Fatalf("cycle completion must set last_run")
	}
}

func TestSecondCycleDeliversOnlyUnseen(t *testing.T) {
	adapter := &fakeAdapter{
		identity: "Example",
		items:    []tracker.Item{{Kind: tracker.KindNotification, ID: "n1"}},
	}
	store := newMemStore()
	h := newHarness(t, adapter, store, nil)

	if err := h.session.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	adapter.items = []tracker.Item{
		{Kind: tracker.KindNotification, ID: "n1"}, // still on the site
		{Kind: tracker.KindNotification, ID: "n2"},
		{Kind: tracker.KindMessage, ID: "m1"},
		{ID: ""}, // adapters should not produce these, but be safe
	}
	if err := h.session.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if len(h.sink.sent) != 2 || h.sink.sent[0] != "n2" || h.sink.sent[1] != "m1" {
		t.Fatalf("expected [n2 m1], got %v", h.sink.sent)
	}
}

func TestExistingStateDoesNotSuppress(t *testing.T) {
	store := newMemStore()
	prev := state.Empty()
	prev.Ack("old")
	prev.Touch(time.Now().Add(-time.Hour))
	store.m["Example"] = prev

	adapter := &fakeAdapter{
		identity: "Example",
		items:    []tracker.Item{{Kind: tracker.KindNotification, ID: "fresh"}},
	}
	h := newHarness(t, adapter, store, nil)

	if err := h.session.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(h.sink.sent) != 1 || h.sink.sent[0] != "fresh" {
		t.Fatalf("expected [fresh], got %v", h.sink.sent)
	}
}

func TestCycleCommitsAndBecomesNotDue(t *testing.T) {
	store := newMemStore()
	prev := state.Empty()
	prev.Touch(time.Now().Add(-time.Hour))
	store.m["Example"] = prev

	adapter := &fakeAdapter{
		identity: "Example",
		items:    []tracker.Item{{Kind: tracker.KindNotification, ID: "42"}},
	}
	h := newHarness(t, adapter, store, nil)

	if !h.session.IsDue(time.Now()) {
		t.Fatalf("an hour past a 30m interval must be due")
	}
	if err := h.session.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(h.sink.sent) != 1 || h.sink.sent[0] != "42" {
		t.Fatalf("expected [42], got %v", h.sink.sent)
	}
	if got := store.m["Example"]; !got.Seen("42") {
		t.Fatalf("id 42 not committed")
	}
	if h.session.IsDue(time.Now()) {
		t.Fatalf("session should not be due immediately after a cycle")
	}

	// Same adapter output again: nothing new to deliver.
	if err := h.session.RunCycle(context.Background()); err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if len(h.sink.sent) != 1 {
		t.Fatalf("seen item was re-delivered: %v", h.sink.sent)
	}
}

func TestEmptyFetchStillAdvancesLastRun(t *testing.T) {
	store := newMemStore()
	prev := state.Empty()
	prev.Ack("old")
	prev.Touch(time.Now().Add(-time.Hour))
	before := prev.LastRun
	store.m["Example"] = prev

	adapter := &fakeAdapter{identity: "Example"}
	h := newHarness(t, adapter, store, nil)

	if err := h.session.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	st := store.m["Example"]
	if st.LastRun <= before {
		t.Fatalf("last_run not advanced by an empty cycle")
	}
	if len(st.ProcessedIDs) != 1 || st.ProcessedIDs[0] != "old" {
		t.Fatalf("processed ids changed by an empty cycle: %v", st.ProcessedIDs)
	}
}

func TestRunCycleFetchError(t *testing.T) {
	store := newMemStore()
	store.m["Example"] = state.Empty()
	adapter := &fakeAdapter{identity: "Example", err: errors.New("site down")}
	h := newHarness(t, adapter, store, nil)

	if err := h.session.RunCycle(context.Background()); err == nil {
		t.Fatalf("expected fetch error to surface")
	}
	if st := store.m["Example"]; st.LastRun != 0 {
		t.Fatalf("failed cycle must not advance last_run")
	}
}

func TestRunCycleSaveError(t *testing.T) {
	store := newMemStore()
	store.m["Example"] = state.Empty()
	store.saveErr = errors.New("disk full")
	adapter := &fakeAdapter{identity: "Example"}
	h := newHarness(t, adapter, store, nil)

	err := h.session.RunCycle(context.Background())
	if !errors.Is(err, ErrState) {
		t.Fatalf("expected ErrState, got %v", err)
	}
}

func TestNewRejectsEmptyIdentity(t *testing.T) {
	settings := &stubSettings{scrapeInterval: 30 * time.Minute}
	d := dispatch.New(nil, settings, logx.Nop())
	_, err := New(&fakeAdapter{identity: ""}, http.DefaultClient, gate.New(settings), newMemStore(), d, settings, logx.Nop())
	if !errors.Is(err, ErrCredential) {
		t.Fatalf("expected ErrCredential, got %v", err)
	}
}

func TestIntervalHonorsAdapterMinimum(t *testing.T) {
	settings := &stubSettings{scrapeInterval: 30 * time.Minute}

	h := newHarness(t, &fakeAdapter{identity: "A", interval: time.Hour}, newMemStore(), settings)
	if got := h.session.Interval(); got != time.Hour {
		t.Fatalf("adapter asking for more should win: %v", got)
	}

	h = newHarness(t, &fakeAdapter{identity: "B", interval: time.Minute}, newMemStore(), settings)
	if got := h.session.Interval(); got != 30*time.Minute {
		t.Fatalf("adapter asking for less is floored at global: %v", got)
	}
}

func TestIsDue(t *testing.T) {
	store := newMemStore()
	prev := state.Empty()
	prev.Touch(time.Now().Add(-10 * time.Minute))
	store.m["Example"] = prev

	h := newHarness(t, &fakeAdapter{identity: "Example"}, store, nil)
	if h.session.IsDue(time.Now()) {
		t.Fatalf("10m since last run with a 30m interval is not due")
	}
	if !h.session.IsDue(time.Now().Add(25 * time.Minute)) {
		t.Fatalf("35m since last run with a 30m interval is due")
	}
}

func TestFetchDueRunsWhenDue(t *testing.T) {
	adapter := &fakeAdapter{identity: "Example"}
	h := newHarness(t, adapter, newMemStore(), nil)

	// Fresh state: never run, so it is due right away.
	d := h.session.FetchDue(context.Background())
	if adapter.fetches != 1 {
		t.Fatalf("due session should have fetched")
	}
	if d != 30*time.Minute {
		t.Fatalf("after a run the next-due is the full interval, got %v", d)
	}
}

func TestFetchDueReturnsRemaining(t *testing.T) {
	store := newMemStore()
	prev := state.Empty()
	prev.Touch(time.Now().Add(-10 * time.Minute))
	store.m["Example"] = prev

	adapter := &fakeAdapter{identity: "Example"}
	h := newHarness(t, adapter, store, nil)

	d := h.session.FetchDue(context.Background())
	if adapter.fetches != 0 {
		t.Fatalf("not-due session must not fetch")
	}
	if d < 19*time.Minute || d > 21*time.Minute {
		t.Fatalf("expected ~20m remaining, got %v", d)
	}
}

func TestFetchPageMarkerValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`<html><a href="/general-settings">settings</a></html>`))
		case "/login":
			_, _ = w.Write([]byte(`<html>please log in</html>`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	h := newHarness(t, &fakeAdapter{identity: "Example"}, newMemStore(), nil)
	ctx := context.Background()

	if _, err := h.session.FetchPage(ctx, srv.URL+"/ok", "page", "general-settings", nil); err != nil {
		t.Fatalf("valid page: %v", err)
	}

	_, err := h.session.FetchPage(ctx, srv.URL+"/login", "page", "general-settings", nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing marker, got %v", err)
	}

	_, err = h.session.FetchPage(ctx, srv.URL+"/boom", "page", "", nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork for HTTP 500, got %v", err)
	}
}

func TestRequestSendsUserAgentAndHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	h := newHarness(t, &fakeAdapter{identity: "Example"}, newMemStore(), nil)
	if _, err := h.session.FetchPage(context.Background(), srv.URL, "page", "", map[string]string{"Accept": "application/json"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotUA == "" || gotAccept != "application/json" {
		t.Fatalf("headers not sent: ua=%q accept=%q", gotUA, gotAccept)
	}
}
