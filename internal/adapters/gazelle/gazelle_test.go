package gazelle

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"ptnotify/internal/cookiejar"
	"ptnotify/internal/state"
	"ptnotify/internal/tracker"
	logx "ptnotify/pkg/logx"
)

// fakeSession serves canned API responses keyed by URL substring.
type fakeSession struct {
	token     string
	responses map[string]string
	st        state.State
	requests  []string
}

func (f *fakeSession) Identity() string { return "Orpheus" }

func (f *fakeSession) FetchPage(_ context.Context, pageURL, _, _ string, _ map[string]string) (string, error) {
	f.requests = append(f.requests, pageURL)
	// Most specific key first: conversation URLs also contain "action=inbox".
	for _, key := range []string{"viewconv", "action=inbox"} {
		if body, ok := f.responses[key]; ok && strings.Contains(pageURL, key) {
			return body, nil
		}
	}
	return `{"status":"failure"}`, nil
}

func (f *fakeSession) PostForm(context.Context, string, url.Values, string, map[string]string) (string, error) {
	return "", nil
}

func (f *fakeSession) State() *state.State { return &f.st }
func (f *fakeSession) SaveState() error    { return nil }
func (f *fakeSession) APIToken() string    { return f.token }
func (f *fakeSession) MarkAsRead() bool    { return false }
func (f *fakeSession) Log() logx.Logger    { return logx.Nop() }

const inboxJSON = `{
  "status": "success",
  "response": {
    "messages": [
      {"convId": 42, "username": "staffer", "subject": "Ratio warning", "date": "2026-08-20 10:00:00"},
      {"convId": 0, "username": "ghost", "subject": "skipped"},
      {"convId": 7, "username": "", "subject": "", "date": "2026-08-19 09:00:00"}
    ]
  }
}`

const convJSON = `{
  "status": "success",
  "response": {
    "messages": [
      {"convId": 42, "body": "first post"},
      {"convId": 42, "body": "<b>final</b> reply"}
    ]
  }
}`

func newAdapter(t *testing.T) tracker.Adapter {
	t.Helper()
	a, err := Factory("Orpheus", "https://orpheus.network/")(&cookiejar.Jar{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return a
}

func TestFetchParsesInbox(t *testing.T) {
	a := newAdapter(t)
	s := &fakeSession{
		token: "tok",
		responses: map[string]string{
			"viewconv":     convJSON,
			"action=inbox": inboxJSON,
		},
	}

	items, err := a.Fetch(context.Background(), s)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items (convId 0 skipped), got %d", len(items))
	}

	first := items[0]
	if first.ID != "42" || first.Sender != "staffer" || first.Subject != "Ratio warning" {
		t.Fatalf("first item wrong: %+v", first)
	}
	if first.Body != "final reply" {
		t.Fatalf("body should be the stripped last conversation message, got %q", first.Body)
	}
	if first.URL != "https://orpheus.network/inbox.php?action=viewconv&id=42" {
		t.Fatalf("url = %q", first.URL)
	}

	second := items[1]
	if second.Sender != "System" || second.Subject != "No Subject" {
		t.Fatalf("empty fields should get defaults: %+v", second)
	}
}

func TestFetchSkipsBodyForSeenConversations(t *testing.T) {
	a := newAdapter(t)
	s := &fakeSession{
		token:     "tok",
		responses: map[string]string{"action=inbox": inboxJSON},
	}
	s.st.Ack("42")
	s.st.Ack("7")

	if _, err := a.Fetch(context.Background(), s); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, u := range s.requests {
		if strings.Contains(u, "viewconv") {
			t.Fatalf("seen conversation body was fetched: %s", u)
		}
	}
}

func TestFetchWithoutTokenSkips(t *testing.T) {
	a := newAdapter(t)
	s := &fakeSession{}

	items, err := a.Fetch(context.Background(), s)
	if err != nil {
		t.Fatalf("missing token must not fail the cycle: %v", err)
	}
	if items != nil {
		t.Fatalf("missing token should yield no items")
	}
	if len(s.requests) != 0 {
		t.Fatalf("missing token should make no requests")
	}
}

func TestFetchBadStatus(t *testing.T) {
	a := newAdapter(t)
	s := &fakeSession{
		token:     "tok",
		responses: map[string]string{"action=inbox": `{"status":"failure"}`},
	}
	if _, err := a.Fetch(context.Background(), s); err == nil {
		t.Fatalf("expected error for non-success status")
	}
}

func TestBaseURLTrimmed(t *testing.T) {
	a := newAdapter(t)
	if a.BaseURL() != "https://orpheus.network" {
		t.Fatalf("trailing slash kept: %q", a.BaseURL())
	}
}
