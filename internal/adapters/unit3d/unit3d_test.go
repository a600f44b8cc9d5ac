package unit3d

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"ptnotify/internal/cookiejar"
	"ptnotify/internal/tracker"
)

const notificationsPage = `
<html><body>
<table>
 <tr>
  <td class="notification--unread">New Torrent Uploaded</td>
  <td>Your requested torrent is live</td>
  <td>2026-08-20 10:00</td>
  <td><form action="https://example.org/notifications/981"><button>read</button></form></td>
 </tr>
 <tr>
  <td>Old notification (read)</td>
  <td>nothing here</td>
  <td>2026-08-01 10:00</td>
  <td><form action="https://example.org/notifications/900"><button>read</button></form></td>
 </tr>
</table>
</body></html>`

const inboxPage = `
<html><body>
<table>
 <tr>
  <td>staffer</td>
  <td><a href="https://example.org/conversations/55">Please seed back</a> <i class="text-red fas fa-envelope"></i></td>
  <td>2026-08-21 09:30</td>
  <td>x</td><td>y</td><td>z</td>
 </tr>
 <tr>
  <td>friend</td>
  <td><a href="https://example.org/conversations/54">old thread</a></td>
  <td>2026-08-15 09:30</td>
  <td>x</td><td>y</td><td>z</td>
 </tr>
</table>
</body></html>`

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return d
}

func TestParseNotifications(t *testing.T) {
	items := ParseNotifications(doc(t, notificationsPage))
	if len(items) != 1 {
		t.Fatalf("expected 1 unread notification, got %d", len(items))
	}
	it := items[0]
	if it.Kind != tracker.KindNotification {
		t.Fatalf("kind = %q", it.Kind)
	}
	if it.ID != "notif_981" {
		t.Fatalf("id = %q", it.ID)
	}
	if it.Title != "New Torrent Uploaded" {
		t.Fatalf("title = %q", it.Title)
	}
	if it.Subject != "Your requested torrent is live" {
		t.Fatalf("subject = %q", it.Subject)
	}
	if it.URL != "https://example.org/notifications/981" {
		t.Fatalf("url = %q", it.URL)
	}
}

func TestParseMessages(t *testing.T) {
	items := ParseMessages(doc(t, inboxPage))
	if len(items) != 1 {
		t.Fatalf("expected 1 unread message, got %d", len(items))
	}
	it := items[0]
	if it.Kind != tracker.KindMessage {
		t.Fatalf("kind = %q", it.Kind)
	}
	if it.ID != "msg_55" {
		t.Fatalf("id = %q", it.ID)
	}
	if it.Sender != "staffer" {
		t.Fatalf("sender = %q", it.Sender)
	}
	if it.Subject != "Please seed back" {
		t.Fatalf("subject = %q", it.Subject)
	}
}

func TestParseEmptyPages(t *testing.T) {
	if items := ParseNotifications(doc(t, "<html><body></body></html>")); len(items) != 0 {
		t.Fatalf("empty page produced notifications: %v", items)
	}
	if items := ParseMessages(doc(t, "<html><body></body></html>")); len(items) != 0 {
		t.Fatalf("empty page produced messages: %v", items)
	}
}

func TestNewDerivesIdentityFromCookieDomain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blutopia.cc.txt")
	row := ".blutopia.cc\tTRUE\t/\tTRUE\t0\tsession\tabc\n"
	if err := os.WriteFile(path, []byte(row), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	jar, err := cookiejar.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	a, err := New(jar)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Identity() != "Blutopia" {
		t.Fatalf("identity = %q", a.Identity())
	}
	if a.BaseURL() != "https://blutopia.cc" {
		t.Fatalf("base url = %q", a.BaseURL())
	}
	if a.Kind() != "UNIT3D" {
		t.Fatalf("kind = %q", a.Kind())
	}
}

func TestNewRejectsEmptyJar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("# no cookies\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	jar, err := cookiejar.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := New(jar); err == nil {
		t.Fatalf("expected error for jar without a domain")
	}
}

func TestAbsolute(t *testing.T) {
	a := &Adapter{baseURL: "https://example.org"}
	if got := a.absolute("/notifications"); got != "https://example.org/notifications" {
		t.Fatalf("relative href = %q", got)
	}
	if got := a.absolute("https://other.org/x"); got != "https://other.org/x" {
		t.Fatalf("absolute href rewritten: %q", got)
	}
}
