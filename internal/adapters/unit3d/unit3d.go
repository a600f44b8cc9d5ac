// Package unit3d scrapes UNIT3D-based trackers. One adapter covers the whole
// fork family: the site root is discovered from the cookie file's domain and
// the per-site notification/inbox URLs are discovered from the landing page
// and cached in the tracker's state.
package unit3d

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ptnotify/internal/cookiejar"
	"ptnotify/internal/tracker"
	logx "ptnotify/pkg/logx"
)

// loginMarker appears on every authenticated UNIT3D page; its absence means
// expired cookies or a heavily modified fork.
const loginMarker = "general-settings"

// State keys for discovered values.
const (
	keyNotificationsURL = "notifications_url"
	keyMessagesURL      = "messages_url"
	keyCSRFToken        = "csrf_token"
)

var pageHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.8",
	"Connection":      "keep-alive",
}

type Adapter struct {
	domain   string
	identity string
	baseURL  string
}

// New builds a UNIT3D adapter from one exported cookie file. The identity
// comes from the first dotted domain in the file.
func New(jar *cookiejar.Jar) (tracker.Adapter, error) {
	domain := jar.Domain()
	if domain == "" {
		return nil, fmt.Errorf("unit3d: no domain found in cookie file %s", jar.Path)
	}
	return &Adapter{
		domain:   domain,
		identity: tracker.DeriveName(domain),
		baseURL:  "https://" + domain,
	}, nil
}

func (a *Adapter) Kind() string            { return "UNIT3D" }
func (a *Adapter) Identity() string        { return a.identity }
func (a *Adapter) BaseURL() string         { return a.baseURL }
func (a *Adapter) Interval() time.Duration { return 0 }

func (a *Adapter) Fetch(ctx context.Context, s tracker.Session) ([]tracker.Item, error) {
	notifURL, msgURL, csrf, err := a.discover(ctx, s)
	if err != nil {
		return nil, err
	}

	var items []tracker.Item

	if notifURL != "" {
		notifs, err := a.fetchNotifications(ctx, s, notifURL)
		if err != nil {
			return nil, err
		}
		items = append(items, notifs...)
	}
	if msgURL != "" {
		msgs, err := a.fetchMessages(ctx, s, msgURL)
		if err != nil {
			return nil, err
		}
		items = append(items, msgs...)
	}

	// Bodies only for unseen messages; page fetches are expensive under the
	// shared gate.
	for i := range items {
		if items[i].Kind != tracker.KindMessage || s.State().Seen(items[i].ID) {
			continue
		}
		items[i].Body = a.fetchBody(ctx, s, items[i].URL)
	}

	if s.MarkAsRead() && csrf != "" {
		a.markNotificationsRead(ctx, s, items, notifURL, csrf)
	}

	return items, nil
}

// discover returns the per-site URLs and CSRF token, probing the landing
// page once and caching the result in the tracker's state.
func (a *Adapter) discover(ctx context.Context, s tracker.Session) (notifURL, msgURL, csrf string, err error) {
	st := s.State()
	notifURL = st.Get(keyNotificationsURL)
	msgURL = st.Get(keyMessagesURL)
	csrf = st.Get(keyCSRFToken)
	if notifURL != "" && msgURL != "" {
		return notifURL, msgURL, csrf, nil
	}

	body, err := s.FetchPage(ctx, a.baseURL, "landing page", loginMarker, pageHeaders)
	if err != nil {
		return "", "", "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", "", "", fmt.Errorf("unit3d: parse landing page: %w", err)
	}

	if v, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content"); ok {
		csrf = v
	}
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		switch {
		case notifURL == "" && strings.Contains(href, "notifications"):
			notifURL = a.absolute(href)
		case msgURL == "" && strings.Contains(href, "conversations"):
			msgURL = a.absolute(href)
		}
		return notifURL == "" || msgURL == ""
	})

	if notifURL == "" && msgURL == "" {
		return "", "", "", fmt.Errorf("unit3d: no notification or inbox links found on %s", a.baseURL)
	}

	st.Set(keyNotificationsURL, notifURL)
	st.Set(keyMessagesURL, msgURL)
	st.Set(keyCSRFToken, csrf)
	if err := s.SaveState(); err != nil {
		s.Log().Warn("persisting discovered urls failed", logx.Err(err))
	}
	return notifURL, msgURL, csrf, nil
}

func (a *Adapter) fetchNotifications(ctx context.Context, s tracker.Session, pageURL string) ([]tracker.Item, error) {
	body, err := s.FetchPage(ctx, pageURL, "notifications", loginMarker, pageHeaders)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unit3d: parse notifications: %w", err)
	}
	return ParseNotifications(doc), nil
}

// ParseNotifications extracts unread notification rows. The unread cell
// carries class notification--unread; the row's form action is both the
// canonical URL and the id source.
func ParseNotifications(doc *goquery.Document) []tracker.Item {
	var items []tracker.Item
	doc.Find("td.notification--unread").Each(func(_ int, cell *goquery.Selection) {
		row := cell.Closest("tr")
		if row.Length() == 0 {
			return
		}
		cols := row.Find("td")
		if cols.Length() < 4 {
			return
		}
		action, ok := cols.Eq(3).Find("form").Attr("action")
		if !ok || action == "" {
			return
		}
		items = append(items, tracker.Item{
			Kind:    tracker.KindNotification,
			ID:      "notif_" + lastPathSegment(action),
			Title:   squash(cols.Eq(0).Text()),
			Subject: squash(cols.Eq(1).Text()),
			Date:    squash(cols.Eq(2).Text()),
			URL:     action,
		})
	})
	return items
}

func (a *Adapter) fetchMessages(ctx context.Context, s tracker.Session, pageURL string) ([]tracker.Item, error) {
	body, err := s.FetchPage(ctx, pageURL, "inbox", loginMarker, pageHeaders)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unit3d: parse inbox: %w", err)
	}
	return ParseMessages(doc), nil
}

// ParseMessages extracts unread inbox rows (marked with a red envelope icon).
func ParseMessages(doc *goquery.Document) []tracker.Item {
	var items []tracker.Item
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if row.Find("i.text-red").Length() == 0 {
			return
		}
		cols := row.Find("td")
		if cols.Length() < 6 {
			return
		}
		link := cols.Eq(1).Find("a").First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}
		items = append(items, tracker.Item{
			Kind:    tracker.KindMessage,
			ID:      "msg_" + lastPathSegment(href),
			Sender:  squash(cols.Eq(0).Text()),
			Subject: squash(link.Text()),
			Date:    squash(cols.Eq(2).Text()),
			URL:     href,
		})
	})
	return items
}

// fetchBody pulls the last rendered message body from a conversation page.
// Failures degrade to an empty body, never a failed cycle.
func (a *Adapter) fetchBody(ctx context.Context, s tracker.Session, msgURL string) string {
	body, err := s.FetchPage(ctx, msgURL, "message body", "", pageHeaders)
	if err != nil {
		s.Log().Warn("message body fetch failed", logx.String("url", msgURL), logx.Err(err))
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	panels := doc.Find("div.panel__body.bbcode-rendered")
	if panels.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(panels.Last().Text())
}

// markNotificationsRead PATCHes each unseen notification's form endpoint.
// Messages are left alone: reading someone's mail for them is rude.
func (a *Adapter) markNotificationsRead(ctx context.Context, s tracker.Session, items []tracker.Item, referer, csrf string) {
	form := url.Values{"_token": {csrf}, "_method": {"PATCH"}}
	headers := map[string]string{"Referer": referer}
	for k, v := range pageHeaders {
		headers[k] = v
	}
	for _, it := range items {
		if it.Kind != tracker.KindNotification || s.State().Seen(it.ID) {
			continue
		}
		if _, err := s.PostForm(ctx, it.URL, form, "mark as read", headers); err != nil {
			s.Log().Warn("mark as read failed", logx.String("url", it.URL), logx.Err(err))
		}
	}
}

func (a *Adapter) absolute(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimSuffix(a.baseURL, "/") + "/" + strings.TrimPrefix(href, "/")
}

func lastPathSegment(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		return u[i+1:]
	}
	return u
}

// squash collapses runs of whitespace the way rendered HTML does.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
