// Package gazelle polls Gazelle-style trackers through their AJAX API
// (Orpheus and friends). Requires a per-site API token in addition to the
// cookie file; without one the adapter skips quietly.
package gazelle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ptnotify/internal/cookiejar"
	"ptnotify/internal/notify"
	"ptnotify/internal/tracker"
	logx "ptnotify/pkg/logx"
)

type Adapter struct {
	kind    string
	baseURL string
}

// Factory returns a tracker.Factory for one Gazelle site. The site list is
// static: each deployment is its own registry entry ("Orpheus" → their API
// root), matching the one-adapter-per-site layout of the cookie directory.
func Factory(kind, baseURL string) tracker.Factory {
	return func(jar *cookiejar.Jar) (tracker.Adapter, error) {
		_ = jar // identity is fixed per site; cookies ride in the client
		return &Adapter{kind: kind, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
	}
}

func (a *Adapter) Kind() string            { return a.kind }
func (a *Adapter) Identity() string        { return a.kind }
func (a *Adapter) BaseURL() string         { return a.baseURL }
func (a *Adapter) Interval() time.Duration { return 0 }

type inboxResponse struct {
	Status   string `json:"status"`
	Response struct {
		Messages []inboxMessage `json:"messages"`
	} `json:"response"`
}

type inboxMessage struct {
	ConvID   json.Number `json:"convId"`
	Username string      `json:"username"`
	Subject  string      `json:"subject"`
	Date     string      `json:"date"`
	Body     string      `json:"body"`
}

func (a *Adapter) Fetch(ctx context.Context, s tracker.Session) ([]tracker.Item, error) {
	token := s.APIToken()
	if token == "" {
		s.Log().Warn("no api token configured; skipping")
		return nil, nil
	}
	headers := map[string]string{
		"Accept":        "application/json",
		"Authorization": "token " + token,
	}

	raw, err := s.FetchPage(ctx, a.baseURL+"/ajax.php?action=inbox", "inbox", "", headers)
	if err != nil {
		return nil, err
	}

	var inbox inboxResponse
	if err := json.Unmarshal([]byte(raw), &inbox); err != nil {
		return nil, fmt.Errorf("gazelle: decode inbox: %w", err)
	}
	if inbox.Status != "success" {
		return nil, fmt.Errorf("gazelle: inbox status %q", inbox.Status)
	}

	var items []tracker.Item
	for _, msg := range inbox.Response.Messages {
		convID := msg.ConvID.String()
		if convID == "" || convID == "0" {
			continue
		}
		// Conversation bodies cost a gated request each; only unseen
		// conversations are worth it.
		body := ""
		if !s.State().Seen(convID) {
			body = a.fetchConversationBody(ctx, s, headers, convID)
		}

		sender := msg.Username
		if sender == "" {
			sender = "System"
		}
		subject := msg.Subject
		if subject == "" {
			subject = "No Subject"
		}

		items = append(items, tracker.Item{
			Kind:    tracker.KindMessage,
			ID:      convID,
			Sender:  sender,
			Subject: subject,
			Body:    notify.StripMarkup(body),
			Date:    msg.Date,
			URL:     a.baseURL + "/inbox.php?action=viewconv&id=" + convID,
		})
	}
	return items, nil
}

func (a *Adapter) fetchConversationBody(ctx context.Context, s tracker.Session, headers map[string]string, convID string) string {
	raw, err := s.FetchPage(ctx, a.baseURL+"/ajax.php?action=inbox&type=viewconv&id="+convID,
		"conversation "+convID, "", headers)
	if err != nil {
		s.Log().Warn("conversation fetch failed", logx.String("conv", convID), logx.Err(err))
		return ""
	}

	var conv inboxResponse
	if err := json.Unmarshal([]byte(raw), &conv); err != nil || conv.Status != "success" {
		return ""
	}
	msgs := conv.Response.Messages
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Body
}
