// Package discord delivers items through a Discord webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ptnotify/internal/notify"
	"ptnotify/internal/tracker"
	logx "ptnotify/pkg/logx"
)

const (
	colorNotification = 0xFE0203
	colorMessage      = 0x5865F2
)

type Sink struct {
	webhookURL string
	client     *http.Client
	log        logx.Logger
}

func New(webhookURL string, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return nil, errors.New("discord: webhook_url is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}, nil
}

func (s *Sink) Name() string { return "discord" }

type payload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Footer      embedFooter `json:"footer"`
	Author      embedAuthor `json:"author"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

func (s *Sink) Send(ctx context.Context, item tracker.Item, trackerName, baseURL, itemURL string) error {
	body, err := json.Marshal(buildPayload(item, trackerName, baseURL, itemURL))
	if err != nil {
		return fmt.Errorf("discord encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord send: HTTP %d", resp.StatusCode)
	}
	return nil
}

// buildPayload renders one item as a webhook embed.
func buildPayload(item tracker.Item, trackerName, baseURL, itemURL string) payload {
	icon := "🔔"
	color := colorNotification
	if item.Kind == tracker.KindMessage {
		icon = "📩"
		color = colorMessage
	}

	var d strings.Builder
	fmt.Fprintf(&d, "%s **New %s**\n\n\n", icon, item.Kind.Label())
	if item.IsStaff {
		d.WriteString("⚠️ **STAFF MESSAGE** ⚠️\n\n")
	}
	if item.Sender != "" {
		fmt.Fprintf(&d, "👤  %s\n\n", item.Sender)
	}
	if item.Title != "" {
		fmt.Fprintf(&d, "**Title:** %s\n\n", item.Title)
	}
	if item.Subject != "" {
		fmt.Fprintf(&d, "**Subject:** %s\n\n", item.Subject)
	}
	if item.Body != "" {
		fmt.Fprintf(&d, "**Body:** %s\n\n", notify.Truncate(notify.StripMarkup(item.Body), 2500))
	}
	fmt.Fprintf(&d, "[Open Notification](%s)", itemURL)

	iconURL := item.Favicon
	if iconURL == "" && baseURL != "" {
		iconURL = strings.TrimSuffix(baseURL, "/") + "/favicon.ico"
	}

	return payload{Embeds: []embed{{
		// Discord caps embed descriptions at 4096 chars.
		Description: notify.Truncate(d.String(), 4000),
		Color:       color,
		Footer:      embedFooter{Text: item.Date},
		Author:      embedAuthor{Name: trackerName, IconURL: iconURL},
	}}}
}
