// Package telegram delivers items through the Telegram bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tele "gopkg.in/telebot.v4"

	"ptnotify/internal/notify"
	"ptnotify/internal/tracker"
	logx "ptnotify/pkg/logx"
)

type Config struct {
	Token   string
	ChatID  int64
	TopicID int // forum topic thread; 0 when unused
}

type Sink struct {
	cfg Config
	bot *tele.Bot
	log logx.Logger
}

// New validates the token against the bot API once at startup (getMe), so a
// bad token is a config error rather than a silent delivery black hole.
func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return nil, errors.New("telegram: token and chat_id are required")
	}
	// Send-only: no poller is configured and Start() is never called.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{cfg: cfg, bot: b, log: log}, nil
}

func (s *Sink) Name() string { return "telegram" }

func (s *Sink) Send(ctx context.Context, item tracker.Item, trackerName, baseURL, itemURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = baseURL

	text := render(item, trackerName)

	markup := &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{
			{{Text: "Open notification", URL: itemURL}},
		},
	}
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		ReplyMarkup:           markup,
		DisableWebPagePreview: true,
		ThreadID:              s.cfg.TopicID,
	}

	if _, err := s.bot.Send(tele.ChatID(s.cfg.ChatID), text, opts); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// render formats one item as Telegram HTML. Everything site-provided is
// escaped; the body is flattened first since trackers ship arbitrary markup.
func render(item tracker.Item, trackerName string) string {
	esc := html.EscapeString
	icon := "🔔"
	if item.Kind == tracker.KindMessage {
		icon = "📩"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", esc(trackerName))
	fmt.Fprintf(&b, "<b>%s New %s</b>\n\n", icon, item.Kind.Label())

	if item.IsStaff {
		b.WriteString("⚠️ <b>STAFF MESSAGE</b> ⚠️\n\n")
	}
	if item.Sender != "" {
		fmt.Fprintf(&b, "👤 %s\n\n", esc(item.Sender))
	}
	if item.Title != "" {
		fmt.Fprintf(&b, "<b>Title:</b> %s\n\n", esc(item.Title))
	}
	if item.Subject != "" {
		fmt.Fprintf(&b, "<b>Subject:</b> %s\n\n", esc(item.Subject))
	}
	if item.Body != "" {
		body := notify.Truncate(notify.StripMarkup(item.Body), 2500)
		fmt.Fprintf(&b, "<b>Body:</b> %s\n\n", esc(body))
	}
	b.WriteString(esc(item.Date))

	// Telegram rejects messages over 4096 chars.
	return notify.Truncate(b.String(), 4000)
}
