package config

import (
	"errors"
	"strings"
	"time"
)

// Config is the root configuration. YAML and JSON are both accepted; YAML is
// coerced to JSON before the strict decode (see yaml.go).
//
// All durations are Go duration strings (e.g. "5s", "30m", "1h").
type Config struct {
	// CheckInterval is how long the poll loop sleeps when no session reports
	// a sooner next-due time. Floored at 15m: polling private trackers more
	// aggressively is a good way to lose the account the cookies belong to.
	CheckInterval string `json:"check_interval,omitempty"`

	// ScrapeInterval is the global minimum interval between two cycles of
	// the same tracker. Individual adapters may request a longer interval,
	// never a shorter one.
	ScrapeInterval string `json:"scrape_interval,omitempty"`

	// RequestDelay is the minimum spacing between any two outbound tracker
	// requests, across all sessions. Re-read on every request so edits to a
	// watched config file take effect without a restart.
	RequestDelay string `json:"request_delay,omitempty"`

	// RequestTimeout bounds a single tracker HTTP request.
	RequestTimeout string `json:"request_timeout,omitempty"`

	// NotifySpacing is the pause between two notified items (webhook rate
	// limits), not between the sinks of one item.
	NotifySpacing string `json:"notify_spacing,omitempty"`

	// MarkAsRead asks adapters that support it to mark delivered items as
	// read on the site.
	MarkAsRead bool `json:"mark_as_read,omitempty"`

	// CookiesDir holds one subdirectory per adapter kind with exported
	// Netscape cookie files, plus an optional OTHER/ directory where the
	// file stem names the adapter.
	CookiesDir string `json:"cookies_dir,omitempty"`

	// DumpFailedResponses writes response bodies that fail marker validation
	// to DumpDir for diagnosis.
	DumpFailedResponses bool   `json:"dump_failed_responses,omitempty"`
	DumpDir             string `json:"dump_dir,omitempty"`

	State       StateConfig       `json:"state,omitempty"`
	Logging     LoggingConfig     `json:"logging"`
	Telegram    TelegramConfig    `json:"telegram,omitempty"`
	Discord     DiscordConfig     `json:"discord,omitempty"`
	Metrics     MetricsConfig     `json:"metrics,omitempty"`
	UpdateCheck UpdateCheckConfig `json:"update_check,omitempty"`

	// APITokens maps an adapter kind to its API token (e.g. "Orpheus").
	// Cookie files are still required even for token-backed adapters.
	APITokens map[string]string `json:"api_tokens,omitempty"`
}

// StateConfig controls the dedup state backend.
//
// Driver values:
//   - "file" (default): one JSON file per tracker under Dir
//   - "sqlite": single database file at Path (requires the sqlite build tag)
type StateConfig struct {
	Driver      string `json:"driver,omitempty"`
	Dir         string `json:"dir,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type TelegramConfig struct {
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
	TopicID int    `json:"topic_id,omitempty"`
}

func (c TelegramConfig) Configured() bool {
	return strings.TrimSpace(c.Token) != "" && c.ChatID != 0
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"`
}

func (c DiscordConfig) Configured() bool {
	return strings.TrimSpace(c.WebhookURL) != ""
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9309"
}

// UpdateCheckConfig controls the periodic new-release probe.
type UpdateCheckConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron expression, default "0 8 * * *"
	Repo     string `json:"repo,omitempty"`     // owner/name on GitHub
}

// Defaults mirroring the knobs trackers are known to tolerate.
const (
	DefaultCheckInterval  = 30 * time.Minute
	MinCheckInterval      = 15 * time.Minute
	DefaultScrapeInterval = 30 * time.Minute
	DefaultRequestDelay   = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultNotifySpacing  = 3 * time.Second
)

// CheckIntervalValue returns the poll-loop sleep fallback, floored at
// MinCheckInterval. Invalid values fall back to the default.
func (c *Config) CheckIntervalValue() time.Duration {
	d, err := ParseDurationOrDefault("check_interval", c.CheckInterval, DefaultCheckInterval)
	if err != nil {
		d = DefaultCheckInterval
	}
	if d < MinCheckInterval {
		return MinCheckInterval
	}
	return d
}

func (c *Config) ScrapeIntervalValue() time.Duration {
	d, err := ParseDurationOrDefault("scrape_interval", c.ScrapeInterval, DefaultScrapeInterval)
	if err != nil {
		return DefaultScrapeInterval
	}
	return d
}

func (c *Config) RequestDelayValue() time.Duration {
	d, err := ParseDurationOrDefault("request_delay", c.RequestDelay, DefaultRequestDelay)
	if err != nil {
		return DefaultRequestDelay
	}
	return d
}

func (c *Config) RequestTimeoutValue() time.Duration {
	d, err := ParseDurationOrDefault("request_timeout", c.RequestTimeout, DefaultRequestTimeout)
	if err != nil {
		return DefaultRequestTimeout
	}
	return d
}

func (c *Config) NotifySpacingValue() time.Duration {
	d, err := ParseDurationOrDefault("notify_spacing", c.NotifySpacing, DefaultNotifySpacing)
	if err != nil {
		return DefaultNotifySpacing
	}
	return d
}

func (c *Config) CookiesDirValue() string {
	if strings.TrimSpace(c.CookiesDir) == "" {
		return "./cookies"
	}
	return c.CookiesDir
}

func (c *Config) StateDirValue() string {
	if strings.TrimSpace(c.State.Dir) == "" {
		return "./state"
	}
	return c.State.Dir
}

func (c *Config) MarkAsReadEnabled() bool { return c.MarkAsRead }

// APITokenFor looks up an adapter's API token, case-insensitively: token
// keys in hand-written YAML rarely match the registered spelling exactly.
func (c *Config) APITokenFor(kind string) string {
	if tok, ok := c.APITokens[kind]; ok {
		return tok
	}
	for k, tok := range c.APITokens {
		if strings.EqualFold(k, kind) {
			return tok
		}
	}
	return ""
}

// DumpTarget returns the failed-response dump directory and whether dumping
// is enabled.
func (c *Config) DumpTarget() (string, bool) {
	if !c.DumpFailedResponses {
		return "", false
	}
	dir := strings.TrimSpace(c.DumpDir)
	if dir == "" {
		dir = "./dumps"
	}
	return dir, true
}

// Validate rejects configs the daemon cannot start with. Only startup-fatal
// problems belong here; per-field fallbacks handle the rest.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if !c.Telegram.Configured() && !c.Discord.Configured() {
		return errors.New("no notification channel configured: set telegram.token + telegram.chat_id or discord.webhook_url")
	}
	for _, f := range []struct{ path, raw string }{
		{"check_interval", c.CheckInterval},
		{"scrape_interval", c.ScrapeInterval},
		{"request_delay", c.RequestDelay},
		{"request_timeout", c.RequestTimeout},
		{"notify_spacing", c.NotifySpacing},
		{"state.busy_timeout", c.State.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}
