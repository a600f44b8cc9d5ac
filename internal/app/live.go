package app

import (
	"time"

	"ptnotify/internal/config"
)

// liveConfig adapts the config manager to the settings interfaces the gate,
// dispatcher, sessions, and poller consume. Every call reads the committed
// config, so watched edits take effect at the next use without restarts.
type liveConfig struct {
	cfgm *config.Manager
}

func (l *liveConfig) get() *config.Config {
	if cfg := l.cfgm.Get(); cfg != nil {
		return cfg
	}
	return &config.Config{}
}

func (l *liveConfig) RequestDelayValue() time.Duration   { return l.get().RequestDelayValue() }
func (l *liveConfig) RequestTimeoutValue() time.Duration { return l.get().RequestTimeoutValue() }
func (l *liveConfig) NotifySpacingValue() time.Duration  { return l.get().NotifySpacingValue() }
func (l *liveConfig) ScrapeIntervalValue() time.Duration { return l.get().ScrapeIntervalValue() }
func (l *liveConfig) CheckIntervalValue() time.Duration  { return l.get().CheckIntervalValue() }
func (l *liveConfig) MarkAsReadEnabled() bool            { return l.get().MarkAsReadEnabled() }
func (l *liveConfig) APITokenFor(kind string) string     { return l.get().APITokenFor(kind) }
func (l *liveConfig) CookiesDirValue() string            { return l.get().CookiesDirValue() }
func (l *liveConfig) DumpTarget() (string, bool)         { return l.get().DumpTarget() }
