// Package poller drives the infinite polling loop: discover cookie files,
// run every due session concurrently, sleep until the soonest next-due.
package poller

import (
	"context"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"ptnotify/internal/cookiejar"
	"ptnotify/internal/dispatch"
	"ptnotify/internal/gate"
	"ptnotify/internal/metrics"
	"ptnotify/internal/session"
	"ptnotify/internal/state"
	"ptnotify/internal/tracker"
	logx "ptnotify/pkg/logx"
)

// Settings extends the session's live-config surface with the poller's own
// knobs.
type Settings interface {
	session.Settings
	CookiesDirValue() string
	CheckIntervalValue() time.Duration
}

type Poller struct {
	registry   *tracker.Registry
	gate       *gate.Gate
	store      state.Store
	dispatcher *dispatch.Dispatcher
	settings   Settings
	log        logx.Logger
}

func New(
	registry *tracker.Registry,
	g *gate.Gate,
	store state.Store,
	dispatcher *dispatch.Dispatcher,
	settings Settings,
	log logx.Logger,
) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		registry:   registry,
		gate:       g,
		store:      store,
		dispatcher: dispatcher,
		settings:   settings,
		log:        log,
	}
}

// Run loops until ctx is cancelled. Discovery repeats every pass, so cookie
// files dropped into the directory are picked up without a restart. One
// session's failure never touches the others; nothing here is fatal.
func (p *Poller) Run(ctx context.Context) error {
	for {
		sessions := p.discover(ctx)
		metrics.SetSessions(len(sessions))

		var sleep time.Duration
		if len(sessions) == 0 {
			p.log.Warn("no tracker sessions discovered; waiting",
				logx.String("cookies_dir", p.settings.CookiesDirValue()))
			sleep = time.Minute
		} else {
			sleep = p.runAll(ctx, sessions)
		}

		p.log.Info("sleeping until next cycle", logx.Duration("sleep", sleep))
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// runAll runs every session concurrently and returns how long to sleep: the
// smallest positive next-due interval, or the global check interval when no
// session reports one.
func (p *Poller) runAll(ctx context.Context, sessions []*session.Session) time.Duration {
	durations := make([]time.Duration, len(sessions))

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *session.Session) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("session panicked",
						logx.String("tracker", s.Identity()),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			durations[i] = s.FetchDue(ctx)
		}(i, s)
	}
	wg.Wait()

	return nextSleep(durations, p.settings.CheckIntervalValue())
}

// nextSleep picks the minimum positive duration, clamped to at least one
// second so a "due now" result cannot busy-loop the process.
func nextSleep(durations []time.Duration, fallback time.Duration) time.Duration {
	best := time.Duration(0)
	for _, d := range durations {
		if d > 0 && (best == 0 || d < best) {
			best = d
		}
	}
	if best <= 0 {
		best = fallback
	}
	if best < time.Second {
		best = time.Second
	}
	return best
}

// discover walks the cookie directory layout: one subdirectory per adapter
// kind (upper-case preferred, exact spelling accepted), plus OTHER/ where
// the file stem names the adapter.
func (p *Poller) discover(ctx context.Context) []*session.Session {
	if ctx.Err() != nil {
		return nil
	}
	dir := p.settings.CookiesDirValue()
	var sessions []*session.Session

	for _, kind := range p.registry.Kinds() {
		factory, _ := p.registry.Lookup(kind)
		files := globCookies(filepath.Join(dir, strings.ToUpper(kind)))
		if len(files) == 0 {
			files = globCookies(filepath.Join(dir, kind))
		}
		for _, f := range files {
			if s := p.buildSession(factory, kind, f); s != nil {
				sessions = append(sessions, s)
			}
		}
	}

	for _, f := range globCookies(filepath.Join(dir, "OTHER")) {
		stem := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		factory, ok := p.registry.Lookup(stem)
		if !ok {
			p.log.Error("no adapter registered for cookie file",
				logx.String("file", filepath.Base(f)))
			continue
		}
		if s := p.buildSession(factory, stem, f); s != nil {
			sessions = append(sessions, s)
		}
	}

	return sessions
}

func (p *Poller) buildSession(factory tracker.Factory, kind, cookiePath string) *session.Session {
	jar, err := cookiejar.Load(cookiePath)
	if err != nil {
		// Degraded, not dead: the session runs with an empty jar and the
		// site's login check reports the rest.
		p.log.Error("cookie file unreadable; session will run unauthenticated",
			logx.String("kind", kind), logx.String("file", cookiePath), logx.Err(err))
		jar = &cookiejar.Jar{Path: cookiePath}
	}

	adapter, err := factory(jar)
	if err != nil {
		p.log.Error("adapter construction failed",
			logx.String("kind", kind), logx.String("file", cookiePath), logx.Err(err))
		return nil
	}

	client, err := jar.Client()
	if err != nil {
		p.log.Error("http client construction failed",
			logx.String("kind", kind), logx.Err(err))
		return nil
	}

	s, err := session.New(adapter, client, p.gate, p.store, p.dispatcher, p.settings, p.log)
	if err != nil {
		p.log.Error("session construction failed",
			logx.String("kind", kind), logx.String("file", cookiePath), logx.Err(err))
		return nil
	}
	return s
}

func globCookies(dir string) []string {
	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil
	}
	// Globs can match directories named *.txt; nobody does this on purpose
	// but discovery should not explode when they do.
	out := files[:0]
	for _, f := range files {
		if fi, err := os.Stat(f); err == nil && fi.Mode().IsRegular() {
			out = append(out, f)
		}
	}
	return out
}
