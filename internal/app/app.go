// Package app wires the daemon together: config manager, log service, state
// store, request gate, sinks, adapter registry, poll loop, and the optional
// metrics and update-check services.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"ptnotify/internal/adapters/gazelle"
	"ptnotify/internal/adapters/unit3d"
	"ptnotify/internal/config"
	"ptnotify/internal/dispatch"
	"ptnotify/internal/gate"
	"ptnotify/internal/metrics"
	"ptnotify/internal/notify/discord"
	"ptnotify/internal/notify/telegram"
	"ptnotify/internal/poller"
	"ptnotify/internal/state"
	"ptnotify/internal/tracker"
	"ptnotify/internal/update"
	"ptnotify/internal/version"
	logx "ptnotify/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	store  state.Store
	poller *poller.Poller

	metricsEnabled bool
	metricsAddr    string
	updater        *update.Checker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads and validates the config, then constructs every component. All
// construction errors are fatal: a daemon that cannot notify anyone has no
// reason to run.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	// Everything below reads config through the manager at use time, so a
	// watched edit to pacing or tokens applies without a restart.
	live := &liveConfig{cfgm: cfgm}

	busyTimeout, err := config.ParseDurationField("state.busy_timeout", cfg.State.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := state.Open(state.Config{
		Driver:      cfg.State.Driver,
		Dir:         cfg.StateDirValue(),
		Path:        cfg.State.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "state")))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	sinks, err := buildSinks(cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	dispatcher := dispatch.New(sinks, live, log.With(logx.String("comp", "dispatch")))

	registry := tracker.NewRegistry()
	registry.Register("UNIT3D", unit3d.New)
	registry.Register("Orpheus", gazelle.Factory("Orpheus", "https://orpheus.network"))

	p := poller.New(registry, gate.New(live), store, dispatcher, live,
		log.With(logx.String("comp", "poller")))

	a := &App{
		cfgPath:        cfgPath,
		cfgm:           cfgm,
		log:            log,
		logs:           logSvc,
		store:          store,
		poller:         p,
		metricsEnabled: cfg.Metrics.Enabled,
		metricsAddr:    cfg.Metrics.Addr,
	}
	if cfg.UpdateCheck.Enabled {
		a.updater = update.New(cfg.UpdateCheck.Repo, cfg.UpdateCheck.Schedule,
			log.With(logx.String("comp", "update")))
	}
	return a, nil
}

// buildSinks instantiates the configured channels in fixed order: Telegram
// first, then Discord. At least one must be configured.
func buildSinks(cfg *config.Config, log logx.Logger) ([]dispatch.Sink, error) {
	var sinks []dispatch.Sink
	if cfg.Telegram.Configured() {
		tg, err := telegram.New(telegram.Config{
			Token:   cfg.Telegram.Token,
			ChatID:  cfg.Telegram.ChatID,
			TopicID: cfg.Telegram.TopicID,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	if cfg.Discord.Configured() {
		dc, err := discord.New(cfg.Discord.WebhookURL, log.With(logx.String("comp", "discord")))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dc)
	}
	if len(sinks) == 0 {
		return nil, errors.New("no notification channel configured")
	}
	return sinks, nil
}

// Start launches the poll loop and all background services. It returns
// immediately; the caller owns the lifetime via ctx and Stop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	metrics.Init()

	a.go0("config.watch", func() {
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	})

	sub := a.cfgm.Subscribe(4)
	a.go0("config.reload", func() {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
			}
		}
	})

	if a.metricsEnabled {
		a.go0("metrics", func() {
			if err := metrics.Serve(runCtx, a.metricsAddr, a.log.With(logx.String("comp", "metrics"))); err != nil {
				a.log.Error("metrics server failed", logx.Err(err))
			}
		})
	}

	if a.updater != nil {
		a.go0("update.check", func() {
			if err := a.updater.Run(runCtx); err != nil {
				a.log.Warn("update checker stopped", logx.Err(err))
			}
		})
	}

	a.go0("poller", func() {
		if err := a.poller.Run(runCtx); err != nil {
			a.log.Error("poll loop stopped", logx.Err(err))
		}
	})

	a.notifySystemd(runCtx)

	a.log.Info("started", logx.String("version", version.Version))
	return nil
}

// notifySystemd reports readiness and services the watchdog when running
// under a Type=notify unit. Outside systemd both calls are no-ops.
func (a *App) notifySystemd(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.go0("watchdog", func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

// Stop cancels all background work, waits for it to unwind, and releases the
// store and log sinks. Bounded by ctx; a stuck goroutine is logged, not
// waited on forever.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown deadline reached with goroutines still running")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("closing state store failed", logx.Err(err))
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) go0(name string, fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("background goroutine panicked",
					logx.String("name", name), logx.Any("panic", r))
			}
		}()
		fn()
	}()
}
