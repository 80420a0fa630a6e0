// Package app wires configuration, logging, storage, notification and the
// scheduler loop into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"bookmill/internal/config"
	"bookmill/internal/notify"
	"bookmill/internal/pipeline"
	"bookmill/internal/runtime/supervisor"
	"bookmill/internal/sched"
	"bookmill/internal/storage"
	logx "bookmill/pkg/logx"
)

const defaultInterval = 5 * time.Minute

type App struct {
	cfgm  *config.Manager
	logs  *logx.Service
	log   logx.Logger
	store storage.Store
	notif *notify.Service
	loop  *sched.Loop
	sup   *supervisor.Supervisor

	// boot holds the initial config; hot reloads only apply the reloadable
	// subset and warn about the rest.
	boot *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logCfg(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			_ = logs.Close()
			return nil, fmt.Errorf("timezone: %w", err)
		}
	}

	interval, err := config.ParseDurationField("interval", cfg.Interval)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	if interval <= 0 {
		interval = defaultInterval
	}

	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open event store: %w", err)
	}

	orchestrators, err := pipeline.Build(cfg, store, log.With(logx.String("comp", "pipeline")))
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	loop := sched.NewLoop(orchestrators, interval, loc, log.With(logx.String("comp", "loop")))

	var notif *notify.Service
	if n := cfg.Notify; n != nil {
		notif, err = notify.New(notify.Config{
			Enabled:    n.Enabled,
			Token:      n.Token,
			ChatID:     n.ChatID,
			RatePerSec: n.RatePerSec,
			QueueSize:  n.QueueSize,
		}, log.With(logx.String("comp", "notify")))
		if err != nil {
			_ = store.Close()
			_ = logs.Close()
			return nil, fmt.Errorf("notify: %w", err)
		}
	}

	a := &App{
		cfgm:  cfgm,
		logs:  logs,
		log:   log,
		store: store,
		notif: notif,
		loop:  loop,
		boot:  cfg,
	}
	loop.OnFailure(a.reportFailure)
	return a, nil
}

// Logger exposes the root logger for main.
func (a *App) Logger() logx.Logger { return a.log }

// Start launches the notifier, config watch and the scheduler loop. The
// loop's first cycle begins immediately. Everything stops when ctx is done.
func (a *App) Start(ctx context.Context) {
	a.sup = supervisor.New(ctx, a.log)

	a.notif.Start(a.sup.Context())

	a.sup.Go("config-watch", a.cfgm.Watch)

	updates := a.cfgm.Subscribe(1)
	a.sup.Go("config-apply", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg := <-updates:
				if cfg != nil {
					a.applyReload(cfg)
				}
			}
		}
	})

	a.sup.Go("scheduler-loop", a.loop.Run)
}

// Stop shuts everything down in dependency order. In-flight step work is
// not cancelled forcibly; the loop declines to start more and Stop waits
// for it within timeout.
func (a *App) Stop(timeout time.Duration) {
	if a.sup != nil {
		a.sup.Stop(timeout)
	}
	a.notif.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn("event store close failed", logx.Err(err))
	}
	a.log.Info("shutdown complete")
	_ = a.logs.Close()
}

// applyReload applies the hot-reloadable subset of a changed config:
// logging settings and the loop interval. Everything else requires a
// restart and only earns a warning.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logCfg(cfg.Logging))

	if interval, err := config.ParseDurationField("interval", cfg.Interval); err == nil {
		if interval <= 0 {
			interval = defaultInterval
		}
		a.loop.SetInterval(interval)
	}

	if cfg.Timezone != a.boot.Timezone {
		a.log.Warn("timezone change ignored; restart required")
	}
	if cfg.Storage != a.boot.Storage {
		a.log.Warn("storage change ignored; restart required")
	}
	if !reflect.DeepEqual(cfg.Subsystems, a.boot.Subsystems) {
		a.log.Warn("subsystem/step changes ignored; restart required")
	}
	if !reflect.DeepEqual(cfg.Notify, a.boot.Notify) {
		a.log.Warn("notify change ignored; restart required")
	}
}

func (a *App) reportFailure(subsystem string, res sched.StepResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "bookmill: %s/%s failed", subsystem, res.Step)
	if res.Err != nil {
		fmt.Fprintf(&b, "\nstore: %v", res.Err)
	}
	if res.Message != "" {
		fmt.Fprintf(&b, "\n%s", res.Message)
	}
	a.notif.Send(b.String())
}

func logCfg(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}
