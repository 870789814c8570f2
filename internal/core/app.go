// Package core wires the services together and exposes the operation
// surface consumed by an external API layer.
package core

import (
	"context"
	"fmt"

	"wabot/internal/config"
	"wabot/internal/creds"
	"wabot/internal/eventbus"
	"wabot/internal/notifier"
	rtsup "wabot/internal/runtime/supervisor"
	"wabot/internal/session"
	"wabot/internal/status"
	"wabot/internal/storage"
	"wabot/internal/task"
	"wabot/internal/transport"
	logx "wabot/pkg/logx"
)

type App struct {
	cfgm   *config.Manager
	logsvc *logx.Service
	log    logx.Logger

	bus      eventbus.Bus
	store    storage.Store
	creds    *creds.Dir
	provider transport.Provider
	notif    *notifier.Service
	sessions *session.Manager
	tasks    *task.Scheduler
	sup      *rtsup.Supervisor

	started bool
}

// NewApp parses the config and sets up logging. Services that do I/O are
// created in Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logsvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log)

	return &App{cfgm: cfgm, logsvc: logsvc, log: log}, nil
}

func (a *App) Logger() logx.Logger { return a.log }

// Bus exposes the event fanout for external observers (e.g. a websocket
// layer subscribing to status updates).
func (a *App) Bus() eventbus.Bus { return a.bus }

// Store exposes the row surface for the external API layer's reads.
func (a *App) Store() storage.Store { return a.store }

// History returns recently published notifier events.
func (a *App) History() []notifier.Event {
	if a.notif == nil {
		return nil
	}
	return a.notif.History()
}

func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	cfg := a.cfgm.Get()

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "app"))))

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, a.log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	a.creds = creds.NewDir(cfg.Credentials.Dir)

	provider, err := transport.Open(cfg.Transport.Driver, transport.Options{Log: a.log})
	if err != nil {
		_ = store.Close()
		return err
	}
	a.provider = provider

	a.bus = eventbus.New()
	a.notif = notifier.New(notifierConfig(cfg.Notifier), a.bus, a.log)
	a.notif.Start(a.sup.Context())

	projector := status.New(a.store, a.notif, a.log)

	a.sessions = session.NewManager(session.Options{
		Store:          a.store,
		Creds:          a.creds,
		Provider:       a.provider,
		Reporter:       projector,
		Supervisor:     a.sup,
		Log:            a.log,
		ConnectTimeout: cfg.ConnectTimeout(),
	})
	a.tasks = task.NewScheduler(a.store, a.sessions, projector, a.log)
	a.sessions.SetTaskStopper(a.tasks)

	a.tasks.Run(a.sup.Context())

	// Recovery: restart tasks a previous process left marked running.
	if err := a.tasks.InitializeRunning(ctx); err != nil {
		a.log.Error("task recovery failed", logx.Err(err))
	}

	// Hot reload: only logging and notifier knobs apply live.
	a.sup.Go("config.watch", a.cfgm.Watch)
	updates := a.cfgm.Subscribe(1)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				a.applyReload(cfg, next)
				cfg = next
			}
		}
	})

	a.started = true
	a.log.Info("app started", logx.String("driver", cfg.Transport.Driver), logx.String("storage", cfg.Storage.Path))
	return nil
}

func (a *App) applyReload(prev, next *config.Config) {
	a.logsvc.Apply(logx.Config{
		Level:   next.Logging.Level,
		Console: next.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: next.Logging.File.Enabled,
			Path:    next.Logging.File.Path,
		},
	})
	a.notif.Apply(notifierConfig(next.Notifier))

	if prev.Storage != next.Storage || prev.Credentials != next.Credentials || prev.Transport != next.Transport {
		a.log.Warn("storage/credentials/transport changes require a restart")
	}
}

func (a *App) Stop(ctx context.Context) error {
	if !a.started {
		return nil
	}
	a.started = false

	// Order matters: stop timers first so no tick races the teardown,
	// then drain the notifier, then the rest.
	a.tasks.Shutdown(ctx)
	a.notif.Stop(ctx)
	if err := a.sup.Stop(ctx); err != nil && ctx.Err() == nil {
		a.log.Warn("shutdown finished with error", logx.Err(err))
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logsvc.Close()
	a.log.Info("app stopped")
	return nil
}

// ---- Operation surface for the external API layer ----

// StartSession ensures the session has a live connection.
func (a *App) StartSession(ctx context.Context, id int64) error {
	_, err := a.sessions.Start(ctx, id)
	return err
}

// LogoutSession tears a session down and deletes its credentials.
func (a *App) LogoutSession(ctx context.Context, id int64) error {
	return a.sessions.Logout(ctx, id)
}

// StartTask begins the task's periodic sends.
func (a *App) StartTask(ctx context.Context, id int64) error {
	return a.tasks.StartTask(ctx, id)
}

// StopTask cancels the task's timer.
func (a *App) StopTask(ctx context.Context, id int64) error {
	return a.tasks.StopTask(ctx, id)
}

// InitializeRunningTasks re-runs restart recovery on demand.
func (a *App) InitializeRunningTasks(ctx context.Context) error {
	return a.tasks.InitializeRunning(ctx)
}

func notifierConfig(nc *config.NotifierConfig) notifier.Config {
	out := notifier.Config{Enabled: true}
	if nc == nil {
		return out
	}
	if nc.Enabled != nil {
		out.Enabled = *nc.Enabled
	}
	out.Workers = nc.Workers
	out.QueueSize = nc.QueueSize
	out.RatePerSec = nc.RatePerSec
	out.HistorySize = nc.HistorySize
	return out
}
