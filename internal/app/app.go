// Package app assembles clocknag's services: config, logging, storage,
// the clock tracker, the sink chain, and the reminder service.
package app

import (
	"context"
	"fmt"
	"sync"

	"clocknag/internal/clock"
	"clocknag/internal/config"
	"clocknag/internal/eventbus"
	"clocknag/internal/reminder"
	"clocknag/internal/sink"
	"clocknag/internal/storage"
	logx "clocknag/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus     eventbus.Bus
	store   storage.Store
	tracker *clock.Tracker
	rem     *reminder.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(mapLoggingConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	bus := eventbus.New()

	store, err := openStore(cfg, logs.Logger())
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	tracker := clock.NewTracker(store, cfg.Storage.Path, bus,
		logs.Logger().With(logx.String("comp", "clock")))

	a := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		bus:     bus,
		store:   store,
		tracker: tracker,
	}

	chain := a.buildChain(cfg)
	a.rem = reminder.New(mapReminderConfig(cfg), tracker, chain, clock.Directives(tracker),
		logs.Logger().With(logx.String("comp", "reminder")), bus)

	return a, nil
}

func (a *App) Reminder() *reminder.Service { return a.rem }
func (a *App) Tracker() *clock.Tracker     { return a.tracker }

// Start activates the reminder timer and the background loops (config
// watch, session watch, lifecycle event dispatch, config reload).
func (a *App) Start(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.rem.Activate(); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(rctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.tracker.Watch(rctx); err != nil {
			a.log.Warn("session watch stopped", logx.Err(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatchEvents(rctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reloadLoop(rctx)
	}()

	a.log.Info("clocknag started")
	return nil
}

// Stop deactivates the reminder timer and shuts the loops down.
func (a *App) Stop(ctx context.Context) error {
	a.rem.Deactivate()
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}

	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("clocknag stopped")
	return a.logs.Close()
}

// dispatchEvents feeds clock lifecycle signals into the reminder state
// machine, independent of the tick cadence.
func (a *App) dispatchEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(16)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case eventbus.TypeClockIn:
				a.rem.OnClockIn()
			case eventbus.TypeClockOut:
				a.rem.OnClockOut()
			}
		}
	}
}

func (a *App) reloadLoop(ctx context.Context) {
	updates := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(updates)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			if cfg == nil {
				continue
			}
			a.logs.Apply(mapLoggingConfig(cfg.Logging))
			a.rem.SetChain(a.buildChain(cfg))
			a.rem.Apply(mapReminderConfig(cfg))
			a.log.Info("configuration applied", logx.String("config", cfg.String()))
		}
	}
}

// buildChain assembles the sink chain for a config snapshot. A sink that
// cannot be constructed (e.g. Telegram unreachable at startup) is logged
// and left out rather than failing the daemon.
func (a *App) buildChain(cfg *config.Config) *sink.Chain {
	chain := sink.NewChain(a.logs.Logger().With(logx.String("comp", "sink")), a.bus)
	chain.SetRatePerMinute(cfg.Reminder.RatePerMinute)

	chain.Add("desktop", sink.NewDesktop(a.tracker, sink.Icons{
		Enabled:  cfg.Reminder.Icons.Enabled,
		Active:   cfg.Reminder.Icons.Active,
		Inactive: cfg.Reminder.Icons.Inactive,
	}))

	if cfg.Telegram.Enabled {
		tg, err := sink.NewTelegram(sink.TelegramConfig{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
		})
		if err != nil {
			a.log.Warn("telegram sink unavailable", logx.Err(err))
		} else {
			chain.Add("telegram", tg)
		}
	}

	if a.store != nil {
		chain.Add("store", sink.NewStoreLog(a.store))
	}

	return chain
}

func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return st, nil
}

func mapLoggingConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func mapReminderConfig(cfg *config.Config) reminder.Config {
	return reminder.Config{
		Interval:           cfg.Interval(),
		RemindOnInactivity: cfg.Reminder.RemindOnInactivity,
		Title:              cfg.Reminder.Title,
		Format:             cfg.Reminder.Format,
		EmptyText:          cfg.Reminder.EmptyText,
	}
}
