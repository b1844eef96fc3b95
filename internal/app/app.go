package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"notifyd/internal/config"
	"notifyd/internal/eventbus"
	"notifyd/internal/handlers"
	"notifyd/internal/metrics"
	"notifyd/internal/notification"
	"notifyd/internal/observability/debug"
	rtsup "notifyd/internal/runtime/supervisor"
	"notifyd/internal/schedule"
	"notifyd/internal/store"
	"notifyd/internal/wiring"
	logx "notifyd/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Option customizes the host-side outputs of an App. The defaults log popups,
// ring the terminal bell, log vibrations and run commands with os/exec.
type Option func(*App)

func WithPopupSink(s handlers.PopupSink) Option { return func(a *App) { a.sink = s } }

func WithPlayer(p handlers.Player) Option { return func(a *App) { a.player = p } }

func WithMotor(m handlers.Motor) Option { return func(a *App) { a.motor = m } }

func WithRunner(r handlers.Runner) Option { return func(a *App) { a.runner = r } }

type App struct {
	cfgm *config.ConfigManager

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   store.Store
	metrics *metrics.Module

	svc   *notification.Service
	sched *schedule.Service
	debug *debug.Service

	sup  *rtsup.Supervisor
	hsup *rtsup.Supervisor

	logh    *handlers.LogHandler
	popup   *handlers.PopupHandler
	sound   *handlers.SoundHandler
	command *handlers.CommandHandler
	vibrate *handlers.VibrateHandler

	sink   handlers.PopupSink
	player handlers.Player
	motor  handlers.Motor
	runner handlers.Runner

	ready atomic.Bool
}

// New loads the config file and builds the engine: store, metrics, persisted
// notifications and factory defaults. Handlers are installed by Start, so
// anything fired before then is queued by the engine.
func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a := &App{cfgm: cfgm, logs: logSvc, log: log.With(logx.String("comp", "app")), bus: eventbus.New()}
	for _, o := range opts {
		o(a)
	}
	if a.sink == nil {
		a.sink = logSink(log.With(logx.String("comp", "popup.sink")))
	}
	if a.player == nil {
		a.player = handlers.BellPlayer{W: os.Stderr, Log: log.With(logx.String("comp", "sound.player"))}
	}
	if a.motor == nil {
		mlog := log.With(logx.String("comp", "vibrate.motor"))
		a.motor = handlers.MotorFunc(func(d time.Duration) { mlog.Debug("buzz", logx.Duration("for", d)) })
	}
	if a.runner == nil {
		a.runner = handlers.ExecRunner{}
	}

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	st, err := store.Open(sc, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	a.store = st
	a.log.Info("store opened", logx.String("driver", sc.Driver), logx.String("prefix", cfg.Store.KeyPrefix()))

	mod, err := metrics.NewModule(metrics.Options{})
	if err != nil {
		a.closeEarly()
		return nil, err
	}
	a.metrics = mod

	a.svc = notification.New(st,
		notification.WithLogger(log.With(logx.String("comp", "notification"))),
		notification.WithBus(a.bus),
		notification.WithRecorder(mod),
		notification.WithFlushThreshold(cfg.Engine.Threshold()),
		notification.WithKeyPrefix(cfg.Store.KeyPrefix()),
	)
	if cfg.Engine.ShouldLoad() {
		if err := a.svc.Init(); err != nil {
			a.closeEarly()
			return nil, fmt.Errorf("load notifications: %w", err)
		}
	}
	if cfg.Engine.ShouldRegisterDefaults() {
		if err := wiring.RegisterDefaults(a.svc); err != nil {
			a.closeEarly()
			return nil, fmt.Errorf("register defaults: %w", err)
		}
	}
	_ = mod.GaugeFunc("deferred_notifications", "Fired notifications waiting for handlers.", func() float64 {
		_, n := a.svc.Caching()
		return float64(n)
	})
	_ = mod.GaugeFunc("registered_events", "Event types with a registered notification.", func() float64 {
		return float64(len(a.svc.RegisteredEvents()))
	})

	a.sched = schedule.New(a.svc, time.Local, log.With(logx.String("comp", "schedule")))
	a.sched.Apply(mapScheduleDefs(cfg))

	dcfg, err := mapDebugConfig(cfg)
	if err != nil {
		a.closeEarly()
		return nil, err
	}
	a.debug = debug.New(dcfg, debug.Sources{
		Metrics:       mod.Handler(),
		Notifications: func() any { return a.engineView() },
		Schedules:     func() any { return a.sched.Snapshot() },
		Goroutines:    func() any { return a.goroutinesView() },
		Ready:         a.ready.Load,
	}, log.With(logx.String("comp", "debug")))

	return a, nil
}

func (a *App) closeEarly() {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
}

func (a *App) Service() *notification.Service { return a.svc }

func (a *App) Schedules() *schedule.Service { return a.sched }

func (a *App) Metrics() *metrics.Module { return a.metrics }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	// Handler goroutines (sound loops, vibration patterns, commands) are not
	// fatal to the app.
	a.hsup = rtsup.New(a.sup.Context(), rtsup.WithLogger(a.log.With(logx.String("comp", "handlers"))))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
		if err := a.sched.Validate(mapScheduleDefs(cfg)); err != nil {
			return err
		}
		_, err := mapDebugConfig(cfg)
		return err
	})

	cfg := a.cfgm.Get()
	if err := a.installHandlers(cfg); err != nil {
		return err
	}
	a.ready.Store(true)

	a.sched.Start(a.sup.Context())
	a.debug.Start(a.sup.Context())

	// Optional: log events for observability/debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.Int("events", len(a.svc.RegisteredEvents())),
		logx.Int("schedules", len(a.sched.Snapshot())))
	return nil
}

// installHandlers builds the reference handlers and hands them to the
// engine. The engine flushes its deferred queue once enough kinds are in.
func (a *App) installHandlers(cfg *Config) error {
	a.logh = handlers.NewLog(a.log.With(logx.String("comp", "notifications")))
	a.popup = handlers.NewPopup(mapPopupOptions(cfg, a.sink), a.log.With(logx.String("comp", "popup")), a.bus)
	a.popup.Start(a.sup.Context())
	a.sound = handlers.NewSound(a.hsup, a.player, a.log.With(logx.String("comp", "sound")), a.bus)
	a.command = handlers.NewCommand(a.hsup, mapCommandOptions(cfg, a.runner), a.log.With(logx.String("comp", "command")), a.bus)
	a.vibrate = handlers.NewVibrate(a.hsup, a.motor, a.log.With(logx.String("comp", "vibrate")), a.bus)
	a.applyToggles(cfg)

	_ = a.metrics.GaugeFunc("sounds_playing", "Sounds currently playing.", func() float64 {
		return float64(a.sound.Playing())
	})

	var errs []error
	for _, h := range []notification.Handler{a.sound, a.popup, a.logh, a.command, a.vibrate} {
		if err := a.svc.AddActionHandler(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) applyToggles(cfg *Config) {
	h := cfg.Handlers
	a.logh.SetEnabled(h.Log.On())
	a.popup.SetEnabled(h.Popup.On())
	a.sound.SetEnabled(h.Sound.On())
	a.command.SetEnabled(h.Command.On())
	a.vibrate.SetEnabled(h.Vibrate.On())
}

func (a *App) applyConfig(c context.Context, prev, next *Config) {
	sections, attrs := SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		switch s {
		case "store", "engine":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	a.logs.Apply(mapLogConfig(next))

	a.popup.Apply(mapPopupOptions(next, a.sink))
	a.command.Apply(mapCommandOptions(next, a.runner))
	a.applyToggles(next)

	a.sched.Apply(mapScheduleDefs(next))

	if dcfg, err := mapDebugConfig(next); err != nil {
		a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
	} else {
		a.debug.Reconfigure(c, dcfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.ready.Store(false)

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > max {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("schedule", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("engine", time.Second, func(context.Context) error { a.svc.Shutdown(); return nil })
	step("popup", 2*time.Second, func(c context.Context) error { a.popup.Stop(c); return nil })
	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("handlers", 2*time.Second, func(c context.Context) error { return a.hsup.Stop(c) })

	// Cancel the app context last so config watch and the bus logger unwind.
	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("store", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

type Config = config.Config

// SummarizeConfigChange mirrors config.SummarizeConfigChange for callers of app.
var SummarizeConfigChange = config.SummarizeConfigChange

func logSink(log logx.Logger) handlers.PopupSink {
	return handlers.PopupSinkFunc(func(_ context.Context, p handlers.Popup) error {
		log.Info("popup",
			logx.String("event", p.EventType),
			logx.String("title", p.Title),
			logx.String("message", p.Message))
		return nil
	})
}
