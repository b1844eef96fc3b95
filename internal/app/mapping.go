package app

import (
	"strings"
	"time"

	"notifyd/internal/config"
	"notifyd/internal/handlers"
	"notifyd/internal/observability/debug"
	"notifyd/internal/schedule"
	"notifyd/internal/store"
	logx "notifyd/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	sc := cfg.Store
	busy, err := config.ParseDurationField("store.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
	}, nil
}

func mapPopupOptions(cfg *config.Config, sink handlers.PopupSink) handlers.PopupOptions {
	p := cfg.Handlers.Popup
	return handlers.PopupOptions{
		RatePerSec:  p.RatePerSec,
		Burst:       p.Burst,
		QueueSize:   p.QueueSize,
		DedupWindow: p.Dedup(),
		Sink:        sink,
	}
}

func mapCommandOptions(cfg *config.Config, runner handlers.Runner) handlers.CommandOptions {
	c := cfg.Handlers.Command
	return handlers.CommandOptions{
		Exec:    c.Exec,
		Timeout: c.TimeoutOrDefault(),
		Runner:  runner,
	}
}

func mapScheduleDefs(cfg *config.Config) []schedule.Def {
	out := make([]schedule.Def, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		out = append(out, schedule.Def{
			Name:      strings.TrimSpace(s.Name),
			Schedule:  s.Schedule,
			EventType: strings.TrimSpace(s.EventType),
			Title:     s.Title,
			Message:   s.Message,
			Timezone:  strings.TrimSpace(s.Timezone),
		})
	}
	return out
}

func mapDebugConfig(cfg *config.Config) (debug.Config, error) {
	d := cfg.Debug
	read, err := config.ParseDurationOrDefault("debug.read_timeout", d.ReadTimeout, 5*time.Second)
	if err != nil {
		return debug.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("debug.idle_timeout", d.IdleTimeout, 60*time.Second)
	if err != nil {
		return debug.Config{}, err
	}
	addr := strings.TrimSpace(d.Addr)
	if addr == "" {
		addr = debug.DefaultAddr
	}
	return debug.Config{
		Enabled:       d.Enabled,
		Addr:          addr,
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
		ReadTimeout:   read,
		// profile and trace stream for up to 30s by default
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  idle,
	}, nil
}
