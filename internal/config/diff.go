package config

import (
	"reflect"
	"sort"
	"strings"

	logx "notifyd/pkg/logx"
)

// SummarizeConfigChange returns a sorted list of changed sections and safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Store, newCfg.Store) {
		changed = append(changed, "store")
		attrs = append(attrs,
			logx.String("store.driver", strings.TrimSpace(newCfg.Store.Driver)),
			logx.Bool("store.path_set", strings.TrimSpace(newCfg.Store.Path) != ""),
			logx.String("store.prefix", newCfg.Store.KeyPrefix()),
		)
	}

	if oldCfg.Engine.Threshold() != newCfg.Engine.Threshold() ||
		oldCfg.Engine.ShouldLoad() != newCfg.Engine.ShouldLoad() ||
		oldCfg.Engine.ShouldRegisterDefaults() != newCfg.Engine.ShouldRegisterDefaults() {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.flush_threshold", newCfg.Engine.Threshold()),
			logx.Bool("engine.load_on_start", newCfg.Engine.ShouldLoad()),
			logx.Bool("engine.register_defaults", newCfg.Engine.ShouldRegisterDefaults()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Handlers, newCfg.Handlers) {
		changed = append(changed, "handlers")
		h := newCfg.Handlers
		attrs = append(attrs,
			logx.Bool("handlers.popup", h.Popup.On()),
			logx.Any("handlers.popup.rate_per_sec", h.Popup.RatePerSec),
			logx.Bool("handlers.command.exec", h.Command.Exec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedules, newCfg.Schedules) {
		changed = append(changed, "schedules")
		attrs = append(attrs, logx.Int("schedules.count", len(newCfg.Schedules)))
	}

	// Debug server (never log token)
	od, nd := oldCfg.Debug, newCfg.Debug
	od.Token, nd.Token = tokenMark(od.Token), tokenMark(nd.Token)
	if od != nd {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", strings.TrimSpace(nd.Addr)),
			logx.Bool("debug.token_set", nd.Token != ""),
			logx.Bool("debug.allow_insecure", nd.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func tokenMark(tok string) string {
	if strings.TrimSpace(tok) == "" {
		return ""
	}
	return "set"
}
