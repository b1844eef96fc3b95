package config

import (
	"strings"
	"time"
)

type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Store     StoreConfig      `json:"store"`
	Engine    EngineConfig     `json:"engine"`
	Handlers  HandlersConfig   `json:"handlers"`
	Schedules []ScheduleConfig `json:"schedules,omitempty"`
	Debug     DebugConfig      `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects the persistence backend for notification configuration.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./notifyd.db", "busy_timeout": "5s" }
type StoreConfig struct {
	Driver      string `json:"driver"` // memory | file | sqlite (default: memory)
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Prefix is the root of every persisted key.
	Prefix string `json:"prefix,omitempty"`
}

const DefaultStorePrefix = "notifyd.notifications"

func (s StoreConfig) KeyPrefix() string {
	if p := strings.TrimSpace(s.Prefix); p != "" {
		return p
	}
	return DefaultStorePrefix
}

// EngineConfig controls the notification service.
//
// LoadOnStart and RegisterDefaults are pointers so we can distinguish
// "omitted" (default true) from an explicit false.
type EngineConfig struct {
	FlushThreshold   int   `json:"flush_threshold,omitempty"` // default: 4
	LoadOnStart      *bool `json:"load_on_start,omitempty"`
	RegisterDefaults *bool `json:"register_defaults,omitempty"`
}

const DefaultFlushThreshold = 4

func (e EngineConfig) Threshold() int {
	if e.FlushThreshold <= 0 {
		return DefaultFlushThreshold
	}
	return e.FlushThreshold
}

func (e EngineConfig) ShouldLoad() bool { return boolOr(e.LoadOnStart, true) }

func (e EngineConfig) ShouldRegisterDefaults() bool { return boolOr(e.RegisterDefaults, true) }

type HandlersConfig struct {
	Log     ToggleConfig  `json:"log"`
	Popup   PopupConfig   `json:"popup"`
	Sound   ToggleConfig  `json:"sound"`
	Command CommandConfig `json:"command"`
	Vibrate ToggleConfig  `json:"vibrate"`
}

// ToggleConfig is a handler section without options. A nil Enabled means on.
type ToggleConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
}

func (t ToggleConfig) On() bool { return boolOr(t.Enabled, true) }

type PopupConfig struct {
	Enabled    *bool   `json:"enabled,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"` // 0 disables limiting
	Burst      int     `json:"burst,omitempty"`
	QueueSize  int     `json:"queue_size,omitempty"` // default: 64

	// DedupWindow suppresses identical popups (same group, title and
	// message) for a Go duration. Empty disables.
	DedupWindow string `json:"dedup_window,omitempty"`
}

func (p PopupConfig) On() bool { return boolOr(p.Enabled, true) }

func (p PopupConfig) Dedup() time.Duration {
	d, err := ParseDurationField("handlers.popup.dedup_window", p.DedupWindow)
	if err != nil {
		return 0
	}
	return d
}

// CommandConfig controls the command handler. Exec=false only logs the
// expanded descriptor.
type CommandConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Exec    bool   `json:"exec"`
	Timeout string `json:"timeout,omitempty"` // Go duration string (default: 10s)
}

func (c CommandConfig) On() bool { return boolOr(c.Enabled, true) }

func (c CommandConfig) TimeoutOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("handlers.command.timeout", c.Timeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ScheduleConfig fires EventType on a trigger.
//
// Schedule accepts a cron expression (5 fields, or 6 with seconds), a Go
// duration ("90s", "5m") or "HH:MM" for fixed intervals, or "at:HH:MM" for a
// daily time.
type ScheduleConfig struct {
	Name      string `json:"name"`
	Schedule  string `json:"schedule"`
	EventType string `json:"event_type"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// DebugConfig controls the optional debug HTTP server (/healthz, /metrics,
// /debug/pprof/, /debug/notifications).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6061").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6061"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
