package notification

import (
	"notifyd/internal/eventbus"
	logx "notifyd/pkg/logx"
)

// DefaultFlushThreshold is the number of distinct non-vibrate handler kinds
// that ends deferred caching.
const DefaultFlushThreshold = 4

const DefaultKeyPrefix = "notifyd.notifications"

// Recorder receives dispatch counters. internal/metrics provides a
// Prometheus implementation.
type Recorder interface {
	Fired(eventType string)
	Queued(eventType string)
	Flushed(n int)
	Dispatched(kind Kind)
	HandlerFailed(kind Kind)
}

type nopRecorder struct{}

func (nopRecorder) Fired(string)       {}
func (nopRecorder) Queued(string)      {}
func (nopRecorder) Flushed(int)        {}
func (nopRecorder) Dispatched(Kind)    {}
func (nopRecorder) HandlerFailed(Kind) {}

type Option func(*Service)

func WithLogger(log logx.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithBus publishes lifecycle events (see Topic* constants).
func WithBus(bus eventbus.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithFlushThreshold overrides DefaultFlushThreshold. Values <= 0 are ignored.
func WithFlushThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.threshold = n
		}
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.persist.prefix = prefix
		}
	}
}

// WithUpgradeCheck installs (or with nil, removes) the upgrade check for kind.
func WithUpgradeCheck(kind Kind, fn UpgradeCheck) Option {
	return func(s *Service) {
		if fn == nil {
			delete(s.upgrades, kind)
			return
		}
		s.upgrades[kind] = fn
	}
}
