package handlers

import (
	"context"
	"sync"
	"time"

	"notifyd/internal/eventbus"
	"notifyd/internal/notification"
	rtsup "notifyd/internal/runtime/supervisor"
	logx "notifyd/pkg/logx"
)

// Motor drives the vibration device for one "on" segment. Buzz must not
// block; the handler times the segment itself.
type Motor interface {
	Buzz(d time.Duration)
}

type MotorFunc func(d time.Duration)

func (f MotorFunc) Buzz(d time.Duration) { f(d) }

// VibrateEvent is the Data of vibrate.* bus events.
type VibrateEvent struct {
	Descriptor string `json:"descriptor"`
	Segments   int    `json:"segments"`
}

// VibrateHandler walks one pattern at a time. Starting a pattern cancels the
// previous one, since there is a single device.
type VibrateHandler struct {
	toggle

	log   logx.Logger
	bus   eventbus.Bus
	sup   *rtsup.Supervisor
	motor Motor

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

func NewVibrate(sup *rtsup.Supervisor, motor Motor, log logx.Logger, bus eventbus.Bus) *VibrateHandler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if motor == nil {
		motor = MotorFunc(func(d time.Duration) { log.Trace("vibrate", logx.Duration("on", d)) })
	}
	return &VibrateHandler{toggle: toggle{kind: notification.KindVibrate}, log: log, bus: bus, sup: sup, motor: motor}
}

// Vibrate plays a.Pattern: alternating off and on durations in milliseconds,
// starting with off. With Repeat >= 0 the pattern restarts at that index
// until Cancel.
func (h *VibrateHandler) Vibrate(a *notification.VibrateAction) error {
	if !h.Enabled() || len(a.Pattern) == 0 {
		return nil
	}
	pattern := append([]int64(nil), a.Pattern...)
	repeat := a.Repeat
	if repeat >= len(pattern) || (repeat >= 0 && sumMillis(pattern[repeat:]) == 0) {
		repeat = -1
	}

	ctx, cancel := context.WithCancel(h.sup.Context())
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	publish(h.bus, TopicVibrateStarted, VibrateEvent{Descriptor: a.Descriptor})
	h.sup.Go0("vibrate.pattern", func(context.Context) {
		n := h.walk(ctx, pattern, repeat)
		h.mu.Lock()
		if h.seq == seq {
			h.cancel = nil
		}
		h.mu.Unlock()
		cancel()
		publish(h.bus, TopicVibrateStopped, VibrateEvent{Descriptor: a.Descriptor, Segments: n})
	})
	return nil
}

// walk returns the number of "on" segments driven.
func (h *VibrateHandler) walk(ctx context.Context, pattern []int64, repeat int) int {
	segments := 0
	for i := 0; ctx.Err() == nil; {
		d := time.Duration(pattern[i]) * time.Millisecond
		if i%2 == 1 && d > 0 {
			h.motor.Buzz(d)
			segments++
		}
		if !sleepCtx(ctx, d) {
			break
		}
		i++
		if i == len(pattern) {
			if repeat < 0 {
				break
			}
			i = repeat
		}
	}
	return segments
}

// Cancel stops the current pattern, if any.
func (h *VibrateHandler) Cancel() {
	h.mu.Lock()
	c := h.cancel
	h.cancel = nil
	h.mu.Unlock()
	if c != nil {
		c()
	}
}

// Active reports whether a pattern is running.
func (h *VibrateHandler) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func sumMillis(p []int64) int64 {
	var n int64
	for _, v := range p {
		n += v
	}
	return n
}
