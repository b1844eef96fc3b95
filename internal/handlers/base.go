package handlers

import (
	"sync/atomic"

	"notifyd/internal/eventbus"
	"notifyd/internal/notification"
)

// Bus topics.
const (
	TopicPopupQueued  = "popup.queued"
	TopicPopupDeduped = "popup.deduped"
	TopicPopupDropped = "popup.dropped"
	TopicPopupShown   = "popup.shown"
	TopicPopupFailed  = "popup.failed"

	TopicSoundStarted = "sound.started"
	TopicSoundStopped = "sound.stopped"

	TopicCommandDone   = "command.done"
	TopicCommandFailed = "command.failed"

	TopicVibrateStarted = "vibrate.started"
	TopicVibrateStopped = "vibrate.stopped"
)

// toggle implements the Kind/Enabled/SetEnabled part of notification.Handler.
// The zero value is enabled.
type toggle struct {
	kind notification.Kind
	off  atomic.Bool
}

func (t *toggle) Kind() notification.Kind { return t.kind }
func (t *toggle) Enabled() bool           { return !t.off.Load() }
func (t *toggle) SetEnabled(v bool)       { t.off.Store(!v) }

func publish(bus eventbus.Bus, topic string, data any) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: topic, Data: data})
}
