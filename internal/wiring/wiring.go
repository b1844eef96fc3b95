// Package wiring registers the factory notification set for a telephony
// client: which action each well-known event type gets out of the box.
package wiring

import (
	"errors"
	"fmt"

	"notifyd/internal/notification"
)

// Event types.
const (
	IncomingMessage       = "IncomingMessage"
	IncomingCall          = "IncomingCall"
	OutgoingCall          = "OutgoingCall"
	BusyCall              = "BusyCall"
	Dialing               = "Dialing"
	HangUp                = "HangUp"
	ProactiveNotification = "ProactiveNotification"
	SecurityMessage       = "SecurityMessage"
	CallSecurityOn        = "CallSecurityOn"
	CallSecurityError     = "CallSecurityError"
	IncomingFile          = "IncomingFile"
	CallSaved             = "CallSaved"
)

// Sound descriptors, relative to the host's sound directory.
const (
	SoundIncomingMessage   = "sounds/incomingMessage.wav"
	SoundIncomingCall      = "sounds/incomingCall.wav"
	SoundOutgoingCall      = "sounds/ring.wav"
	SoundBusy              = "sounds/busy.wav"
	SoundDialing           = "sounds/dial.wav"
	SoundHangUp            = "sounds/hangup.wav"
	SoundCallSecurityOn    = "sounds/zrtpSecure.wav"
	SoundCallSecurityError = "sounds/zrtpAlert.wav"
	SoundIncomingFile      = "sounds/incomingFile.wav"
)

// Default is one factory registration.
type Default struct {
	EventType string
	Action    notification.Action
}

// Defaults returns the factory set in registration order. Each call builds
// fresh actions.
func Defaults() []Default {
	popup := func(evt string) Default {
		return Default{EventType: evt, Action: notification.NewPopupMessageAction("")}
	}
	sound := func(evt, desc string, loop int, n, p, pc bool) Default {
		return Default{EventType: evt, Action: notification.NewSoundAction(desc, loop, n, p, pc)}
	}
	return []Default{
		popup(IncomingMessage),
		sound(IncomingMessage, SoundIncomingMessage, -1, true, false, false),

		popup(IncomingCall),
		sound(IncomingCall, SoundIncomingCall, 2000, true, true, true),

		sound(OutgoingCall, SoundOutgoingCall, 3000, false, true, false),
		sound(BusyCall, SoundBusy, 1, false, true, false),
		sound(Dialing, SoundDialing, -1, false, true, false),
		sound(HangUp, SoundHangUp, -1, false, true, false),

		popup(ProactiveNotification),
		popup(SecurityMessage),

		sound(CallSecurityOn, SoundCallSecurityOn, -1, false, true, false),
		sound(CallSecurityError, SoundCallSecurityError, -1, false, true, false),

		popup(IncomingFile),
		sound(IncomingFile, SoundIncomingFile, -1, true, false, false),

		popup(CallSaved),
	}
}

// Registrar is the part of notification.Service that RegisterDefaults uses.
type Registrar interface {
	RegisterDefaultNotificationForEvent(eventType string, a notification.Action) error
}

// RegisterDefaults registers every factory default and joins the errors.
func RegisterDefaults(r Registrar) error {
	var errs []error
	for _, d := range Defaults() {
		if err := r.RegisterDefaultNotificationForEvent(d.EventType, d.Action); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", d.EventType, d.Action.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// EventTypes returns the distinct event types of the factory set, in
// registration order.
func EventTypes() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range Defaults() {
		if !seen[d.EventType] {
			seen[d.EventType] = true
			out = append(out, d.EventType)
		}
	}
	return out
}
