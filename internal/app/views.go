package app

import (
	"fmt"

	"notifyd/internal/handlers"
	"notifyd/internal/notification"
	rtsup "notifyd/internal/runtime/supervisor"
)

type actionView struct {
	Kind    notification.Kind   `json:"kind"`
	Enabled bool                `json:"enabled"`
	Config  notification.Action `json:"config"`
}

type notificationView struct {
	EventType string       `json:"event_type"`
	Active    bool         `json:"active"`
	Actions   []actionView `json:"actions"`
}

type handlerView struct {
	Kind    notification.Kind `json:"kind"`
	Type    string            `json:"type"`
	Enabled bool              `json:"enabled"`
}

// EngineView is served on /debug/notifications.
type EngineView struct {
	Caching       bool                   `json:"caching"`
	Pending       int                    `json:"pending"`
	Handlers      []handlerView          `json:"handlers"`
	Notifications []notificationView     `json:"notifications"`
	SoundsPlaying int                    `json:"sounds_playing"`
	Popups        []handlers.PopupRecord `json:"popups,omitempty"`
	BusDropped    uint64                 `json:"bus_dropped"`
}

func (a *App) engineView() EngineView {
	caching, pending := a.svc.Caching()
	v := EngineView{Caching: caching, Pending: pending}
	if a.bus != nil {
		v.BusDropped = a.bus.Dropped()
	}
	for _, k := range notification.Kinds {
		h := a.svc.ActionHandler(k)
		if h == nil {
			continue
		}
		v.Handlers = append(v.Handlers, handlerView{Kind: k, Type: fmt.Sprintf("%T", h), Enabled: h.Enabled()})
	}
	for _, n := range a.svc.Notifications() {
		nv := notificationView{EventType: n.EventType, Active: n.Active}
		for _, act := range n.Actions {
			nv.Actions = append(nv.Actions, actionView{Kind: act.Kind(), Enabled: act.Enabled(), Config: act})
		}
		v.Notifications = append(v.Notifications, nv)
	}
	if a.sound != nil {
		v.SoundsPlaying = a.sound.Playing()
	}
	if a.popup != nil {
		v.Popups = a.popup.History()
	}
	return v
}

func (a *App) goroutinesView() map[string]rtsup.Snapshot {
	out := map[string]rtsup.Snapshot{}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	if a.hsup != nil {
		out["handlers"] = a.hsup.Snapshot()
	}
	return out
}
