package notification

import (
	"fmt"
	"runtime/debug"

	"notifyd/internal/eventbus"
	logx "notifyd/pkg/logx"
)

// Bus topics published when a bus is configured.
const (
	TopicFired         = "notification.fired"
	TopicQueued        = "notification.queued"
	TopicFlushed       = "notification.flushed"
	TopicDispatched    = "notification.dispatched"
	TopicHandlerFailed = "notification.handler_failed"
)

// LifecycleEvent is the Data of every notification.* bus event.
type LifecycleEvent struct {
	EventType string `json:"event_type,omitempty"`
	DataID    string `json:"data_id,omitempty"`
	Kind      Kind   `json:"kind,omitempty"`
	Count     int    `json:"count,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Service) publish(topic string, ev LifecycleEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: topic, Data: ev})
}

// Fire fires eventType without payload.
func (s *Service) Fire(eventType string) *Data {
	return s.FireNotification(eventType, "", "", nil, nil)
}

// FireNotification runs every enabled action of eventType. It returns nil
// when the event type is unknown or inactive. While handlers are still
// being installed the data is queued and returned without dispatching.
func (s *Service) FireNotification(eventType, title, message string, icon []byte, extras map[string]any) *Data {
	if !s.IsActive(eventType) {
		return nil
	}
	d := newData(eventType, title, message, icon, extras)
	s.rec.Fired(eventType)
	s.publish(TopicFired, LifecycleEvent{EventType: eventType, DataID: d.ID})

	if s.cache.offer(d) {
		s.rec.Queued(eventType)
		s.publish(TopicQueued, LifecycleEvent{EventType: eventType, DataID: d.ID})
		s.log.Debug("notification queued until handlers are ready", logx.String("event", eventType))
		return d
	}
	s.dispatch(d)
	return d
}

// drain dispatches the deferred backlog in firing order.
func (s *Service) drain() {
	n := 0
	for {
		d, ok := s.cache.next()
		if !ok {
			break
		}
		s.dispatch(d)
		n++
	}
	s.rec.Flushed(n)
	s.publish(TopicFlushed, LifecycleEvent{Count: n})
	s.log.Info("deferred notifications flushed", logx.Int("count", n))
}

// dispatch invokes the handler of every enabled action. The notification is
// looked up again so queued data follows the current configuration.
func (s *Service) dispatch(d *Data) {
	s.nmu.RLock()
	e, ok := s.notifications[d.EventType]
	var actions []Action
	if ok && e.active {
		actions = e.ordered()
	}
	s.nmu.RUnlock()
	if len(actions) == 0 {
		return
	}

	handlers := s.ActionHandlers()
	for _, a := range actions {
		if !a.Enabled() {
			continue
		}
		h := handlers[a.Kind()]
		if h == nil {
			continue
		}
		var call func() error
		switch a := a.(type) {
		case *SoundAction:
			sh, ok := h.(SoundHandler)
			if !ok || !a.AnyOutput() {
				continue
			}
			call = func() error { return sh.Start(a, d) }
		case *PopupMessageAction:
			ph, ok := h.(PopupHandler)
			if !ok {
				continue
			}
			call = func() error { return ph.PopupMessage(a, d.Title, d.Message, d.Icon, d.Extra(ExtraPopupTag)) }
		case *LogMessageAction:
			lh, ok := h.(LogHandler)
			if !ok {
				continue
			}
			call = func() error { return lh.LogMessage(a, d.Message) }
		case *CommandAction:
			ch, ok := h.(CommandHandler)
			if !ok {
				continue
			}
			call = func() error { return ch.Execute(a, d.CommandArgs()) }
		case *VibrateAction:
			vh, ok := h.(VibrateHandler)
			if !ok {
				continue
			}
			call = func() error { return vh.Vibrate(a) }
		default:
			continue
		}
		if err := s.safeInvoke(a.Kind(), h, d.EventType, call); err == nil {
			s.rec.Dispatched(a.Kind())
			s.publish(TopicDispatched, LifecycleEvent{EventType: d.EventType, DataID: d.ID, Kind: a.Kind()})
		}
	}
}

// safeInvoke runs fn and converts a returned error or a panic into a logged,
// counted failure. It never propagates either.
func (s *Service) safeInvoke(kind Kind, h Handler, eventType string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			s.log.Error("notification handler panicked",
				logx.String("event", eventType),
				logx.String("action", string(kind)),
				logx.String("handler", fmt.Sprintf("%T", h)),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		} else if err != nil {
			s.log.Error("notification handler failed",
				logx.String("event", eventType),
				logx.String("action", string(kind)),
				logx.String("handler", fmt.Sprintf("%T", h)),
				logx.Err(err))
		}
		if err != nil {
			s.rec.HandlerFailed(kind)
			s.publish(TopicHandlerFailed, LifecycleEvent{EventType: eventType, Kind: kind, Error: err.Error()})
		}
	}()
	return fn()
}

// StopNotification asks the sound and vibrate handlers to stop work started
// for d. It is idempotent.
func (s *Service) StopNotification(d *Data) {
	if d == nil {
		return
	}
	handlers := s.ActionHandlers()
	if sh, ok := handlers[KindSound].(SoundHandler); ok {
		_ = s.safeInvoke(KindSound, sh, d.EventType, func() error { sh.Stop(d); return nil })
	}
	if vh, ok := handlers[KindVibrate].(VibrateHandler); ok {
		_ = s.safeInvoke(KindVibrate, vh, d.EventType, func() error { vh.Cancel(); return nil })
	}
}

// IsPlayingNotification reports whether the sound handler still plays d.
func (s *Service) IsPlayingNotification(d *Data) bool {
	if d == nil {
		return false
	}
	sh, ok := s.ActionHandler(KindSound).(SoundHandler)
	if !ok {
		return false
	}
	playing := false
	_ = s.safeInvoke(KindSound, sh, d.EventType, func() error {
		playing = sh.IsPlaying(d)
		return nil
	})
	return playing
}
