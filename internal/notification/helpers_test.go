package notification

import (
	"errors"
	"fmt"
	"sync"
)

// calls records handler invocations across kinds in order.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(format string, args ...any) {
	c.mu.Lock()
	c.log = append(c.log, fmt.Sprintf(format, args...))
	c.mu.Unlock()
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type baseHandler struct {
	kind     Kind
	disabled bool
}

func (b *baseHandler) Kind() Kind        { return b.kind }
func (b *baseHandler) Enabled() bool     { return !b.disabled }
func (b *baseHandler) SetEnabled(v bool) { b.disabled = !v }

type soundRec struct {
	baseHandler
	c       *calls
	mu      sync.Mutex
	playing map[string]bool
	fail    error
}

func newSoundRec(c *calls) *soundRec {
	return &soundRec{baseHandler: baseHandler{kind: KindSound}, c: c, playing: map[string]bool{}}
}

func (h *soundRec) Start(a *SoundAction, d *Data) error {
	h.c.add("sound:%s:%s:%d", d.EventType, a.Descriptor, a.LoopInterval)
	h.mu.Lock()
	h.playing[d.ID] = true
	h.mu.Unlock()
	return h.fail
}

func (h *soundRec) Stop(d *Data) {
	h.mu.Lock()
	delete(h.playing, d.ID)
	h.mu.Unlock()
}

func (h *soundRec) IsPlaying(d *Data) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing[d.ID]
}

type popupRec struct {
	baseHandler
	c     *calls
	panic bool
}

func newPopupRec(c *calls) *popupRec { return &popupRec{baseHandler: baseHandler{kind: KindPopup}, c: c} }

func (h *popupRec) PopupMessage(a *PopupMessageAction, title, message string, icon []byte, tag any) error {
	if h.panic {
		panic("popup exploded")
	}
	h.c.add("popup:%s:%s:%v", title, message, tag)
	return nil
}

type logRec struct {
	baseHandler
	c    *calls
	fail bool
}

func newLogRec(c *calls) *logRec { return &logRec{baseHandler: baseHandler{kind: KindLog}, c: c} }

func (h *logRec) LogMessage(a *LogMessageAction, message string) error {
	if h.fail {
		return errors.New("log sink down")
	}
	h.c.add("log:%s:%s", a.Level, message)
	return nil
}

type commandRec struct {
	baseHandler
	c *calls
}

func newCommandRec(c *calls) *commandRec {
	return &commandRec{baseHandler: baseHandler{kind: KindCommand}, c: c}
}

func (h *commandRec) Execute(a *CommandAction, args map[string]string) error {
	h.c.add("command:%s:%v", a.Descriptor, args)
	return nil
}

type vibrateRec struct {
	baseHandler
	c        *calls
	canceled int
}

func newVibrateRec(c *calls) *vibrateRec {
	return &vibrateRec{baseHandler: baseHandler{kind: KindVibrate}, c: c}
}

func (h *vibrateRec) Vibrate(a *VibrateAction) error {
	h.c.add("vibrate:%s:%v", a.Descriptor, a.Pattern)
	return nil
}

func (h *vibrateRec) Cancel() { h.canceled++ }

// installAll adds the four counted handlers.
func installAll(s *Service, c *calls) (*soundRec, *popupRec, *logRec, *commandRec) {
	sh, ph, lh, ch := newSoundRec(c), newPopupRec(c), newLogRec(c), newCommandRec(c)
	for _, h := range []Handler{sh, ph, lh, ch} {
		if err := s.AddActionHandler(h); err != nil {
			panic(err)
		}
	}
	return sh, ph, lh, ch
}

// listenerRec records change events.
type listenerRec struct {
	mu     sync.Mutex
	events []string
}

func (l *listenerRec) add(s string) {
	l.mu.Lock()
	l.events = append(l.events, s)
	l.mu.Unlock()
}

func (l *listenerRec) EventTypeAdded(e EventTypeEvent)   { l.add("type+:" + e.EventType) }
func (l *listenerRec) EventTypeRemoved(e EventTypeEvent) { l.add("type-:" + e.EventType) }
func (l *listenerRec) ActionAdded(e ActionEvent)         { l.add("action+:" + e.EventType + ":" + string(e.Kind)) }
func (l *listenerRec) ActionChanged(e ActionEvent)       { l.add("action~:" + e.EventType + ":" + string(e.Kind)) }
func (l *listenerRec) ActionRemoved(e ActionEvent)       { l.add("action-:" + e.EventType + ":" + string(e.Kind)) }

func (l *listenerRec) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}
