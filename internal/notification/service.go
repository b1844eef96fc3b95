package notification

import (
	"fmt"
	"sort"
	"sync"

	"notifyd/internal/eventbus"
	"notifyd/internal/store"
	logx "notifyd/pkg/logx"
)

// Service owns the handler registry, the notification and default tables,
// the deferred cache and the listener list. Each is guarded by its own lock.
//
// It is safe for concurrent use.
type Service struct {
	log       logx.Logger
	bus       eventbus.Bus
	rec       Recorder
	persist   *persister
	threshold int
	upgrades  map[Kind]UpgradeCheck

	hmu      sync.RWMutex
	handlers map[Kind]Handler

	cache deferredCache

	nmu           sync.RWMutex
	notifications map[string]*entry

	dmu      sync.Mutex
	defaults map[string]*entry

	listeners listenerList
}

// New returns a Service backed by st, or by a memory store when st is nil.
func New(st store.Store, opts ...Option) *Service {
	if st == nil {
		st = store.NewMemory()
	}
	s := &Service{
		log:           logx.Nop(),
		rec:           nopRecorder{},
		persist:       &persister{st: st, prefix: DefaultKeyPrefix},
		threshold:     DefaultFlushThreshold,
		upgrades:      map[Kind]UpgradeCheck{KindSound: soundUpgrade},
		handlers:      map[Kind]Handler{},
		notifications: map[string]*entry{},
		defaults:      map[string]*entry{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.persist.log = s.log
	return s
}

// Init loads persisted notifications, replacing any in-memory entries for
// the same event types. Change listeners are not notified.
func (s *Service) Init() error {
	items, err := s.persist.load()
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	s.nmu.Lock()
	for _, it := range items {
		e := newEntry(it.eventType)
		e.active = it.active
		for _, a := range it.actions {
			e.actions[a.Kind()] = a
		}
		s.notifications[it.eventType] = e
	}
	s.nmu.Unlock()
	s.log.Info("notifications loaded", logx.Int("events", len(items)))
	return nil
}

// Shutdown stops in-flight sound and vibrate work through the installed
// handlers and drops every change listener.
func (s *Service) Shutdown() {
	for _, h := range s.ActionHandlers() {
		if sa, ok := h.(StopAller); ok {
			_ = s.safeInvoke(h.Kind(), h, "", func() error { sa.StopAll(); return nil })
		}
		if v, ok := h.(VibrateHandler); ok {
			_ = s.safeInvoke(KindVibrate, h, "", func() error { v.Cancel(); return nil })
		}
	}
	s.listeners.clear()
}

// ---- handler registry ----

// AddActionHandler installs h for its kind, replacing any previous handler.
// Installing the last kind needed ends deferred caching and dispatches the
// backlog on the calling goroutine.
func (s *Service) AddActionHandler(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	kind := h.Kind()
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if !implementsKind(h) {
		return fmt.Errorf("%w: %T for %s", ErrHandlerMismatch, h, kind)
	}

	s.hmu.Lock()
	s.handlers[kind] = h
	counted := 0
	for k := range s.handlers {
		if k != KindVibrate {
			counted++
		}
	}
	// Checked under hmu so concurrent adds cannot both start a flush.
	flush := counted >= s.threshold && s.cache.beginFlush()
	s.hmu.Unlock()

	s.log.Debug("action handler added", logx.String("action", string(kind)), logx.String("handler", fmt.Sprintf("%T", h)))
	if flush {
		s.drain()
	}
	return nil
}

// RemoveActionHandler uninstalls the handler for kind. It only fails for an
// empty kind; an absent handler is a no-op.
func (s *Service) RemoveActionHandler(kind Kind) error {
	if kind == "" {
		return ErrInvalidKind
	}
	s.hmu.Lock()
	delete(s.handlers, kind)
	s.hmu.Unlock()
	return nil
}

// ActionHandlers returns a copy of every installed handler keyed by kind.
func (s *Service) ActionHandlers() map[Kind]Handler {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	out := make(map[Kind]Handler, len(s.handlers))
	for k, h := range s.handlers {
		out[k] = h
	}
	return out
}

// ActionHandler returns the handler installed for kind, or nil.
func (s *Service) ActionHandler(kind Kind) Handler {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	return s.handlers[kind]
}

// Caching reports whether fired notifications are still being buffered,
// and how many are queued.
func (s *Service) Caching() (bool, int) {
	st, n := s.cache.snapshot()
	return st == stateCaching, n
}

// ---- registry ----

func checkAction(a Action) error {
	if a == nil {
		return ErrNilAction
	}
	if !a.Kind().Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, a.Kind())
	}
	return nil
}

// RegisterNotificationForEvent sets a as the action of its kind for
// eventType and persists it as user-customized. It returns the replaced
// action, if any.
func (s *Service) RegisterNotificationForEvent(eventType string, a Action) (Action, error) {
	if err := checkAction(a); err != nil {
		return nil, err
	}
	return s.register(eventType, a.clone(), false), nil
}

// RegisterNotification is RegisterNotificationForEvent with the action built
// from a descriptor and default message. A sound reuses the loop interval of
// the registered default for eventType (-1 when there is none).
func (s *Service) RegisterNotification(eventType string, kind Kind, descriptor, defaultMessage string) error {
	loop := -1
	if d, ok := s.DefaultNotificationAction(eventType, KindSound).(*SoundAction); ok {
		loop = d.LoopInterval
	}
	a, err := fromTuple(kind, descriptor, defaultMessage, loop)
	if err != nil {
		return err
	}
	_, err = s.RegisterNotificationForEvent(eventType, a)
	return err
}

// register upserts a (owned by the registry from here on), persists it and
// notifies listeners.
func (s *Service) register(eventType string, a Action, isDefault bool) Action {
	kind := a.Kind()

	s.nmu.Lock()
	e, ok := s.notifications[eventType]
	created := !ok
	if created {
		e = newEntry(eventType)
		s.notifications[eventType] = e
	}
	prev := e.actions[kind]
	e.actions[kind] = a
	view := a.clone()
	s.nmu.Unlock()

	s.persist.saveAction(eventType, a, isDefault)
	s.log.Debug("notification registered",
		logx.String("event", eventType), logx.String("action", string(kind)), logx.Bool("default", isDefault))

	ls := s.listeners.snapshot()
	if created {
		notifyListeners(ls, func(l ChangeListener) { l.EventTypeAdded(EventTypeEvent{EventType: eventType}) })
	}
	ev := ActionEvent{EventType: eventType, Kind: kind, Action: view}
	if prev != nil {
		notifyListeners(ls, func(l ChangeListener) { l.ActionChanged(ev) })
	} else {
		notifyListeners(ls, func(l ChangeListener) { l.ActionAdded(ev) })
	}
	return prev
}

// RegisterDefaultNotificationForEvent records a as the shipped default for
// its kind. If the persisted action is still the default (or was never
// persisted) a becomes effective. Otherwise the user's action is kept and
// the upgrade check for the kind may backfill fields older records lack.
func (s *Service) RegisterDefaultNotificationForEvent(eventType string, a Action) error {
	if err := checkAction(a); err != nil {
		return err
	}
	kind := a.Kind()

	s.dmu.Lock()
	d, ok := s.defaults[eventType]
	if !ok {
		d = newEntry(eventType)
		s.defaults[eventType] = d
	}
	d.actions[kind] = a.clone()
	s.dmu.Unlock()

	if s.persist.isDefault(eventType, kind) {
		eff := a.clone()
		if cur := s.EventNotificationAction(eventType, kind); cur != nil {
			eff.SetEnabled(cur.Enabled())
		}
		s.register(eventType, eff, true)
		return nil
	}

	check := s.upgrades[kind]
	if check == nil {
		return nil
	}
	// The check runs on a copy outside the registry lock; it may call back
	// into the Service.
	hasProperty := s.persist.hasProperty(eventType, kind)
	s.nmu.RLock()
	var orig Action
	if e, ok := s.notifications[eventType]; ok {
		orig = e.actions[kind]
	}
	var cur Action
	if orig != nil {
		cur = orig.clone()
	}
	s.nmu.RUnlock()
	if cur == nil || !check(UpgradeContext{
		EventType:   eventType,
		Default:     a.clone(),
		Current:     cur,
		HasProperty: hasProperty,
	}) {
		return nil
	}

	s.nmu.Lock()
	patched := false
	if e, ok := s.notifications[eventType]; ok && e.actions[kind] == orig {
		e.actions[kind] = cur
		patched = true
	}
	var snapshot Action
	if patched {
		snapshot = cur.clone()
	}
	s.nmu.Unlock()

	if patched {
		s.persist.saveAction(eventType, snapshot, false)
		s.log.Info("customized notification upgraded", logx.String("event", eventType), logx.String("action", string(kind)))
	}
	return nil
}

// RegisterDefaultNotification is RegisterDefaultNotificationForEvent with
// the action built from a descriptor and default message. Sounds do not
// loop. Vibrate cannot be built this way.
func (s *Service) RegisterDefaultNotification(eventType string, kind Kind, descriptor, defaultMessage string) error {
	a, err := fromTuple(kind, descriptor, defaultMessage, -1)
	if err != nil {
		return err
	}
	return s.RegisterDefaultNotificationForEvent(eventType, a)
}

// RemoveEventNotification removes eventType and its persisted subtree.
// Unknown event types are ignored.
func (s *Service) RemoveEventNotification(eventType string) {
	s.nmu.Lock()
	_, ok := s.notifications[eventType]
	delete(s.notifications, eventType)
	s.nmu.Unlock()
	if !ok {
		return
	}
	s.persist.removeEvent(eventType)
	notifyListeners(s.listeners.snapshot(), func(l ChangeListener) {
		l.EventTypeRemoved(EventTypeEvent{EventType: eventType})
	})
}

// RemoveEventNotificationAction removes the action of kind from eventType.
// The persisted record is kept as disabled and customized so a later
// default registration does not bring it back. Absent event types or kinds
// are ignored.
func (s *Service) RemoveEventNotificationAction(eventType string, kind Kind) {
	s.nmu.Lock()
	e, ok := s.notifications[eventType]
	var a Action
	if ok {
		a = e.actions[kind]
		delete(e.actions, kind)
	}
	s.nmu.Unlock()
	if a == nil {
		return
	}

	tomb := a.clone()
	tomb.SetEnabled(false)
	s.persist.saveAction(eventType, tomb, false)

	ev := ActionEvent{EventType: eventType, Kind: kind, Action: a}
	notifyListeners(s.listeners.snapshot(), func(l ChangeListener) { l.ActionRemoved(ev) })
}

// SetActive toggles and persists the active flag of eventType. Unknown
// event types are ignored.
func (s *Service) SetActive(eventType string, active bool) {
	s.nmu.Lock()
	e, ok := s.notifications[eventType]
	if ok {
		e.active = active
	}
	s.nmu.Unlock()
	if ok {
		s.persist.saveActive(eventType, active)
	}
}

// IsActive reports whether eventType is registered and active.
func (s *Service) IsActive(eventType string) bool {
	s.nmu.RLock()
	defer s.nmu.RUnlock()
	e, ok := s.notifications[eventType]
	return ok && e.active
}

// RestoreDefaults replaces every registered notification with the shipped
// defaults, producing the usual removal and registration events.
func (s *Service) RestoreDefaults() {
	for _, n := range s.Notifications() {
		for _, a := range n.Actions {
			s.RemoveEventNotificationAction(n.EventType, a.Kind())
		}
		s.RemoveEventNotification(n.EventType)
	}

	s.dmu.Lock()
	defs := make([]Notification, 0, len(s.defaults))
	for _, d := range s.defaults {
		defs = append(defs, d.view())
	}
	s.dmu.Unlock()
	sort.Slice(defs, func(i, j int) bool { return defs[i].EventType < defs[j].EventType })

	for _, d := range defs {
		for _, a := range d.Actions {
			s.register(d.EventType, a, true)
		}
	}
	s.log.Info("notification defaults restored", logx.Int("events", len(defs)))
}

// ---- listeners ----

// AddNotificationChangeListener appends l; adding the same listener twice is a no-op.
func (s *Service) AddNotificationChangeListener(l ChangeListener) {
	if l != nil {
		s.listeners.add(l)
	}
}

// RemoveNotificationChangeListener removes l if present.
func (s *Service) RemoveNotificationChangeListener(l ChangeListener) {
	if l != nil {
		s.listeners.remove(l)
	}
}

// ---- queries ----

// RegisteredEvents returns the registered event types, sorted.
func (s *Service) RegisteredEvents() []string {
	s.nmu.RLock()
	out := make([]string, 0, len(s.notifications))
	for k := range s.notifications {
		out = append(out, k)
	}
	s.nmu.RUnlock()
	sort.Strings(out)
	return out
}

// EventNotificationAction returns a copy of the effective action, or nil.
// Register the copy again to apply changes.
func (s *Service) EventNotificationAction(eventType string, kind Kind) Action {
	s.nmu.RLock()
	defer s.nmu.RUnlock()
	e, ok := s.notifications[eventType]
	if !ok {
		return nil
	}
	return Clone(e.actions[kind])
}

// DefaultNotificationAction returns a copy of the shipped default, or nil.
func (s *Service) DefaultNotificationAction(eventType string, kind Kind) Action {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	d, ok := s.defaults[eventType]
	if !ok {
		return nil
	}
	return Clone(d.actions[kind])
}

// Notification returns a copy of eventType's configuration.
func (s *Service) Notification(eventType string) (Notification, bool) {
	s.nmu.RLock()
	defer s.nmu.RUnlock()
	e, ok := s.notifications[eventType]
	if !ok {
		return Notification{}, false
	}
	return e.view(), true
}

// Notifications returns copies of every registered notification, sorted by
// event type.
func (s *Service) Notifications() []Notification {
	s.nmu.RLock()
	out := make([]Notification, 0, len(s.notifications))
	for _, e := range s.notifications {
		out = append(out, e.view())
	}
	s.nmu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].EventType < out[j].EventType })
	return out
}
