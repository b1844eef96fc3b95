package notification

import "sync"

// EventTypeEvent reports an event type added to or removed from the registry.
type EventTypeEvent struct {
	EventType string
}

// ActionEvent reports an action added, changed or removed. Action is a copy.
type ActionEvent struct {
	EventType string
	Kind      Kind
	Action    Action
}

// ChangeListener observes registry changes. Methods run synchronously on the
// goroutine that made the change, in registration order. A panicking
// listener propagates to that caller.
type ChangeListener interface {
	EventTypeAdded(EventTypeEvent)
	EventTypeRemoved(EventTypeEvent)
	ActionAdded(ActionEvent)
	ActionChanged(ActionEvent)
	ActionRemoved(ActionEvent)
}

// ListenerFuncs adapts optional functions to ChangeListener. Nil fields are
// skipped. Use a pointer so the value can be removed again.
type ListenerFuncs struct {
	OnEventTypeAdded   func(EventTypeEvent)
	OnEventTypeRemoved func(EventTypeEvent)
	OnActionAdded      func(ActionEvent)
	OnActionChanged    func(ActionEvent)
	OnActionRemoved    func(ActionEvent)
}

func (f *ListenerFuncs) EventTypeAdded(e EventTypeEvent) {
	if f.OnEventTypeAdded != nil {
		f.OnEventTypeAdded(e)
	}
}

func (f *ListenerFuncs) EventTypeRemoved(e EventTypeEvent) {
	if f.OnEventTypeRemoved != nil {
		f.OnEventTypeRemoved(e)
	}
}

func (f *ListenerFuncs) ActionAdded(e ActionEvent) {
	if f.OnActionAdded != nil {
		f.OnActionAdded(e)
	}
}

func (f *ListenerFuncs) ActionChanged(e ActionEvent) {
	if f.OnActionChanged != nil {
		f.OnActionChanged(e)
	}
}

func (f *ListenerFuncs) ActionRemoved(e ActionEvent) {
	if f.OnActionRemoved != nil {
		f.OnActionRemoved(e)
	}
}

type listenerList struct {
	mu sync.Mutex
	ls []ChangeListener
}

func (l *listenerList) add(cl ChangeListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, x := range l.ls {
		if x == cl {
			return
		}
	}
	l.ls = append(l.ls, cl)
}

func (l *listenerList) remove(cl ChangeListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, x := range l.ls {
		if x == cl {
			l.ls = append(l.ls[:i:i], l.ls[i+1:]...)
			return
		}
	}
}

func (l *listenerList) snapshot() []ChangeListener {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ChangeListener(nil), l.ls...)
}

func (l *listenerList) clear() {
	l.mu.Lock()
	l.ls = nil
	l.mu.Unlock()
}

// notifyListeners calls fn for every listener. It does not recover: a
// listener panic reaches the caller of the mutating operation.
func notifyListeners(ls []ChangeListener, fn func(ChangeListener)) {
	for _, l := range ls {
		fn(l)
	}
}
