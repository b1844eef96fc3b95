package notification

// entry is one event type's registered actions.
type entry struct {
	eventType string
	active    bool
	actions   map[Kind]Action
}

func newEntry(eventType string) *entry {
	return &entry{eventType: eventType, active: true, actions: map[Kind]Action{}}
}

// ordered returns copies of the actions in dispatch order.
func (e *entry) ordered() []Action {
	out := make([]Action, 0, len(e.actions))
	for _, k := range Kinds {
		if a, ok := e.actions[k]; ok {
			out = append(out, a.clone())
		}
	}
	return out
}

// Notification is a read-only copy of one event type's configuration.
type Notification struct {
	EventType string   `json:"event_type"`
	Active    bool     `json:"active"`
	Actions   []Action `json:"-"`
}

// Action returns the action of kind k, or nil.
func (n Notification) Action(k Kind) Action {
	for _, a := range n.Actions {
		if a.Kind() == k {
			return a
		}
	}
	return nil
}

func (e *entry) view() Notification {
	return Notification{EventType: e.eventType, Active: e.active, Actions: e.ordered()}
}
