package notification

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"notifyd/internal/store"
	logx "notifyd/pkg/logx"

	"github.com/google/uuid"
)

// Persisted layout, below the configured prefix:
//
//	<prefix>.eventType<id>                      = <event type>
//	<prefix>.eventType<id>.active               = true|false
//	<prefix>.eventType<id>.actions.actionType<id> = <kind>
//	<prefix>.eventType<id>.actions.actionType<id>.enabled / .default / <fields>
//
// Node ids are random; the value of a node key identifies it.
const (
	propActive  = "active"
	propEnabled = "enabled"
	propDefault = "default"

	propSoundDescriptor   = "soundFileDescriptor"
	propLoopInterval      = "loopInterval"
	propSoundNotification = "isSoundNotificationEnabled"
	propSoundPlayback     = "isSoundPlaybackEnabled"
	propSoundPCSpeaker    = "isSoundPCSpeakerEnabled"

	propDefaultMessage = "defaultMessage"
	propTimeout        = "timeout"
	propGroupName      = "groupName"

	propLogType = "logType"

	propCommandDescriptor = "commandDescriptor"

	propVibrateDescriptor = "descriptor"
	propPatternLength     = "patternLength"
	propPatternItem       = "patternItem"
	propRepeat            = "repeat"
)

// persister maps actions onto the store. mu serializes find-or-create of
// nodes with the write that creates them, so concurrent registrations for a
// new event type share one node.
type persister struct {
	st     store.Store
	prefix string
	log    logx.Logger

	mu sync.Mutex
}

func nodeID() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }

// findChild returns the direct child of parent whose value equals want.
func (p *persister) findChild(parent, want string) (string, bool) {
	keys, err := p.st.Keys(parent, true)
	if err != nil {
		p.log.Warn("store read failed", logx.String("prefix", parent), logx.Err(err))
		return "", false
	}
	for _, k := range keys {
		if v, ok := store.GetString(p.st, k); ok && v == want {
			return k, true
		}
	}
	return "", false
}

func (p *persister) eventNode(eventType string) (string, bool) {
	return p.findChild(p.prefix, eventType)
}

func (p *persister) actionNode(eventType string, kind Kind) (string, bool) {
	ev, ok := p.eventNode(eventType)
	if !ok {
		return "", false
	}
	return p.findChild(ev+".actions", string(kind))
}

// ensureEventNode returns the node for eventType, staging its creation in
// props when it does not exist yet.
func (p *persister) ensureEventNode(eventType string, props map[string]string) string {
	if ev, ok := p.eventNode(eventType); ok {
		return ev
	}
	ev := p.prefix + ".eventType" + nodeID()
	props[ev] = eventType
	return ev
}

func (p *persister) write(props map[string]string) {
	if err := p.st.SetMany(props); err != nil {
		p.log.Warn("store write failed", logx.Int("keys", len(props)), logx.Err(err))
	}
}

func (p *persister) saveActive(eventType string, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	props := map[string]string{}
	ev := p.ensureEventNode(eventType, props)
	props[ev+"."+propActive] = strconv.FormatBool(active)
	p.write(props)
}

func (p *persister) saveAction(eventType string, a Action, isDefault bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	props := map[string]string{}
	ev := p.ensureEventNode(eventType, props)
	node, ok := p.findChild(ev+".actions", string(a.Kind()))
	if !ok {
		node = ev + ".actions.actionType" + nodeID()
		props[node] = string(a.Kind())
	}
	encodeAction(props, node, a)
	props[node+"."+propEnabled] = strconv.FormatBool(a.Enabled())
	props[node+"."+propDefault] = strconv.FormatBool(isDefault)
	p.write(props)
}

// removeEvent deletes every node holding eventType, including duplicates
// left by older releases.
func (p *persister) removeEvent(eventType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys, err := p.st.Keys(p.prefix, true)
	if err != nil {
		p.log.Warn("store read failed", logx.String("prefix", p.prefix), logx.Err(err))
		return
	}
	for _, ev := range keys {
		if v, ok := store.GetString(p.st, ev); !ok || v != eventType {
			continue
		}
		if err := p.st.RemovePrefix(ev); err != nil {
			p.log.Warn("store remove failed", logx.String("node", ev), logx.Err(err))
		}
	}
}

// isDefault reports whether the persisted action is still the shipped
// default. Never-persisted actions and a missing flag count as default.
func (p *persister) isDefault(eventType string, kind Kind) bool {
	node, ok := p.actionNode(eventType, kind)
	if !ok {
		return true
	}
	return store.GetBool(p.st, node+"."+propDefault, true)
}

// hasProperty returns a lookup for literal key presence below an action
// node. The keys are read once, up front; the lookup does no store I/O.
func (p *persister) hasProperty(eventType string, kind Kind) func(string) bool {
	present := map[string]struct{}{}
	if node, ok := p.actionNode(eventType, kind); ok {
		keys, err := p.st.Keys(node, true)
		if err != nil {
			p.log.Warn("store read failed", logx.String("prefix", node), logx.Err(err))
		}
		for _, k := range keys {
			present[k[len(node)+1:]] = struct{}{}
		}
	}
	return func(name string) bool {
		_, ok := present[name]
		return ok
	}
}

func encodeAction(props map[string]string, node string, a Action) {
	put := func(name, v string) { props[node+"."+name] = v }
	switch a := a.(type) {
	case *SoundAction:
		put(propSoundDescriptor, a.Descriptor)
		put(propLoopInterval, strconv.Itoa(a.LoopInterval))
		put(propSoundNotification, strconv.FormatBool(a.NotificationEnabled))
		put(propSoundPlayback, strconv.FormatBool(a.PlaybackEnabled))
		put(propSoundPCSpeaker, strconv.FormatBool(a.PCSpeakerEnabled))
	case *PopupMessageAction:
		put(propDefaultMessage, a.DefaultMessage)
		put(propTimeout, strconv.FormatInt(a.Timeout, 10))
		put(propGroupName, a.GroupName)
	case *LogMessageAction:
		put(propLogType, string(a.Level))
	case *CommandAction:
		put(propCommandDescriptor, a.Descriptor)
	case *VibrateAction:
		put(propVibrateDescriptor, a.Descriptor)
		put(propPatternLength, strconv.Itoa(len(a.Pattern)))
		for i, v := range a.Pattern {
			put(propPatternItem+strconv.Itoa(i), strconv.FormatInt(v, 10))
		}
		put(propRepeat, strconv.Itoa(a.Repeat))
	}
}

// loaded is one persisted event type.
type loaded struct {
	eventType string
	active    bool
	actions   []Action
}

func (l *loaded) has(k Kind) bool {
	for _, a := range l.actions {
		if a.Kind() == k {
			return true
		}
	}
	return false
}

// load reads every persisted event type. Malformed action records are logged
// and skipped; the rest of the pass continues. Several nodes holding the same
// event type are merged: their actions are combined and the event is
// inactive if any node says so.
func (p *persister) load() ([]loaded, error) {
	events, err := p.st.Keys(p.prefix, true)
	if err != nil {
		return nil, err
	}
	out := make([]loaded, 0, len(events))
	index := map[string]int{}
	for _, ev := range events {
		eventType, ok := store.GetString(p.st, ev)
		if !ok || eventType == "" {
			continue
		}
		i, seen := index[eventType]
		if !seen {
			i = len(out)
			index[eventType] = i
			out = append(out, loaded{eventType: eventType, active: true})
		} else {
			p.log.Warn("merging duplicate event node", logx.String("event", eventType), logx.String("key", ev))
		}
		l := &out[i]
		l.active = l.active && store.GetBool(p.st, ev+"."+propActive, true)

		nodes, err := p.st.Keys(ev+".actions", true)
		if err != nil {
			return nil, err
		}
		for _, node := range nodes {
			kind, _ := store.GetString(p.st, node)
			a, err := p.decodeAction(node, Kind(kind))
			if err != nil {
				p.log.Error("skipping malformed notification action",
					logx.String("event", eventType), logx.String("key", node), logx.Err(err))
				continue
			}
			if l.has(a.Kind()) {
				// Writes go to the first node, so it wins.
				continue
			}
			a.SetEnabled(store.GetBool(p.st, node+"."+propEnabled, true))
			l.actions = append(l.actions, a)
		}
	}
	return out, nil
}

func (p *persister) decodeAction(node string, kind Kind) (Action, error) {
	get := func(name string) string {
		v, _ := store.GetString(p.st, node+"."+name)
		return v
	}
	has := func(name string) bool { return store.Has(p.st, node+"."+name) }
	getInt := func(name string, def int) int { return store.GetInt(p.st, node+"."+name, def) }
	getBool := func(name string, def bool) bool { return store.GetBool(p.st, node+"."+name, def) }

	switch kind {
	case KindSound:
		desc := get(propSoundDescriptor)
		notify := desc != ""
		if has(propSoundNotification) {
			notify = getBool(propSoundNotification, notify)
		}
		return NewSoundAction(desc, getInt(propLoopInterval, -1), notify,
			getBool(propSoundPlayback, false), getBool(propSoundPCSpeaker, false)), nil
	case KindPopup:
		a := NewPopupMessageAction(get(propDefaultMessage))
		a.Timeout = store.GetLong(p.st, node+"."+propTimeout, -1)
		a.GroupName = get(propGroupName)
		return a, nil
	case KindLog:
		return NewLogMessageAction(LogLevel(get(propLogType))), nil
	case KindCommand:
		return NewCommandAction(get(propCommandDescriptor)), nil
	case KindVibrate:
		n := getInt(propPatternLength, -1)
		if n < 0 {
			return nil, errors.New("vibrate pattern length missing or -1")
		}
		pattern := make([]int64, n)
		for i := range pattern {
			v := store.GetLong(p.st, node+"."+propPatternItem+strconv.Itoa(i), -1)
			if v < 0 {
				return nil, fmt.Errorf("vibrate pattern item %d missing or -1", i)
			}
			pattern[i] = v
		}
		return &VibrateAction{Descriptor: get(propVibrateDescriptor), Pattern: pattern, Repeat: getInt(propRepeat, -1)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}
