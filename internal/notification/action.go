package notification

// Kind discriminates the action variants. The string values are persisted.
type Kind string

const (
	KindSound   Kind = "SoundAction"
	KindPopup   Kind = "PopupMessageAction"
	KindLog     Kind = "LogMessageAction"
	KindCommand Kind = "CommandAction"
	KindVibrate Kind = "VibrateAction"
)

// Kinds lists every kind in dispatch order.
var Kinds = []Kind{KindSound, KindPopup, KindLog, KindCommand, KindVibrate}

func (k Kind) Valid() bool {
	switch k {
	case KindSound, KindPopup, KindLog, KindCommand, KindVibrate:
		return true
	}
	return false
}

// Action is one configured side effect attached to an event type.
// The set of implementations is closed to this package.
type Action interface {
	Kind() Kind
	Enabled() bool
	SetEnabled(bool)
	clone() Action
}

// toggle holds the enabled flag shared by every action. Its zero value is
// enabled.
type toggle struct{ disabled bool }

func (t *toggle) Enabled() bool     { return !t.disabled }
func (t *toggle) SetEnabled(v bool) { t.disabled = !v }

// SoundAction plays a sound. LoopInterval is in milliseconds; -1 plays once.
type SoundAction struct {
	toggle
	Descriptor   string
	LoopInterval int

	NotificationEnabled bool
	PlaybackEnabled     bool
	PCSpeakerEnabled    bool
}

func NewSoundAction(descriptor string, loopInterval int, notification, playback, pcSpeaker bool) *SoundAction {
	return &SoundAction{
		Descriptor:          descriptor,
		LoopInterval:        loopInterval,
		NotificationEnabled: notification,
		PlaybackEnabled:     playback,
		PCSpeakerEnabled:    pcSpeaker,
	}
}

func (a *SoundAction) Kind() Kind { return KindSound }

// AnyOutput reports whether at least one sound output is enabled.
func (a *SoundAction) AnyOutput() bool {
	return a.NotificationEnabled || a.PlaybackEnabled || a.PCSpeakerEnabled
}

// Loops reports whether the sound repeats.
func (a *SoundAction) Loops() bool { return a.LoopInterval >= 0 }

func (a *SoundAction) clone() Action {
	cp := *a
	return &cp
}

// PopupMessageAction shows a popup. Timeout is in milliseconds; -1 never
// auto-dismisses.
type PopupMessageAction struct {
	toggle
	DefaultMessage string
	Timeout        int64
	GroupName      string
}

func NewPopupMessageAction(defaultMessage string) *PopupMessageAction {
	return &PopupMessageAction{DefaultMessage: defaultMessage, Timeout: -1}
}

func (a *PopupMessageAction) Kind() Kind { return KindPopup }

func (a *PopupMessageAction) clone() Action {
	cp := *a
	return &cp
}

type LogLevel string

const (
	LogTrace LogLevel = "TraceLog"
	LogInfo  LogLevel = "InfoLog"
	LogError LogLevel = "ErrorLog"
)

type LogMessageAction struct {
	toggle
	Level LogLevel
}

func NewLogMessageAction(level LogLevel) *LogMessageAction {
	return &LogMessageAction{Level: level}
}

func (a *LogMessageAction) Kind() Kind { return KindLog }

func (a *LogMessageAction) clone() Action {
	cp := *a
	return &cp
}

// CommandAction runs a command. Descriptor is interpreted by the handler.
type CommandAction struct {
	toggle
	Descriptor string
}

func NewCommandAction(descriptor string) *CommandAction {
	return &CommandAction{Descriptor: descriptor}
}

func (a *CommandAction) Kind() Kind { return KindCommand }

func (a *CommandAction) clone() Action {
	cp := *a
	return &cp
}

// VibrateAction drives a haptic pattern of alternating off/on durations in
// milliseconds. Repeat indexes into Pattern; -1 plays once.
type VibrateAction struct {
	toggle
	Descriptor string
	Pattern    []int64
	Repeat     int
}

func NewVibrateAction(descriptor string, pattern []int64, repeat int) *VibrateAction {
	return &VibrateAction{Descriptor: descriptor, Pattern: append([]int64(nil), pattern...), Repeat: repeat}
}

func (a *VibrateAction) Kind() Kind { return KindVibrate }

func (a *VibrateAction) clone() Action {
	cp := *a
	cp.Pattern = append([]int64(nil), a.Pattern...)
	return &cp
}

// Clone returns a deep copy of a, or nil.
func Clone(a Action) Action {
	if a == nil {
		return nil
	}
	return a.clone()
}

// fromTuple builds the action the descriptor/message registration forms
// describe. Vibrate cannot be expressed this way.
func fromTuple(kind Kind, descriptor, defaultMessage string, loopInterval int) (Action, error) {
	switch kind {
	case KindSound:
		return NewSoundAction(descriptor, loopInterval, descriptor != "", false, false), nil
	case KindLog:
		return NewLogMessageAction(LogInfo), nil
	case KindPopup:
		return NewPopupMessageAction(defaultMessage), nil
	case KindCommand:
		return NewCommandAction(descriptor), nil
	default:
		return nil, ErrInvalidKind
	}
}
