package notification

// Handler performs the side effect of one action kind. Implementations also
// implement the kind-specific interface below that matches Kind().
type Handler interface {
	Kind() Kind
	Enabled() bool
	SetEnabled(bool)
}

type SoundHandler interface {
	Handler
	Start(a *SoundAction, d *Data) error
	Stop(d *Data)
	IsPlaying(d *Data) bool
}

type PopupHandler interface {
	Handler
	PopupMessage(a *PopupMessageAction, title, message string, icon []byte, tag any) error
}

type LogHandler interface {
	Handler
	LogMessage(a *LogMessageAction, message string) error
}

type CommandHandler interface {
	Handler
	Execute(a *CommandAction, cmdargs map[string]string) error
}

type VibrateHandler interface {
	Handler
	Vibrate(a *VibrateAction) error
	Cancel()
}

// StopAller is optionally implemented by handlers that track in-flight work.
// Shutdown calls it.
type StopAller interface {
	StopAll()
}

func implementsKind(h Handler) bool {
	var ok bool
	switch h.Kind() {
	case KindSound:
		_, ok = h.(SoundHandler)
	case KindPopup:
		_, ok = h.(PopupHandler)
	case KindLog:
		_, ok = h.(LogHandler)
	case KindCommand:
		_, ok = h.(CommandHandler)
	case KindVibrate:
		_, ok = h.(VibrateHandler)
	}
	return ok
}
