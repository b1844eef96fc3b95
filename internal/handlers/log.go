package handlers

import (
	"notifyd/internal/notification"
	logx "notifyd/pkg/logx"
)

// LogHandler writes notification messages to a logx logger at the level the
// action names.
type LogHandler struct {
	toggle
	log logx.Logger
}

func NewLog(log logx.Logger) *LogHandler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogHandler{toggle: toggle{kind: notification.KindLog}, log: log}
}

func (h *LogHandler) LogMessage(a *notification.LogMessageAction, message string) error {
	if !h.Enabled() {
		return nil
	}
	h.log.Log(logLevel(a.Level), message, logx.String("log_type", string(a.Level)))
	return nil
}

// logLevel maps an action level to a logger level. Unknown levels log at Info.
func logLevel(l notification.LogLevel) logx.Level {
	switch l {
	case notification.LogTrace:
		return logx.LevelTrace
	case notification.LogError:
		return logx.LevelError
	default:
		return logx.LevelInfo
	}
}
