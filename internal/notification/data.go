package notification

import (
	"fmt"

	"github.com/google/uuid"
)

// Well-known Extras keys.
const (
	// ExtraPopupTag is passed to the popup handler as its tag argument.
	ExtraPopupTag = "popup.handler.tag"
	// ExtraCommandArgs holds map[string]string (or map[string]any) arguments
	// for the command handler.
	ExtraCommandArgs = "command.cmdargs"
)

// Data is the payload of one fired notification. Handlers may keep the
// pointer to correlate a later StopNotification with in-flight work.
type Data struct {
	ID        string
	EventType string
	Title     string
	Message   string
	Icon      []byte
	Extras    map[string]any
}

func newData(eventType, title, message string, icon []byte, extras map[string]any) *Data {
	return &Data{
		ID:        uuid.NewString(),
		EventType: eventType,
		Title:     title,
		Message:   message,
		Icon:      icon,
		Extras:    extras,
	}
}

func (d *Data) Extra(key string) any {
	if d == nil || d.Extras == nil {
		return nil
	}
	return d.Extras[key]
}

// CommandArgs returns the ExtraCommandArgs entry as a string map. Non-string
// values of a map[string]any are formatted with %v.
func (d *Data) CommandArgs() map[string]string {
	switch v := d.Extra(ExtraCommandArgs).(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, x := range v {
			out[k] = fmt.Sprint(x)
		}
		return out
	default:
		return nil
	}
}
