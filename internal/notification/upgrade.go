package notification

// UpgradeContext is passed to an UpgradeCheck for a user-customized action.
type UpgradeContext struct {
	EventType string
	// Default is the action being registered as the shipped default.
	Default Action
	// Current is the effective action. Checks patch it in place.
	Current Action
	// HasProperty reports whether a property key literally exists below the
	// persisted action node, regardless of its value.
	HasProperty func(name string) bool
}

// UpgradeCheck backfills fields that older persisted records lack. It
// returns true when it changed Current; the action is then re-persisted as
// still customized.
type UpgradeCheck func(uc UpgradeContext) bool

// dialingEvent persisted its loop interval as 0 in old releases.
const dialingEvent = "Dialing"

// soundUpgrade backfills the three output flags when their keys are absent
// and repairs the Dialing loop interval.
func soundUpgrade(uc UpgradeContext) bool {
	cur, ok := uc.Current.(*SoundAction)
	if !ok {
		return false
	}
	def, ok := uc.Default.(*SoundAction)
	if !ok {
		return false
	}
	patched := false
	if !uc.HasProperty(propSoundNotification) {
		cur.NotificationEnabled = def.NotificationEnabled
		patched = true
	}
	if !uc.HasProperty(propSoundPlayback) {
		cur.PlaybackEnabled = def.PlaybackEnabled
		patched = true
	}
	if !uc.HasProperty(propSoundPCSpeaker) {
		cur.PCSpeakerEnabled = def.PCSpeakerEnabled
		patched = true
	}
	if uc.EventType == dialingEvent && cur.LoopInterval == 0 {
		cur.LoopInterval = def.LoopInterval
		patched = true
	}
	return patched
}
