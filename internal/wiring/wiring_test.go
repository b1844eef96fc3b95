package wiring

import (
	"testing"

	"notifyd/internal/notification"
	"notifyd/internal/store"
)

func TestRegisterDefaults(t *testing.T) {
	t.Parallel()

	svc := notification.New(store.NewMemory())
	if err := RegisterDefaults(svc); err != nil {
		t.Fatal(err)
	}
	if got, want := len(svc.RegisteredEvents()), len(EventTypes()); got != want || want != 12 {
		t.Fatalf("registered %d events, want %d (12)", got, want)
	}

	snd, ok := svc.EventNotificationAction(IncomingCall, notification.KindSound).(*notification.SoundAction)
	if !ok || snd.Descriptor != SoundIncomingCall || snd.LoopInterval != 2000 || !snd.PlaybackEnabled || !snd.PCSpeakerEnabled {
		t.Fatalf("IncomingCall sound = %+v", snd)
	}
	if svc.EventNotificationAction(IncomingCall, notification.KindPopup) == nil {
		t.Fatal("IncomingCall popup missing")
	}
	if svc.EventNotificationAction(Dialing, notification.KindPopup) != nil {
		t.Fatal("Dialing must not pop up")
	}
	if n, _ := svc.Notification(CallSaved); len(n.Actions) != 1 || n.Action(notification.KindPopup) == nil {
		t.Fatalf("CallSaved = %+v", n)
	}
}

func TestRegisterDefaultsIsIdempotent(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	svc := notification.New(st)
	_ = RegisterDefaults(svc)
	before, _ := st.Keys("", false)

	again := notification.New(st)
	if err := again.Init(); err != nil {
		t.Fatal(err)
	}
	_ = RegisterDefaults(again)
	after, _ := st.Keys("", false)
	if len(before) != len(after) {
		t.Fatalf("keys %d -> %d", len(before), len(after))
	}
}
