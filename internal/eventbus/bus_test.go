package eventbus

import (
	"testing"
	"time"
)

func TestPublishPrefixFilter(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	snd, unsubSnd := b.Subscribe(4, "sound.")
	defer unsubSnd()

	b.Publish(Event{Type: "sound.play"})
	b.Publish(Event{Type: "popup.shown"})

	if got := len(all); got != 2 {
		t.Fatalf("all subscriber got %d events, want 2", got)
	}
	if got := len(snd); got != 1 {
		t.Fatalf("sound subscriber got %d events, want 1", got)
	}
	e := <-snd
	if e.Type != "sound.play" || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: "late"})
}
