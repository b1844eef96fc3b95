package handlers

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"notifyd/internal/eventbus"
	"notifyd/internal/notification"
	rtsup "notifyd/internal/runtime/supervisor"
	logx "notifyd/pkg/logx"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func recv(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no bus event")
		return eventbus.Event{}
	}
}

func newSup(t *testing.T) *rtsup.Supervisor {
	t.Helper()
	sup := rtsup.New(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})
	return sup
}

func TestHandlersImplementEngineInterfaces(t *testing.T) {
	t.Parallel()

	sup := newSup(t)
	svc := notification.New(nil)
	for _, h := range []notification.Handler{
		NewLog(logx.Nop()),
		NewPopup(PopupOptions{}, logx.Nop(), nil),
		NewSound(sup, nil, logx.Nop(), nil),
		NewCommand(sup, CommandOptions{}, logx.Nop(), nil),
		NewVibrate(sup, nil, logx.Nop(), nil),
	} {
		if err := svc.AddActionHandler(h); err != nil {
			t.Fatalf("%T: %v", h, err)
		}
	}
	if got := len(svc.ActionHandlers()); got != 5 {
		t.Fatalf("handlers = %d", got)
	}
}

func TestLogHandlerLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewLog(logx.NewWriter(&buf, "info"))
	_ = h.LogMessage(notification.NewLogMessageAction(notification.LogTrace), "hidden trace")
	_ = h.LogMessage(notification.NewLogMessageAction(notification.LogError), "call failed")
	_ = h.LogMessage(notification.NewLogMessageAction("Bogus"), "fallback info")
	h.SetEnabled(false)
	_ = h.LogMessage(notification.NewLogMessageAction(notification.LogError), "disabled")

	out := buf.String()
	if strings.Contains(out, "hidden trace") || strings.Contains(out, "disabled") {
		t.Fatalf("unexpected output: %s", out)
	}
	if !strings.Contains(out, "call failed") || !strings.Contains(out, "fallback info") {
		t.Fatalf("missing output: %s", out)
	}
}

func TestPopupDeliversWithDefaultMessageFallback(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	shown, unsub := bus.Subscribe(8, TopicPopupShown)
	defer unsub()

	var mu sync.Mutex
	var got []Popup
	h := NewPopup(PopupOptions{Sink: PopupSinkFunc(func(_ context.Context, p Popup) error {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		return nil
	})}, logx.Nop(), bus)

	a := notification.NewPopupMessageAction("You have a new message")
	a.GroupName = "chat"
	a.Timeout = 1500
	if err := h.PopupMessage(a, "t", "", nil, "tag"); !errors.Is(err, ErrPopupStopped) {
		t.Fatalf("before Start err = %v", err)
	}

	h.Start(context.Background())
	defer h.Stop(context.Background())
	if err := h.PopupMessage(a, "Alice", "", nil, "tag"); err != nil {
		t.Fatal(err)
	}
	recv(t, shown)

	mu.Lock()
	defer mu.Unlock()
	p := got[0]
	if p.Message != "You have a new message" || p.Group != "chat" || p.Tag != "tag" || p.Timeout != 1500*time.Millisecond {
		t.Fatalf("popup = %+v", p)
	}
	if hist := h.History(); len(hist) != 1 || hist[0].Title != "Alice" {
		t.Fatalf("history = %+v", hist)
	}
}

func TestPopupDedupAndDisabled(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16, "popup.")
	defer unsub()

	h := NewPopup(PopupOptions{DedupWindow: time.Minute}, logx.Nop(), bus)
	h.Start(context.Background())
	defer h.Stop(context.Background())

	a := notification.NewPopupMessageAction("")
	_ = h.PopupMessage(a, "same", "body", nil, nil)
	_ = h.PopupMessage(a, "same", "body", nil, nil)
	h.SetEnabled(false)
	_ = h.PopupMessage(a, "other", "body", nil, nil)

	counts := map[string]int{}
	waitFor(t, "popup events", func() bool {
		for {
			select {
			case e := <-events:
				counts[e.Type]++
			default:
				return counts[TopicPopupShown] == 1 && counts[TopicPopupDeduped] == 1
			}
		}
	})
	if counts[TopicPopupQueued] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestPopupQueueFull(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	h := NewPopup(PopupOptions{QueueSize: 1, Sink: PopupSinkFunc(func(ctx context.Context, _ Popup) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})}, logx.Nop(), nil)
	h.Start(context.Background())
	defer func() {
		close(block)
		h.Stop(context.Background())
	}()

	var full bool
	for i := 0; i < 10 && !full; i++ {
		err := h.Enqueue(Popup{Title: "x"})
		full = errors.Is(err, ErrPopupQueueFull)
	}
	if !full {
		t.Fatal("queue never reported full")
	}
}

func TestSoundLoopsUntilStop(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	stopped, unsub := bus.Subscribe(4, TopicSoundStopped)
	defer unsub()

	var plays atomic.Int32
	var lastOut atomic.Value
	player := PlayerFunc(func(_ context.Context, desc string, out SoundOutput) error {
		plays.Add(1)
		lastOut.Store(out)
		return nil
	})
	h := NewSound(newSup(t), player, logx.Nop(), bus)
	d := &notification.Data{ID: "d1", EventType: "IncomingCall"}

	if err := h.Start(notification.NewSoundAction("ring.wav", 1, true, false, true), d); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "three plays", func() bool { return plays.Load() >= 3 })
	if !h.IsPlaying(d) {
		t.Fatal("looping sound should be playing")
	}
	if out := lastOut.Load().(SoundOutput); !out.Notification || out.Playback || !out.PCSpeaker {
		t.Fatalf("output = %+v", out)
	}
	h.Stop(d)
	h.Stop(d)
	if h.IsPlaying(d) {
		t.Fatal("still playing after Stop")
	}
	if ev := recv(t, stopped).Data.(SoundEvent); ev.DataID != "d1" || ev.Plays < 3 {
		t.Fatalf("stopped event = %+v", ev)
	}
}

func TestSoundPlaysOnceAndStopAll(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var plays atomic.Int32
	h := NewSound(newSup(t), PlayerFunc(func(ctx context.Context, _ string, _ SoundOutput) error {
		plays.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}), logx.Nop(), nil)

	once := &notification.Data{ID: "once"}
	_ = h.Start(notification.NewSoundAction("a.wav", -1, true, false, false), once)
	close(release)
	waitFor(t, "single play to end", func() bool { return !h.IsPlaying(once) })
	if plays.Load() != 1 {
		t.Fatalf("plays = %d", plays.Load())
	}

	for _, id := range []string{"x", "y"} {
		_ = h.Start(notification.NewSoundAction("loop.wav", 1000, true, false, false), &notification.Data{ID: id})
	}
	if h.Playing() != 2 {
		t.Fatalf("playing = %d", h.Playing())
	}
	h.StopAll()
	if h.Playing() != 0 {
		t.Fatalf("playing after StopAll = %d", h.Playing())
	}
}

func TestBellPlayerRingsForPCSpeaker(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := BellPlayer{W: &buf, Log: logx.Nop()}
	_ = p.Play(context.Background(), "a.wav", SoundOutput{Playback: true})
	_ = p.Play(context.Background(), "a.wav", SoundOutput{PCSpeaker: true})
	if buf.String() != "\a" {
		t.Fatalf("bell output = %q", buf.String())
	}
}

func TestExpandCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		args map[string]string
		want string
	}{
		{"no args", "echo ${who}", nil, "echo ${who}"},
		{"single", "echo ${who}", map[string]string{"who": "bob"}, "echo bob"},
		{"repeated", "${a}-${a}", map[string]string{"a": "x"}, "x-x"},
		{"unknown kept", "say ${a} ${b}", map[string]string{"a": "hi"}, "say hi ${b}"},
		{"plain", "ls -l", map[string]string{"a": "x"}, "ls -l"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandCommand(tt.in, tt.args); got != tt.want {
				t.Fatalf("ExpandCommand(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

type recRunner struct {
	mu   sync.Mutex
	runs [][]string
	err  error
}

func (r *recRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.runs = append(r.runs, append([]string{name}, args...))
	r.mu.Unlock()
	return []byte("out\n"), r.err
}

func TestCommandRunsExpandedDescriptor(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, "command.")
	defer unsub()

	r := &recRunner{}
	h := NewCommand(newSup(t), CommandOptions{Exec: true, Runner: r}, logx.Nop(), bus)
	err := h.Execute(notification.NewCommandAction("notify-send ${title} now"), map[string]string{"title": "Call"})
	if err != nil {
		t.Fatal(err)
	}
	e := recv(t, events)
	if e.Type != TopicCommandDone || e.Data.(CommandEvent).Output != "out" {
		t.Fatalf("event = %+v", e)
	}
	r.mu.Lock()
	got := strings.Join(r.runs[0], " ")
	r.mu.Unlock()
	if got != "notify-send Call now" {
		t.Fatalf("ran %q", got)
	}

	r.err = errors.New("exit status 1")
	_ = h.Execute(notification.NewCommandAction("false"), nil)
	if e := recv(t, events); e.Type != TopicCommandFailed {
		t.Fatalf("event = %+v", e)
	}
}

func TestCommandDryRunAndEmpty(t *testing.T) {
	t.Parallel()

	r := &recRunner{}
	var buf bytes.Buffer
	h := NewCommand(newSup(t), CommandOptions{Runner: r}, logx.NewWriter(&buf, "info"), nil)
	if err := h.Execute(notification.NewCommandAction("  "), nil); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("err = %v", err)
	}
	if err := h.Execute(notification.NewCommandAction("rm -rf ${dir}"), map[string]string{"dir": "/tmp/x"}); err != nil {
		t.Fatal(err)
	}
	if len(r.runs) != 0 {
		t.Fatalf("dry run executed: %v", r.runs)
	}
	if !strings.Contains(buf.String(), "rm -rf /tmp/x") {
		t.Fatalf("dry run not logged: %s", buf.String())
	}
}

func TestVibratePatternOnceAndRepeat(t *testing.T) {
	t.Parallel()

	var buzzes atomic.Int32
	h := NewVibrate(newSup(t), MotorFunc(func(time.Duration) { buzzes.Add(1) }), logx.Nop(), nil)

	_ = h.Vibrate(notification.NewVibrateAction("short", []int64{1, 1, 1, 1}, -1))
	waitFor(t, "pattern end", func() bool { return !h.Active() })
	if got := buzzes.Load(); got != 2 {
		t.Fatalf("buzzes = %d, want 2", got)
	}

	_ = h.Vibrate(notification.NewVibrateAction("ring", []int64{1, 1}, 0))
	waitFor(t, "repeats", func() bool { return buzzes.Load() >= 5 })
	if !h.Active() {
		t.Fatal("repeating pattern should be active")
	}
	h.Cancel()
	if h.Active() {
		t.Fatal("still active after Cancel")
	}
	h.Cancel()
}

func TestVibrateIgnoresDegeneratePatterns(t *testing.T) {
	t.Parallel()

	h := NewVibrate(newSup(t), nil, logx.Nop(), nil)
	_ = h.Vibrate(notification.NewVibrateAction("empty", nil, 0))
	if h.Active() {
		t.Fatal("empty pattern started")
	}
	_ = h.Vibrate(notification.NewVibrateAction("zeros", []int64{0, 0}, 0))
	waitFor(t, "zero pattern end", func() bool { return !h.Active() })
}
