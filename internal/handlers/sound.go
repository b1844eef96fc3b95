package handlers

import (
	"context"
	"io"
	"sync"
	"time"

	"notifyd/internal/eventbus"
	"notifyd/internal/notification"
	rtsup "notifyd/internal/runtime/supervisor"
	logx "notifyd/pkg/logx"
)

// SoundOutput selects where a sound is rendered.
type SoundOutput struct {
	Notification bool `json:"notification"`
	Playback     bool `json:"playback"`
	PCSpeaker    bool `json:"pc_speaker"`
}

// Player renders one play of a sound. Play blocks until the sound ends or
// ctx is done.
type Player interface {
	Play(ctx context.Context, descriptor string, out SoundOutput) error
}

type PlayerFunc func(ctx context.Context, descriptor string, out SoundOutput) error

func (f PlayerFunc) Play(ctx context.Context, descriptor string, out SoundOutput) error {
	return f(ctx, descriptor, out)
}

// BellPlayer logs each play and rings the terminal bell on w for the PC
// speaker output. It has no audio backend.
type BellPlayer struct {
	W   io.Writer
	Log logx.Logger
}

func (p BellPlayer) Play(_ context.Context, descriptor string, out SoundOutput) error {
	p.Log.Debug("sound played",
		logx.String("descriptor", descriptor),
		logx.Bool("notification", out.Notification),
		logx.Bool("playback", out.Playback),
		logx.Bool("pc_speaker", out.PCSpeaker))
	if out.PCSpeaker && p.W != nil {
		_, err := io.WriteString(p.W, "\a")
		return err
	}
	return nil
}

// SoundEvent is the Data of sound.* bus events.
type SoundEvent struct {
	DataID     string `json:"data_id"`
	EventType  string `json:"event_type"`
	Descriptor string `json:"descriptor"`
	Plays      int    `json:"plays,omitempty"`
}

// minLoopGap bounds how fast a looping sound restarts.
const minLoopGap = 20 * time.Millisecond

type playback struct {
	cancel context.CancelFunc
}

// SoundHandler plays sounds through a Player and tracks in-flight playback
// per fired notification so it can be stopped.
type SoundHandler struct {
	toggle

	log    logx.Logger
	bus    eventbus.Bus
	player Player
	sup    *rtsup.Supervisor

	mu      sync.Mutex
	playing map[string]*playback
}

// NewSound runs playback on sup. A nil player uses BellPlayer without a
// writer.
func NewSound(sup *rtsup.Supervisor, player Player, log logx.Logger, bus eventbus.Bus) *SoundHandler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if player == nil {
		player = BellPlayer{Log: log}
	}
	return &SoundHandler{
		toggle:  toggle{kind: notification.KindSound},
		log:     log,
		bus:     bus,
		player:  player,
		sup:     sup,
		playing: map[string]*playback{},
	}
}

// Start plays a for d. Sounds with LoopInterval >= 0 repeat, waiting that
// many milliseconds between plays, until Stop. Starting d again replaces
// its previous playback.
func (h *SoundHandler) Start(a *notification.SoundAction, d *notification.Data) error {
	if !h.Enabled() || d == nil {
		return nil
	}
	out := SoundOutput{Notification: a.NotificationEnabled, Playback: a.PlaybackEnabled, PCSpeaker: a.PCSpeakerEnabled}
	desc, loop := a.Descriptor, a.LoopInterval

	ctx, cancel := context.WithCancel(h.sup.Context())
	pb := &playback{cancel: cancel}

	h.mu.Lock()
	if prev := h.playing[d.ID]; prev != nil {
		prev.cancel()
	}
	h.playing[d.ID] = pb
	h.mu.Unlock()

	ev := SoundEvent{DataID: d.ID, EventType: d.EventType, Descriptor: desc}
	publish(h.bus, TopicSoundStarted, ev)

	h.sup.Go0("sound.play", func(context.Context) {
		defer h.finish(d.ID, pb)
		plays := 0
		for {
			if err := h.player.Play(ctx, desc, out); err != nil && ctx.Err() == nil {
				h.log.Warn("sound play failed", logx.String("descriptor", desc), logx.String("event", d.EventType), logx.Err(err))
			}
			plays++
			if loop < 0 || ctx.Err() != nil {
				break
			}
			gap := max(time.Duration(loop)*time.Millisecond, minLoopGap)
			t := time.NewTimer(gap)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
			if ctx.Err() != nil {
				break
			}
		}
		ev.Plays = plays
		publish(h.bus, TopicSoundStopped, ev)
	})
	return nil
}

func (h *SoundHandler) finish(id string, pb *playback) {
	pb.cancel()
	h.mu.Lock()
	if h.playing[id] == pb {
		delete(h.playing, id)
	}
	h.mu.Unlock()
}

// Stop cancels playback started for d. It does not wait.
func (h *SoundHandler) Stop(d *notification.Data) {
	if d == nil {
		return
	}
	h.mu.Lock()
	pb := h.playing[d.ID]
	delete(h.playing, d.ID)
	h.mu.Unlock()
	if pb != nil {
		pb.cancel()
	}
}

func (h *SoundHandler) IsPlaying(d *notification.Data) bool {
	if d == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.playing[d.ID]
	return ok
}

// StopAll cancels every playback.
func (h *SoundHandler) StopAll() {
	h.mu.Lock()
	all := h.playing
	h.playing = map[string]*playback{}
	h.mu.Unlock()
	for _, pb := range all {
		pb.cancel()
	}
}

// Playing returns the number of in-flight playbacks.
func (h *SoundHandler) Playing() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.playing)
}
